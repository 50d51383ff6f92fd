package client

import (
	"encoding/json"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// validator is implemented by all typed params
type validator interface {
	Validate() error
}

// Decode unmarshals a result into T
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("empty result")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode result: %w", err)
	}
	return v, nil
}
