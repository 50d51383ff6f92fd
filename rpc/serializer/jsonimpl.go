package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg *common.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot serialize nil message")
	}
	// encoding/json escapes control characters in strings and compacts raw
	// messages, so the output is always a single line
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return fmt.Errorf("message is not a JSON object")
	}
	return json.Unmarshal(b, msg)
}
