package serializer

import "github.com/ValentinKolb/gamelink/rpc/common"

// IRPCSerializer is the interface for all message serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into one wire line (without the delimiter).
	// The result must not contain an unescaped newline.
	Serialize(msg *common.Message) ([]byte, error)
	// Deserialize deserializes one wire line into a Message
	// It returns an error if the line is not a well formed message
	Deserialize(b []byte, msg *common.Message) error
}
