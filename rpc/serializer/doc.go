// Package serializer converts between wire lines and common.Message.
//
// The game speaks line delimited JSON, so JSON is the only format. The
// interface is kept so the transport does not depend on encoding details and
// tests can inject a serializer.
//
// Usage:
//
//	s := serializer.NewJSONSerializer()
//	line, err := s.Serialize(common.NewHandshake(common.ProtocolVersion, "gamelink"))
//	// ... write line + '\n' ...
//	var msg common.Message
//	err = s.Deserialize(receivedLine, &msg)
package serializer
