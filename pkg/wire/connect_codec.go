package wire

import "fmt"

type binaryMarshaler interface {
	Marshal() ([]byte, error)
}

type binaryUnmarshaler interface {
	Unmarshal([]byte) error
}

// Codec adapts this package's hand-rolled protobuf-wire messages to
// connect.Codec, so connectrpc.com/connect's generic unary/stream handlers
// can (de)serialize them without a generated proto.Message.
type Codec struct{}

// Name matches the wire content-type ("application/proto") a real
// protoc-generated client would use, so a future switch to codegen is a
// transport-compatible no-op.
func (Codec) Name() string { return "proto" }

func (Codec) Marshal(msg any) ([]byte, error) {
	m, ok := msg.(binaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("wire: %T does not implement Marshal", msg)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, msg any) error {
	u, ok := msg.(binaryUnmarshaler)
	if !ok {
		return fmt.Errorf("wire: %T does not implement Unmarshal", msg)
	}
	return u.Unmarshal(data)
}
