package encoding

import "encoding/binary"

// Stream is a cursor over a byte-addressed medium. Multi-byte fields are
// converted with the stream's byte order.
type Stream interface {
	ByteOrder() binary.ByteOrder
	Offset() uint64
	Skip(int) error
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}
