package memory

import (
	"encoding/binary"

	"github.com/wnxd/microld/encoding"
)

type pointerStream struct {
	ptr Pointer
}

// PointerStream returns an encoding.Stream that reads and writes the space
// sequentially starting at ptr.
func PointerStream(ptr Pointer) encoding.Stream {
	return &pointerStream{ptr}
}

func (ps *pointerStream) ByteOrder() binary.ByteOrder {
	return ps.ptr.space.ByteOrder()
}

func (ps *pointerStream) Offset() uint64 {
	return ps.ptr.Address()
}

func (ps *pointerStream) Skip(n int) error {
	ps.ptr = ps.ptr.Add(uint64(n))
	return nil
}

func (ps *pointerStream) Read(b []byte) (int, error) {
	n, err := ps.ptr.ReadAt(b, 0)
	if err == nil {
		ps.Skip(n)
	}
	return n, err
}

func (ps *pointerStream) Write(b []byte) (int, error) {
	n, err := ps.ptr.WriteAt(b, 0)
	if err == nil {
		ps.Skip(n)
	}
	return n, err
}
