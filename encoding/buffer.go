package encoding

import (
	"encoding/binary"
	"io"
)

// Buffer is an in-memory Stream, used to assemble record tables before
// they are copied into an address space.
type Buffer struct {
	order binary.ByteOrder
	data  []byte
	off   int
}

func NewBuffer(order binary.ByteOrder, data []byte) *Buffer {
	return &Buffer{order: order, data: data}
}

func (b *Buffer) ByteOrder() binary.ByteOrder {
	return b.order
}

func (b *Buffer) Offset() uint64 {
	return uint64(b.off)
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Skip(n int) error {
	if b.off+n > len(b.data) {
		b.data = append(b.data, make([]byte, b.off+n-len(b.data))...)
	}
	b.off += n
	return nil
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	if end := b.off + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.off:], p)
	b.off += n
	return n, nil
}
