// Package mapfile gives read-only random access to a whole file.
package mapfile

import (
	"errors"
	"io"
)

var ErrClosed = errors.New("mapfile: file closed")

// File is a read-only view of a file's bytes.
type File struct {
	data  []byte
	unmap func([]byte) error
}

func (f *File) Len() int {
	return len(f.data)
}

func (f *File) Bytes() []byte {
	return f.data
}

func (f *File) ReadAt(b []byte, off int64) (int, error) {
	if f.data == nil {
		return 0, ErrClosed
	} else if off < 0 || off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(b, f.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) Close() error {
	data := f.data
	f.data = nil
	if data == nil || f.unmap == nil {
		return nil
	}
	return f.unmap(data)
}
