package encoding

import "errors"

var (
	ErrTypeUnsupported = errors.New("type unsupported")
	ErrNotPointer      = errors.New("decode target is not a pointer")
	ErrShortBuffer     = errors.New("short buffer")
)
