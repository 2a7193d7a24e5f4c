package memory

import "errors"

var (
	ErrArchUnsupported  = errors.New("architecture unsupported")
	ErrArchMismatch     = errors.New("architecture mismatch")
	ErrAddressInvalid   = errors.New("address invalid")
	ErrAddressUnaligned = errors.New("address unaligned")
	ErrRegionOverlap    = errors.New("region overlap")
	ErrWidthInvalid     = errors.New("word width invalid")
)
