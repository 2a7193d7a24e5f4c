package reloc

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedKind  = errors.New("unsupported relocation kind")
	ErrDisabledKind     = errors.New("disabled relocation kind")
	ErrUndefinedSymbol  = errors.New("undefined symbol")
	ErrTLSUnassigned    = errors.New("tls assignment missing")
	ErrOutOfBounds      = errors.New("relocation target out of bounds")
	ErrAlreadyRelocated = errors.New("relocation table already processed")
	ErrNoJumpTable      = errors.New("module has no jump relocation table")
)

// Error describes a relocation record that could not be applied.
type Error struct {
	Module string
	Symbol string
	Type   uint32
	Name   string
	Offset uint64
	Reason string
	Err    error
}

func (e *Error) category() string {
	switch {
	case errors.Is(e.Err, ErrUnsupportedKind):
		return "Unsupported"
	case errors.Is(e.Err, ErrDisabledKind):
		return "Disabled"
	case errors.Is(e.Err, ErrUndefinedSymbol):
		return "Undefined"
	case errors.Is(e.Err, ErrTLSUnassigned):
		return "TLS"
	case errors.Is(e.Err, ErrOutOfBounds):
		return "Bounds"
	}
	return "Fault"
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] lib: %s", e.category(), e.Module)
	if e.Symbol != "" {
		s += fmt.Sprintf(", symbol: %s", e.Symbol)
	}
	s += fmt.Sprintf(", type: %s(%#x), offset: %08X", e.Name, e.Type, e.Offset)
	if e.Reason != "" {
		return s + ", " + e.Reason
	}
	return s + ", " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must stop a relocation pass. Only undefined
// strong symbols are survivable.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrUndefinedSymbol)
}
