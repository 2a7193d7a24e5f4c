package loader

import "errors"

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrSymbolIndex    = errors.New("symbol index out of range")
	ErrNoDynamic      = errors.New("no dynamic section")
	ErrNoSymbolTable  = errors.New("no symbol table")
	ErrClassInvalid   = errors.New("elf class invalid")
	ErrTableInvalid   = errors.New("relocation table invalid")
)
