package scope

import "errors"

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrModuleLoaded   = errors.New("module already loaded")
	ErrSymbolNotFound = errors.New("symbol not found")
)
