package reloc

import (
	"debug/elf"

	"github.com/wnxd/microld/loader"
)

// Scope is the ordered list of modules searched for a definition.
type Scope []loader.Module

// Definition is a resolved symbol. Addr is the runtime address, or the
// offset within the defining module's TLS block for STT_TLS symbols.
type Definition struct {
	Addr   uint64
	Module loader.Module
	Symbol elf.Symbol
}

// Resolver finds the definition of name visible to requester.
type Resolver interface {
	Resolve(name string, scope Scope, requester loader.Module, class Class) (Definition, bool)
}

type ResolverFunc func(name string, scope Scope, requester loader.Module, class Class) (Definition, bool)

func (f ResolverFunc) Resolve(name string, scope Scope, requester loader.Module, class Class) (Definition, bool) {
	return f(name, scope, requester, class)
}
