// Package scope keeps the modules of a process in load order and resolves
// symbol references against them.
package scope

import (
	"debug/elf"
	"slices"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/reloc"
)

// Registry is the global scope: every loaded module, in load order.
type Registry struct {
	mu     sync.RWMutex
	loaded []loader.Module
	byName map[string]loader.Module
	// called after a module leaves the registry
	unload []func(loader.Module)
}

// New loads modules in order. It fails with ErrModuleLoaded when two
// different modules share a name.
func New(modules ...loader.Module) (*Registry, error) {
	r := &Registry{byName: make(map[string]loader.Module)}
	for _, module := range modules {
		if err := r.Load(module); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// OnUnload registers fn to run after a module is unloaded, typically
// reloc.Engine.Forget.
func (r *Registry) OnUnload(fn func(loader.Module)) {
	r.mu.Lock()
	r.unload = append(r.unload, fn)
	r.mu.Unlock()
}

func (r *Registry) Load(module loader.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.loaded, module) {
		return nil
	} else if _, ok := r.byName[module.Name()]; ok {
		return ErrModuleLoaded
	}
	r.loaded = append(r.loaded, module)
	r.byName[module.Name()] = module
	return nil
}

func (r *Registry) Unload(module loader.Module) {
	r.mu.Lock()
	n := len(r.loaded)
	r.loaded = slices.DeleteFunc(r.loaded, func(m loader.Module) bool { return m == module })
	removed := len(r.loaded) != n
	if removed {
		delete(r.byName, module.Name())
	}
	hooks := slices.Clone(r.unload)
	r.mu.Unlock()
	if removed {
		for _, hook := range hooks {
			hook(module)
		}
	}
}

func (r *Registry) FindModule(name string) (loader.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if module, ok := r.byName[name]; ok {
		return module, nil
	}
	return nil, ErrModuleNotFound
}

func (r *Registry) FindModuleByAddr(addr uint64) (loader.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, module := range r.loaded {
		begin, size := module.Region()
		if addr >= begin && addr < begin+size {
			return module, nil
		}
	}
	return nil, ErrModuleNotFound
}

// FindSymbol returns the first module defining name and the symbol's
// runtime address.
func (r *Registry) FindSymbol(name string) (loader.Module, uint64, error) {
	def, ok := r.Resolve(name, r.Global(), nil, reloc.ClassData)
	if !ok {
		return nil, 0, ErrSymbolNotFound
	}
	return def.Module, def.Addr, nil
}

// Names lists the loaded module names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn.MapKeys(r.byName)
}

// Global returns a snapshot of the load-order scope.
func (r *Registry) Global() reloc.Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.loaded)
}

// Resolve searches scope in order. Undefined entries never satisfy a
// reference, except that a data reference may bind to the PLT stub a
// module uses as the canonical address of an imported function. Copy
// relocations are never satisfied by the requesting module itself.
func (r *Registry) Resolve(name string, scope reloc.Scope, requester loader.Module, class reloc.Class) (reloc.Definition, bool) {
	for _, module := range scope {
		if class == reloc.ClassCopy && module == requester {
			continue
		}
		sym, err := module.Lookup(name)
		if err != nil {
			continue
		}
		switch elf.ST_BIND(sym.Info) {
		case elf.STB_GLOBAL, elf.STB_WEAK:
		default:
			continue
		}
		if sym.Section == elf.SHN_UNDEF {
			if class != reloc.ClassData || elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
				continue
			}
		}
		addr := sym.Value
		if elf.ST_TYPE(sym.Info) != elf.STT_TLS && sym.Section != elf.SHN_ABS {
			addr += module.BaseAddr()
		}
		return reloc.Definition{Addr: addr, Module: module, Symbol: sym}, true
	}
	return reloc.Definition{}, false
}

var _ reloc.Resolver = (*Registry)(nil)
