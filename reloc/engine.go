package reloc

import (
	"debug/elf"
	"errors"
	"log"
	"os"
	"sync"

	"github.com/wnxd/microld/loader"
)

// Debug selects diagnostic output. None of it changes behaviour except
// NoFixups, which makes lazy resolution leave the slot untouched.
type Debug struct {
	Reloc    bool
	Bindings bool
	Detail   bool
	NoFixups bool
}

type Options struct {
	Logger *log.Logger
	Debug  Debug
	// Exit terminates the process after an unrecoverable lazy binding
	// failure. Defaults to os.Exit.
	Exit func(code int)
	// Global returns the scope lazy bindings are resolved against.
	Global func() Scope
}

// Engine applies relocation tables for one architecture. A table is
// processed at most once; the target words are not safe to relocate twice.
type Engine struct {
	arch     *Arch
	resolver Resolver
	opts     Options
	mu       sync.Mutex
	done     map[uint64]struct{}
	lazy     lazyState
}

func New(arch *Arch, resolver Resolver, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "", 0)
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Engine{
		arch:     arch,
		resolver: resolver,
		opts:     opts,
		done:     make(map[uint64]struct{}),
	}
}

// ForModule returns an engine for the architecture mod is mapped for.
func ForModule(mod loader.Module, resolver Resolver, opts Options) (*Engine, error) {
	arch, err := Lookup(mod.Space().Arch())
	if err != nil {
		return nil, err
	}
	return New(arch, resolver, opts), nil
}

func (e *Engine) Arch() *Arch {
	return e.arch
}

// Forget drops the processed-table marks of mod so that a module mapped
// again at the same place can be relocated. Call it only after unmapping.
func (e *Engine) Forget(mod loader.Module) {
	begin, size := mod.Region()
	e.mu.Lock()
	for addr := range e.done {
		if addr >= begin && addr < begin+size {
			delete(e.done, addr)
		}
	}
	e.mu.Unlock()
	e.lazy.mu.Lock()
	delete(e.lazy.plts, mod)
	e.lazy.mu.Unlock()
}

func (e *Engine) claim(table loader.Table) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.done[table.Addr]; ok {
		return ErrAlreadyRelocated
	}
	e.done[table.Addr] = struct{}{}
	return nil
}

// Walk applies every record of table to mod, resolving symbols in scope.
// It returns the number of records whose strong symbol could not be
// resolved; those are reported and skipped. A non-nil error is fatal: the
// walk stopped at the offending record and the later ones were not applied.
func (e *Engine) Walk(mod loader.Module, scope Scope, table loader.Table) (int, error) {
	if err := e.claim(table); err != nil {
		return 0, err
	}
	var failures int
	for ent, err := range table.Records(mod.Space(), mod.Class()) {
		if err == nil {
			err = e.apply(mod, scope, ent)
		} else {
			err = e.recordError(mod, ent, "", err)
		}
		if err == nil {
			continue
		}
		var rerr *Error
		if !errors.As(err, &rerr) {
			rerr = &Error{Module: mod.Name(), Err: err}
		}
		if !IsFatal(err) {
			e.opts.Logger.Printf("symbol '%s': can't resolve symbol in lib '%s'.", rerr.Symbol, rerr.Module)
			failures++
			continue
		}
		if rerr.Symbol != "" {
			e.opts.Logger.Printf("symbol '%s': can't handle reloc type %#x in lib '%s': %v", rerr.Symbol, rerr.Type, rerr.Module, rerr.Err)
		} else {
			e.opts.Logger.Printf("can't handle reloc type %#x in lib '%s': %v", rerr.Type, rerr.Module, rerr.Err)
		}
		return failures, err
	}
	return failures, nil
}

func (e *Engine) apply(mod loader.Module, scope Scope, ent loader.Entry) error {
	rule, ok := e.arch.Rule(ent.Type)
	if !ok {
		return e.recordError(mod, ent, "", ErrUnsupportedKind)
	} else if rule.Op == OpNone {
		return nil
	} else if rule.Op == OpDisabled {
		err := e.recordError(mod, ent, "", ErrDisabledKind)
		err.Reason = rule.Reason
		return err
	}
	sym, err := mod.Symbol(ent.Sym)
	if err != nil {
		return e.recordError(mod, ent, "", err)
	}
	base := mod.BaseAddr()
	in := Input{Record: ent.Record, Rule: rule, Place: base + ent.Offset, Base: base}
	defMod := mod
	var defSym elf.Symbol
	if ent.Sym != 0 {
		def, found := e.resolver.Resolve(sym.Name, scope, mod, rule.Class)
		if !found {
			// undefined weak references are legitimate and bind to zero
			if elf.ST_TYPE(sym.Info) != elf.STT_TLS && elf.ST_BIND(sym.Info) != elf.STB_WEAK {
				return e.recordError(mod, ent, sym.Name, ErrUndefinedSymbol)
			}
		} else {
			in.Symbol, defSym = def.Addr, def.Symbol
			if def.Module != nil {
				defMod = def.Module
			}
		}
	} else {
		in.Symbol = sym.Value
	}
	if rule.Op.IsTLS() {
		in.TLS, in.TLSAssigned = defMod.TLS()
	}
	width := rule.Width
	if rule.Op == OpCopy {
		in.Size = defSym.Size
		if sym.Size != 0 && sym.Size < in.Size {
			e.opts.Logger.Printf("symbol '%s': copy size %d of lib '%s' exceeds reference size %d", sym.Name, defSym.Size, defMod.Name(), sym.Size)
			in.Size = sym.Size
		}
		width = in.Size
		if in.Symbol == 0 || width == 0 {
			return nil
		}
	}
	t, err := newTarget(mod, in.Place, width)
	if err != nil {
		return e.recordError(mod, ent, sym.Name, err)
	}
	if !ent.HasAddend() && rule.Op != OpCopy {
		if in.Word, err = t.load(); err != nil {
			return e.recordError(mod, ent, sym.Name, err)
		}
	}
	if e.opts.Debug.Reloc {
		e.opts.Logger.Printf("\t%s %s @ %#x symbol '%s' = %#x", e.arch.TypeName(ent.Type), rule.Op, in.Place, sym.Name, in.Symbol)
	}
	patch, err := Apply(e.arch, in)
	if err != nil {
		return e.recordError(mod, ent, sym.Name, err)
	}
	switch patch.Kind {
	case PatchStore:
		err = t.store(patch.Value)
		if err == nil && e.opts.Debug.Detail {
			e.opts.Logger.Printf("\tpatched: %#x ==> %#x @ %#x", in.Word, patch.Value, in.Place)
		}
	case PatchCopy:
		err = t.copyFrom(defMod.Space(), patch.Src)
		if err == nil && e.opts.Debug.Detail {
			e.opts.Logger.Printf("\t%s move %d bytes from %#x to %#x", sym.Name, patch.Size, patch.Src, in.Place)
		}
	}
	if err != nil {
		return e.recordError(mod, ent, sym.Name, err)
	}
	return nil
}

func (e *Engine) recordError(mod loader.Module, ent loader.Entry, symbol string, err error) *Error {
	return &Error{
		Module: mod.Name(),
		Symbol: symbol,
		Type:   ent.Type,
		Name:   e.arch.TypeName(ent.Type),
		Offset: ent.Offset,
		Err:    err,
	}
}

// Tables returns the relocation tables named by mod's dynamic section: the
// REL and RELA tables and the jump table. A jump table that trails the
// main table inside its range is cut out of the main table.
func Tables(mod loader.Module) (main []loader.Table, jump *loader.Table) {
	base := mod.BaseAddr()
	if addr, ok := mod.DynValue(elf.DT_JMPREL); ok {
		size, _ := mod.DynValue(elf.DT_PLTRELSZ)
		shape, _ := mod.DynValue(elf.DT_PLTREL)
		jump = &loader.Table{Addr: base + addr, Size: size, Shape: loader.ShapeOf(elf.DynTag(shape))}
	}
	for _, dt := range [...]struct {
		addr, size elf.DynTag
		shape      loader.Shape
	}{
		{elf.DT_REL, elf.DT_RELSZ, loader.SHAPE_REL},
		{elf.DT_RELA, elf.DT_RELASZ, loader.SHAPE_RELA},
	} {
		addr, ok := mod.DynValue(dt.addr)
		if !ok {
			continue
		}
		size, _ := mod.DynValue(dt.size)
		t := loader.Table{Addr: base + addr, Size: size, Shape: dt.shape}
		if jump != nil && jump.Shape == t.Shape && jump.Addr >= t.Addr && jump.Addr+jump.Size == t.Addr+t.Size {
			t.Size = jump.Addr - t.Addr
		}
		if t.Size != 0 {
			main = append(main, t)
		}
	}
	return
}

// Relocate processes all of mod's relocation tables. With lazy set, and
// unless mod itself asks to be bound now, the jump table is prepared for
// binding on first call instead of being bound now and the returned PLT
// is non-nil.
func (e *Engine) Relocate(mod loader.Module, scope Scope, lazy bool) (int, *PLT, error) {
	main, jump := Tables(mod)
	var failures int
	for _, t := range main {
		n, err := e.Walk(mod, scope, t)
		failures += n
		if err != nil {
			return failures, nil, err
		}
	}
	if jump == nil || jump.Size == 0 {
		return failures, nil, nil
	}
	if Lazy(mod, lazy) {
		plt, err := e.PrepareLazy(mod, *jump)
		return failures, plt, err
	}
	n, err := e.Walk(mod, scope, *jump)
	return failures + n, nil, err
}
