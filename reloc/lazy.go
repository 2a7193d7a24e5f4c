package reloc

import (
	"debug/elf"
	"sync"

	"github.com/wnxd/microld/loader"
)

// PLT is a jump table prepared for lazy binding. Every slot initially
// holds the address of its stub; a call that lands on a stub is routed to
// the fixup, which binds the slot for good.
type PLT struct {
	engine *Engine
	mod    loader.Module
	table  loader.Table
	width  uint64
	// keyed by absolute slot address
	slots map[uint64]lazySlot
}

type lazySlot struct {
	// byte offset of the record in the jump table
	off  uint64
	stub uint64
}

type lazyState struct {
	mu   sync.RWMutex
	plts map[loader.Module]*PLT
}

// PrepareLazy points every jump slot of table at its stub, the load bias
// plus the link-time value of the slot. No symbol is resolved. Records
// other than the architecture's jump slot and no-op kinds are fatal.
func (e *Engine) PrepareLazy(mod loader.Module, table loader.Table) (*PLT, error) {
	if err := e.claim(table); err != nil {
		return nil, err
	}
	plt := &PLT{
		engine: e,
		mod:    mod,
		table:  table,
		width:  mod.Space().Arch().PointerSize(),
		slots:  make(map[uint64]lazySlot),
	}
	base := mod.BaseAddr()
	for ent, err := range table.Records(mod.Space(), mod.Class()) {
		if err != nil {
			return nil, e.recordError(mod, ent, "", err)
		}
		if ent.Type == e.arch.None {
			continue
		} else if ent.Type != e.arch.JumpSlot {
			rerr := e.recordError(mod, ent, "", ErrUnsupportedKind)
			rerr.Reason = "not a jump slot"
			e.opts.Logger.Printf("can't handle reloc type %#x in lib '%s': %v", ent.Type, mod.Name(), rerr.Reason)
			return nil, rerr
		}
		t, err := newTarget(mod, base+ent.Offset, plt.width)
		if err != nil {
			return nil, e.recordError(mod, ent, "", err)
		}
		word, err := t.loadSlot()
		if err != nil {
			return nil, e.recordError(mod, ent, "", err)
		}
		stub := word + base
		if plt.width == 4 {
			stub = uint64(uint32(stub))
		}
		if err = t.storeSlot(stub); err != nil {
			return nil, e.recordError(mod, ent, "", err)
		}
		if e.opts.Debug.Detail {
			e.opts.Logger.Printf("\tpatched (lazy): %#x ==> %#x @ %#x", word, stub, t.addr)
		}
		plt.slots[t.addr] = lazySlot{ent.Off, stub}
	}
	e.lazy.mu.Lock()
	if e.lazy.plts == nil {
		e.lazy.plts = make(map[loader.Module]*PLT)
	}
	e.lazy.plts[mod] = plt
	e.lazy.mu.Unlock()
	return plt, nil
}

func (e *Engine) plt(mod loader.Module) (*PLT, error) {
	e.lazy.mu.RLock()
	plt, ok := e.lazy.plts[mod]
	e.lazy.mu.RUnlock()
	if !ok {
		return nil, ErrNoJumpTable
	}
	return plt, nil
}

// Fixup binds the jump slot described by the record at byte offset off of
// mod's lazily prepared jump table and returns the resolved address. It
// may run concurrently for the same slot; every caller stores the same
// value.
func (e *Engine) Fixup(mod loader.Module, off uint64) (uint64, error) {
	plt, err := e.plt(mod)
	if err != nil {
		return 0, &Error{Module: mod.Name(), Offset: off, Err: err}
	}
	rec, err := loader.ReadRecord(mod.Space(), mod.Class(), plt.table, off)
	if err != nil {
		return 0, &Error{Module: mod.Name(), Offset: off, Err: err}
	}
	ent := loader.Entry{Off: off, Record: rec}
	if rec.Type != e.arch.JumpSlot {
		return 0, e.recordError(mod, ent, "", ErrUnsupportedKind)
	}
	sym, err := mod.Symbol(rec.Sym)
	if err != nil {
		return 0, e.recordError(mod, ent, "", err)
	}
	var scope Scope
	if e.opts.Global != nil {
		scope = e.opts.Global()
	}
	def, ok := e.resolver.Resolve(sym.Name, scope, mod, ClassPLT)
	if !ok || def.Addr == 0 {
		return 0, e.recordError(mod, ent, sym.Name, ErrUndefinedSymbol)
	}
	t, err := newTarget(mod, mod.BaseAddr()+rec.Offset, plt.width)
	if err != nil {
		return 0, e.recordError(mod, ent, sym.Name, err)
	}
	addr := def.Addr
	if e.opts.Debug.Bindings {
		defName := mod.Name()
		if def.Module != nil {
			defName = def.Module.Name()
		}
		e.opts.Logger.Printf("\tresolve function: %s", sym.Name)
		e.opts.Logger.Printf("\tbinding file %s to %s: symbol '%s'", mod.Name(), defName, sym.Name)
	}
	if e.opts.Debug.NoFixups {
		return addr, nil
	}
	old, err := t.loadSlot()
	if err != nil {
		return 0, e.recordError(mod, ent, sym.Name, err)
	}
	if err = t.storeSlot(addr); err != nil {
		return 0, e.recordError(mod, ent, sym.Name, err)
	}
	if e.opts.Debug.Detail {
		e.opts.Logger.Printf("\tpatched: %#x ==> %#x @ %#x", old, addr, t.addr)
	}
	return addr, nil
}

// Entry is the runtime surface a lazy stub calls with the module and the
// byte offset of the triggering record. A failure cannot be reported to
// anyone, so it terminates through Options.Exit.
func (e *Engine) Entry(mod loader.Module, off uint64) uint64 {
	addr, err := e.Fixup(mod, off)
	if err != nil {
		name := "?"
		if rerr, ok := err.(*Error); ok && rerr.Symbol != "" {
			name = rerr.Symbol
		}
		e.opts.Logger.Printf("can't resolve symbol '%s' in lib '%s'. (%v)", name, mod.Name(), err)
		e.opts.Exit(1)
		return 0
	}
	return addr
}

// Module returns the module the table belongs to.
func (p *PLT) Module() loader.Module {
	return p.mod
}

func (p *PLT) Table() loader.Table {
	return p.table
}

// Slots maps the module-relative offset of every lazily bound slot to the
// byte offset of its record in the jump table.
func (p *PLT) Slots() map[uint64]uint64 {
	base := p.mod.BaseAddr()
	slots := make(map[uint64]uint64, len(p.slots))
	for addr, slot := range p.slots {
		slots[addr-base] = slot.off
	}
	return slots
}

// Stub returns the address the slot at the module-relative offset held
// before it was bound.
func (p *PLT) Stub(offset uint64) (uint64, bool) {
	slot, ok := p.slots[p.mod.BaseAddr()+offset]
	return slot.stub, ok
}

// Call simulates a call through the slot at the module-relative offset
// and returns the address control ends up at. While the slot still holds
// its stub the call goes through Fixup.
func (p *PLT) Call(offset uint64) (uint64, error) {
	slot, ok := p.slots[p.mod.BaseAddr()+offset]
	if !ok {
		return 0, &Error{Module: p.mod.Name(), Offset: offset, Err: ErrNoJumpTable}
	}
	addr, err := p.mod.Space().LoadWord(p.mod.BaseAddr()+offset, p.width)
	if err != nil {
		return 0, err
	} else if addr != slot.stub {
		return addr, nil
	}
	return p.engine.Fixup(p.mod, slot.off)
}

// Bound reports how many slots no longer point at their stub.
func (p *PLT) Bound() (n int, err error) {
	for addr, slot := range p.slots {
		var word uint64
		if word, err = p.mod.Space().LoadWord(addr, p.width); err != nil {
			return
		}
		if word != slot.stub {
			n++
		}
	}
	return
}

// Lazy reports whether mod may be bound lazily when the caller asks for
// it. DT_BIND_NOW and DF_BIND_NOW force eager binding.
func Lazy(mod loader.Module, lazy bool) bool {
	if !lazy {
		return false
	}
	if _, ok := mod.DynValue(elf.DT_BIND_NOW); ok {
		return false
	}
	if flags, ok := mod.DynValue(elf.DT_FLAGS); ok && elf.DynFlag(flags)&elf.DF_BIND_NOW != 0 {
		return false
	}
	return true
}
