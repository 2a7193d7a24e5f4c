package reloc_test

import (
	"debug/elf"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
)

const got = data + 0x100

// lazyModule builds libc.so defining three functions and app calling them
// through three jump slots whose link-time values point at their stubs.
func lazyModule(f *fixture) *loader.Image {
	lib := f.builder("libc.so", libBase)
	lib.Func("open", 0x400)
	lib.Func("read", 0x500)
	lib.Func("close", 0x600)
	f.load(lib)

	b := f.builder("app", exeBase)
	var records []loader.Record
	for i, name := range []string{"open", "read", "close"} {
		sym := b.Import(name, elf.STB_GLOBAL, elf.STT_FUNC)
		slot := got + uint64(i)*4
		records = append(records, rec(slot, sym, elf.R_386_JMP_SLOT))
		f.words(b, map[uint64]uint64{slot: 0x1016 + uint64(i)*0x10})
	}
	b.Table(elf.DT_JMPREL, records...)
	return f.load(b)
}

func TestLazyBinding(t *testing.T) {
	f := newFixture(memory.ARCH_X86)
	mod := lazyModule(f)
	engine := f.engine(t, reloc.Debug{Bindings: true, Detail: true})

	plt, err := engine.PrepareLazy(mod, jumpTable(t, mod))
	if err != nil {
		t.Fatal(err)
	}
	if n := f.resolver.calls.Load(); n != 0 {
		t.Fatalf("prepare resolved %d symbols", n)
	}
	for i := uint64(0); i < 3; i++ {
		if v := f.word(t, exeBase+got+i*4); v != exeBase+0x1016+i*0x10 {
			t.Fatalf("slot %d: %#x", i, v)
		}
	}
	if slots := plt.Slots(); len(slots) != 3 || slots[got+4] != 8 {
		t.Fatalf("slots: %v", slots)
	}

	addr, err := plt.Call(got + 4)
	if err != nil {
		t.Fatal(err)
	}
	if addr != libBase+0x500 {
		t.Fatalf("first call went to %#x", addr)
	}
	if n := f.resolver.calls.Load(); n != 1 {
		t.Fatalf("first call resolved %d times", n)
	}
	if v := f.word(t, exeBase+got+4); v != libBase+0x500 {
		t.Fatalf("slot not bound: %#x", v)
	}

	if addr, err = plt.Call(got + 4); err != nil || addr != libBase+0x500 {
		t.Fatalf("second call: %#x, %v", addr, err)
	}
	if n := f.resolver.calls.Load(); n != 1 {
		t.Fatalf("second call resolved again (%d)", n)
	}
	if n, err := plt.Bound(); err != nil || n != 1 {
		t.Fatalf("bound slots: %d, %v", n, err)
	}
	if !strings.Contains(f.logs.String(), "binding file app to libc.so: symbol 'read'") {
		t.Fatalf("missing binding trace: %q", f.logs.String())
	}
}

func TestLazyConcurrentFirstCall(t *testing.T) {
	f := newFixture(memory.ARCH_X86)
	mod := lazyModule(f)
	engine := f.engine(t, reloc.Debug{})
	plt, err := engine.PrepareLazy(mod, jumpTable(t, mod))
	if err != nil {
		t.Fatal(err)
	}

	const callers = 16
	var wg sync.WaitGroup
	addrs := make([]uint64, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addrs[i], errs[i] = plt.Call(got)
		}()
	}
	wg.Wait()
	for i := range callers {
		if errs[i] != nil || addrs[i] != libBase+0x400 {
			t.Fatalf("caller %d: %#x, %v", i, addrs[i], errs[i])
		}
	}
	if n := f.resolver.calls.Load(); n < 1 || n > callers {
		t.Fatalf("resolved %d times", n)
	}
	if v := f.word(t, exeBase+got); v != libBase+0x400 {
		t.Fatalf("slot: %#x", v)
	}
}

func TestLazyEntryFailureExits(t *testing.T) {
	f := newFixture(memory.ARCH_X86)
	b := f.builder("app", exeBase)
	sym := b.Import("nowhere", elf.STB_WEAK, elf.STT_FUNC)
	f.words(b, map[uint64]uint64{got: 0x1016})
	b.Table(elf.DT_JMPREL, rec(got, sym, elf.R_386_JMP_SLOT))
	mod := f.load(b)
	engine := f.engine(t, reloc.Debug{})
	if _, err := engine.PrepareLazy(mod, jumpTable(t, mod)); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Fixup(mod, 0); !errors.Is(err, reloc.ErrUndefinedSymbol) {
		t.Fatalf("fixup: %v", err)
	}
	if addr := engine.Entry(mod, 0); addr != 0 {
		t.Fatalf("entry returned %#x", addr)
	}
	if len(f.exit) != 1 || f.exit[0] != 1 {
		t.Fatalf("exit codes: %v", f.exit)
	}
	if !strings.Contains(f.logs.String(), "can't resolve symbol 'nowhere' in lib 'app'") {
		t.Fatalf("missing diagnostic: %q", f.logs.String())
	}
	if v := f.word(t, exeBase+got); v != exeBase+0x1016 {
		t.Fatalf("slot changed: %#x", v)
	}
}

func TestLazyRejectsDataRecords(t *testing.T) {
	f := newFixture(memory.ARCH_X86)
	b := f.builder("app", exeBase)
	b.Table(elf.DT_JMPREL,
		rec(got, 0, elf.R_386_NONE),
		rec(got+4, 0, elf.R_386_RELATIVE),
	)
	mod := f.load(b)

	_, err := f.engine(t, reloc.Debug{}).PrepareLazy(mod, jumpTable(t, mod))
	if !errors.Is(err, reloc.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
	if n := f.resolver.calls.Load(); n != 0 {
		t.Fatalf("resolved %d symbols", n)
	}
}

func TestLazyNoFixups(t *testing.T) {
	f := newFixture(memory.ARCH_X86)
	mod := lazyModule(f)
	engine := f.engine(t, reloc.Debug{NoFixups: true})
	plt, err := engine.PrepareLazy(mod, jumpTable(t, mod))
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if addr, err := plt.Call(got + 8); err != nil || addr != libBase+0x600 {
			t.Fatalf("call: %#x, %v", addr, err)
		}
	}
	if n := f.resolver.calls.Load(); n != 2 {
		t.Fatalf("want a resolution per call, got %d", n)
	}
	if n, _ := plt.Bound(); n != 0 {
		t.Fatalf("%d slots bound", n)
	}
}

func TestRelocateLazy(t *testing.T) {
	f := newFixture(memory.ARCH_X86)
	mod := lazyModule(f)
	engine := f.engine(t, reloc.Debug{})

	failures, plt, err := engine.Relocate(mod, f.registry.Global(), true)
	if err != nil || failures != 0 || plt == nil {
		t.Fatalf("relocate: %d, %v, %v", failures, plt, err)
	}
	if addr := engine.Entry(mod, 16); addr != libBase+0x600 {
		t.Fatalf("entry: %#x", addr)
	}
	if v := f.word(t, exeBase+got+8); v != libBase+0x600 {
		t.Fatalf("slot: %#x", v)
	}
	if _, err := engine.Fixup(mod, ^uint64(7)); !errors.Is(err, loader.ErrTableInvalid) {
		t.Fatalf("wrapped offset: %v", err)
	}
	if v := f.word(t, exeBase+got); v != exeBase+0x1016 {
		t.Fatalf("slot 0: %#x", v)
	}
	engine.Forget(mod)
	if _, err := engine.Fixup(mod, 16); !errors.Is(err, reloc.ErrNoJumpTable) {
		t.Fatalf("fixup after forget: %v", err)
	}
}
