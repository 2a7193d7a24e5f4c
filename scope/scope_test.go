package scope_test

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/loader/loadertest"
	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
	"github.com/wnxd/microld/scope"
)

func build(space memory.Space, name string, base uint64, setup func(b *loadertest.Builder)) *loader.Image {
	b, err := loadertest.New(space, name, base, 0x8000)
	fn.Panic(err)
	setup(b)
	image, err := b.Build()
	fn.Panic(err)
	return image
}

func TestResolve(t *testing.T) {
	space := memory.NewFlat(memory.ARCH_X86, binary.LittleEndian)
	app := build(space, "app", 0x100000, func(b *loadertest.Builder) {
		b.Define("environ", 0x5000, 4)
		b.Symbol("malloc", 0x1230, 0, elf.STB_GLOBAL, elf.STT_FUNC, elf.SHN_UNDEF)
		b.Import("free", elf.STB_GLOBAL, elf.STT_FUNC)
		b.Symbol("hidden", 0x5100, 4, elf.STB_LOCAL, elf.STT_OBJECT, 1)
	})
	libc := build(space, "libc.so", 0x200000, func(b *loadertest.Builder) {
		b.Define("environ", 0x4800, 4)
		b.Func("malloc", 0x800)
		b.Func("free", 0x900)
		b.Symbol("errno", 0x10, 4, elf.STB_GLOBAL, elf.STT_TLS, 1)
		b.Symbol("hidden", 0x5100, 4, elf.STB_GLOBAL, elf.STT_OBJECT, 1)
		b.Symbol("version", 0x3, 0, elf.STB_GLOBAL, elf.STT_OBJECT, elf.SHN_ABS)
	})
	r, err := scope.New(app, libc)
	fn.Panic(err)
	global := r.Global()

	cases := []struct {
		name  string
		class reloc.Class
		mod   loader.Module
		addr  uint64
	}{
		{"environ", reloc.ClassData, app, 0x105000},
		{"environ", reloc.ClassCopy, libc, 0x204800},
		// app's PLT stub is the canonical address of malloc for data references
		{"malloc", reloc.ClassData, app, 0x101230},
		{"malloc", reloc.ClassPLT, libc, 0x200800},
		{"free", reloc.ClassData, libc, 0x200900},
		{"errno", reloc.ClassData, libc, 0x10},
		{"hidden", reloc.ClassData, libc, 0x205100},
		{"version", reloc.ClassData, libc, 0x3},
	}
	for _, c := range cases {
		def, ok := r.Resolve(c.name, global, app, c.class)
		if !ok || def.Module != c.mod || def.Addr != c.addr {
			t.Errorf("%s/%s: got %v %#x, want %s %#x", c.name, c.class, ok, def.Addr, c.mod.Name(), c.addr)
		}
	}
	if _, ok := r.Resolve("strlen", global, app, reloc.ClassData); ok {
		t.Error("resolved an undefined name")
	}

	mod, addr, err := r.FindSymbol("free")
	if err != nil || mod != libc || addr != 0x200900 {
		t.Errorf("find symbol: %v %#x %v", mod, addr, err)
	}
}

func TestRegistry(t *testing.T) {
	space := memory.NewFlat(memory.ARCH_ARM, binary.LittleEndian)
	noop := func(*loadertest.Builder) {}
	a := build(space, "liba.so", 0x100000, noop)
	b := build(space, "libb.so", 0x200000, noop)
	r, err := scope.New(a)
	fn.Panic(err)
	fn.Panic(r.Load(b))
	fn.Panic(r.Load(b))
	if _, err := scope.New(a, build(space, "liba.so", 0x400000, noop)); !errors.Is(err, scope.ErrModuleLoaded) {
		t.Fatalf("duplicate name: %v", err)
	}

	names := r.Names()
	slices.Sort(names)
	if !slices.Equal(names, []string{"liba.so", "libb.so"}) {
		t.Fatalf("names: %v", names)
	}
	if mod, err := r.FindModule("libb.so"); err != nil || mod != b {
		t.Fatalf("find module: %v", err)
	}
	if mod, err := r.FindModuleByAddr(0x100010); err != nil || mod != a {
		t.Fatalf("find module by addr: %v", err)
	}
	if _, err := r.FindModuleByAddr(0x50); !errors.Is(err, scope.ErrModuleNotFound) {
		t.Fatalf("find module by addr: %v", err)
	}
	dup := build(space, "liba.so", 0x300000, noop)
	if err := r.Load(dup); !errors.Is(err, scope.ErrModuleLoaded) {
		t.Fatalf("duplicate name: %v", err)
	}

	var unloaded []string
	r.OnUnload(func(m loader.Module) { unloaded = append(unloaded, m.Name()) })
	r.Unload(a)
	r.Unload(a)
	if !slices.Equal(unloaded, []string{"liba.so"}) {
		t.Fatalf("unload hooks: %v", unloaded)
	}
	if global := r.Global(); len(global) != 1 || global[0] != b {
		t.Fatalf("global scope: %v", global)
	}
}
