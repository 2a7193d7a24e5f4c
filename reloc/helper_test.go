package reloc_test

import (
	"bytes"
	"encoding/binary"
	"log"
	"sync/atomic"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/loader/loadertest"
	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
	_ "github.com/wnxd/microld/reloc/amd64"
	_ "github.com/wnxd/microld/reloc/arm"
	_ "github.com/wnxd/microld/reloc/i386"
	"github.com/wnxd/microld/scope"
)

const (
	exeBase = 0x100000
	libBase = 0x200000
	modSize = 0x8000
	data    = loadertest.MetaSize
)

func must[T any](v T, err error) T {
	fn.Panic(err)
	return v
}

type countingResolver struct {
	reloc.Resolver
	calls atomic.Int32
}

func (r *countingResolver) Resolve(name string, s reloc.Scope, requester loader.Module, class reloc.Class) (reloc.Definition, bool) {
	r.calls.Add(1)
	return r.Resolver.Resolve(name, s, requester, class)
}

type fixture struct {
	space    *memory.Flat
	registry *scope.Registry
	resolver *countingResolver
	logs     *bytes.Buffer
	exit     []int
}

func newFixture(arch memory.Arch) *fixture {
	f := &fixture{
		space:    memory.NewFlat(arch, binary.LittleEndian),
		registry: must(scope.New()),
		logs:     new(bytes.Buffer),
	}
	f.resolver = &countingResolver{Resolver: f.registry}
	return f
}

func (f *fixture) builder(name string, base uint64) *loadertest.Builder {
	return must(loadertest.New(f.space, name, base, modSize))
}

// load builds the module and appends it to the global scope.
func (f *fixture) load(b *loadertest.Builder) *loader.Image {
	image := must(b.Build())
	fn.Panic(f.registry.Load(image))
	return image
}

func (f *fixture) engine(t *testing.T, debug reloc.Debug) *reloc.Engine {
	arch, err := reloc.Lookup(f.space.Arch())
	if err != nil {
		t.Fatal(err)
	}
	return reloc.New(arch, f.resolver, reloc.Options{
		Logger: log.New(f.logs, "", 0),
		Debug:  debug,
		Exit:   func(code int) { f.exit = append(f.exit, code) },
		Global: f.registry.Global,
	})
}

func (f *fixture) word(t *testing.T, addr uint64) uint64 {
	t.Helper()
	v, err := f.space.LoadWord(addr, f.space.Arch().PointerSize())
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func (f *fixture) words(b *loadertest.Builder, values map[uint64]uint64) {
	for off, v := range values {
		fn.Panic(b.Word(off, v))
	}
}

// mainTable returns the only non-jump relocation table of mod.
func mainTable(t *testing.T, mod loader.Module) loader.Table {
	t.Helper()
	tables, _ := reloc.Tables(mod)
	if len(tables) != 1 {
		t.Fatalf("want one relocation table, got %d", len(tables))
	}
	return tables[0]
}

func jumpTable(t *testing.T, mod loader.Module) loader.Table {
	t.Helper()
	_, jump := reloc.Tables(mod)
	if jump == nil {
		t.Fatal("no jump table")
	}
	return *jump
}
