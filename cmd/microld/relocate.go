package main

import (
	"debug/elf"
	"fmt"
	"log"
	"path/filepath"
	"slices"

	"github.com/ZenLiuCN/fn"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
	"github.com/wnxd/microld/config"
	"github.com/wnxd/microld/internal/mapfile"
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
	"github.com/wnxd/microld/scope"
)

type object struct {
	path  string
	image *loader.Image
	// PT_TLS memory size and alignment, zero without TLS
	tlsSize, tlsAlign uint64
}

func loadConfig(ctx *cli.Context) config.Config {
	cfg := config.FromEnv()
	if ctx.IsSet("debug") {
		cfg.Debug = config.ParseDebug(ctx.String("debug"))
	}
	if ctx.Bool("now") {
		cfg.BindNow = true
	}
	return cfg
}

// mapObjects maps every path into one flat space, page aligned one after
// another from base.
func mapObjects(paths []string, base uint64) (*memory.Flat, []object, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("missing objects")
	}
	var space *memory.Flat
	objects := make([]object, 0, len(paths))
	for _, path := range paths {
		obj, err := mapObject(&space, path, base)
		if err != nil {
			if space != nil {
				fn.IgnoreClose(space)
			}
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		_, size := obj.image.Region()
		base = memory.Align(base+size, space.PageSize())
		objects = append(objects, obj)
	}
	return space, objects, nil
}

func mapObject(space **memory.Flat, path string, base uint64) (obj object, err error) {
	mf, err := mapfile.Open(path)
	if err != nil {
		return
	}
	defer fn.IgnoreClose(mf)
	f, err := elf.NewFile(mf)
	if err != nil {
		return
	}
	if *space == nil {
		var arch memory.Arch
		if arch, err = memory.ArchOf(f.Machine); err != nil {
			return
		}
		*space = memory.NewFlat(arch, memory.ByteOrderOf(f.Data))
	}
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_TLS {
			obj.tlsSize, obj.tlsAlign = prog.Memsz, max(prog.Align, 1)
		}
	}
	obj.path = path
	obj.image, err = loader.Map(*space, filepath.Base(path), mf, base)
	return
}

// assignTLS lays the static TLS blocks out below the thread pointer, the
// way variant II architectures do, or above it for variant I.
func assignTLS(space memory.Space, objects []object) {
	var offset, modid uint64
	variant1 := space.Arch() == memory.ARCH_ARM || space.Arch() == memory.ARCH_ARM64
	if variant1 {
		// thread control block
		offset = 2 * space.Arch().PointerSize()
	}
	for _, obj := range objects {
		if obj.tlsSize == 0 {
			continue
		}
		modid++
		if variant1 {
			offset = memory.Align(offset, obj.tlsAlign)
			obj.image.AssignTLS(modid, offset)
			offset += obj.tlsSize
		} else {
			offset = memory.Align(offset+obj.tlsSize, obj.tlsAlign)
			obj.image.AssignTLS(modid, offset)
		}
	}
}

func relocate(ctx *cli.Context) error {
	cfg := loadConfig(ctx)
	space, objects, err := mapObjects(ctx.Args().Slice(), ctx.Uint64("base"))
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(space)
	assignTLS(space, objects)

	registry, err := scope.New()
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err = registry.Load(obj.image); err != nil {
			return fmt.Errorf("%s: %w", obj.path, err)
		}
	}
	opts := cfg.Options()
	opts.Global = registry.Global
	arch, err := reloc.Lookup(space.Arch())
	if err != nil {
		return err
	}
	engine := reloc.New(arch, registry, opts)
	registry.OnUnload(engine.Forget)

	var plts []*reloc.PLT
	var failures int
	// dependencies come after their users; relocate them first
	for _, obj := range slices.Backward(objects) {
		if ctx.Bool("dump") {
			dumpTables(obj.image)
		}
		n, plt, err := engine.Relocate(obj.image, registry.Global(), !cfg.BindNow)
		failures += n
		if err != nil {
			return err
		}
		if plt != nil {
			plts = append(plts, plt)
		}
		log.Printf("%s: relocated at %#x, %d unresolved", obj.image.Name(), obj.image.BaseAddr(), n)
	}
	if ctx.Bool("call") {
		for _, plt := range plts {
			for offset := range plt.Slots() {
				addr, err := plt.Call(offset)
				if err != nil {
					return err
				}
				log.Printf("%s: slot %#x -> %#x", plt.Module().Name(), offset, addr)
			}
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d symbols could not be resolved", failures)
	}
	return nil
}

func dumpTables(mod loader.Module) {
	tables, jump := reloc.Tables(mod)
	if jump != nil {
		tables = append(tables, *jump)
	}
	for _, table := range tables {
		var records []loader.Record
		for ent, err := range table.Records(mod.Space(), mod.Class()) {
			if err != nil {
				log.Printf("%s: %v", mod.Name(), err)
				break
			}
			records = append(records, ent.Record)
		}
		log.Printf("%s: %s table @ %#x", mod.Name(), table.Shape, table.Addr)
		spew.Dump(records)
	}
}
