package loader_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/wnxd/microld/encoding"
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/loader/loadertest"
	"github.com/wnxd/microld/memory"
)

func TestImageSymbols(t *testing.T) {
	for _, arch := range []memory.Arch{memory.ARCH_X86, memory.ARCH_X86_64} {
		t.Run(arch.String(), func(t *testing.T) {
			space := memory.NewFlat(arch, binary.LittleEndian)
			b, err := loadertest.New(space, "libsym.so", 0x100000, 0x8000)
			fn.Panic(err)
			b.Define("counter", 0x5000, 8)
			b.Func("tick", 0x1200)
			b.Import("abort", elf.STB_WEAK, elf.STT_FUNC)
			image, err := b.Build()
			fn.Panic(err)

			if n, err := image.SymbolCount(); err != nil || n != 4 {
				t.Fatalf("symbol count: %d, %v", n, err)
			}
			sym, err := image.Symbol(2)
			if err != nil || sym.Name != "tick" || sym.Value != 0x1200 || elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
				t.Fatalf("symbol 2: %+v, %v", sym, err)
			}
			if _, err = image.Symbol(4); !errors.Is(err, loader.ErrSymbolIndex) {
				t.Fatalf("symbol 4: %v", err)
			}
			for _, name := range []string{"counter", "tick", "abort"} {
				if sym, err = image.Lookup(name); err != nil || sym.Name != name {
					t.Fatalf("lookup %s: %+v, %v", name, sym, err)
				}
			}
			if _, err = image.Lookup("missing"); !errors.Is(err, loader.ErrSymbolNotFound) {
				t.Fatalf("lookup missing: %v", err)
			}
			if _, ok := image.TLS(); ok {
				t.Fatal("tls assigned")
			}
			image.AssignTLS(1, 0x20)
			if tls, ok := image.TLS(); !ok || tls != (loader.TLS{ModID: 1, Offset: 0x20}) {
				t.Fatalf("tls: %+v", tls)
			}
		})
	}
}

func TestImageWithoutHash(t *testing.T) {
	space := memory.NewFlat(memory.ARCH_ARM, binary.LittleEndian)
	b, err := loadertest.New(space, "libnohash.so", 0x100000, 0)
	fn.Panic(err)
	b.Define("counter", 0x5000, 8)
	b.NoHash()
	image, err := b.Build()
	fn.Panic(err)

	if sym, err := image.Symbol(1); err != nil || sym.Name != "counter" {
		t.Fatalf("symbol 1: %+v, %v", sym, err)
	}
	if _, err := image.Lookup("counter"); !errors.Is(err, loader.ErrSymbolNotFound) {
		t.Fatalf("lookup without hash table: %v", err)
	}
}

func TestTableRecords(t *testing.T) {
	space := memory.NewFlat(memory.ARCH_X86_64, binary.LittleEndian)
	b, err := loadertest.New(space, "librec.so", 0x100000, 0)
	fn.Panic(err)
	want := []loader.Record{
		{Offset: 0x5000, Sym: 1, Type: uint32(elf.R_X86_64_64), Addend: -8},
		{Offset: 0x5008, Type: uint32(elf.R_X86_64_RELATIVE), Addend: 0x40},
	}
	b.Table(elf.DT_RELA, want...)
	image, err := b.Build()
	fn.Panic(err)

	addr, _ := image.DynValue(elf.DT_RELA)
	size, _ := image.DynValue(elf.DT_RELASZ)
	table := loader.Table{Addr: image.BaseAddr() + addr, Size: size, Shape: loader.SHAPE_RELA}
	if n := table.Len(image.Class()); n != 2 {
		t.Fatalf("len %d", n)
	}
	var got []loader.Record
	for ent, err := range table.Records(space, image.Class()) {
		if err != nil {
			t.Fatal(err)
		}
		if ent.Off != uint64(len(got))*24 {
			t.Fatalf("entry offset %d", ent.Off)
		}
		got = append(got, ent.Record)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("records: %+v", got)
	}
	if _, err = loader.ReadRecord(space, image.Class(), table, 12); !errors.Is(err, loader.ErrTableInvalid) {
		t.Fatalf("unaligned record: %v", err)
	}
	if _, err = loader.ReadRecord(space, image.Class(), table, 48); !errors.Is(err, loader.ErrTableInvalid) {
		t.Fatalf("record past end: %v", err)
	}
	if _, err = loader.ReadRecord(space, image.Class(), table, ^uint64(15)); !errors.Is(err, loader.ErrTableInvalid) {
		t.Fatalf("wrapped offset: %v", err)
	}

	wild := loader.Table{Addr: 0x900000, Size: 16}
	var errs int
	for _, err := range wild.Records(space, elf.ELFCLASS64) {
		if err == nil {
			t.Fatal("read unmapped record")
		}
		errs++
	}
	if errs != 1 {
		t.Fatalf("%d errors yielded", errs)
	}

	table.Size += 8
	errs = 0
	for ent, err := range table.Records(space, image.Class()) {
		if !errors.Is(err, loader.ErrTableInvalid) {
			t.Fatalf("truncated table yielded %+v, %v", ent, err)
		}
		errs++
	}
	if errs != 1 {
		t.Fatalf("%d errors yielded", errs)
	}
}

// tinyObject is a minimal ELF32 shared object: one PT_LOAD covering the
// file and a PT_DYNAMIC naming its string table and soname.
func tinyObject() []byte {
	const (
		phoff  = 52
		dynoff = 120
		stroff = 0x100
	)
	strtab := []byte("\x00libtiny.so\x00")
	size := uint32(stroff + len(strtab))
	buf := encoding.NewBuffer(binary.LittleEndian, nil)
	hdr := elf.Header32{
		Type: uint16(elf.ET_DYN), Machine: uint16(elf.EM_386), Version: uint32(elf.EV_CURRENT),
		Phoff: phoff, Ehsize: 52, Phentsize: 32, Phnum: 2, Shentsize: 40,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	fn.Panic(encoding.Encode(buf, &hdr))
	fn.Panic(encoding.Encode(buf, &elf.Prog32{Type: uint32(elf.PT_LOAD), Filesz: size, Memsz: 0x2000, Flags: uint32(elf.PF_R | elf.PF_W), Align: 0x1000}))
	fn.Panic(encoding.Encode(buf, &elf.Prog32{Type: uint32(elf.PT_DYNAMIC), Off: dynoff, Vaddr: dynoff, Filesz: 32, Memsz: 32, Flags: uint32(elf.PF_R | elf.PF_W), Align: 4}))
	fn.Panic(buf.Skip(dynoff - phoff - 64))
	for _, dyn := range []elf.Dyn32{
		{Tag: int32(elf.DT_SONAME), Val: 1},
		{Tag: int32(elf.DT_STRTAB), Val: stroff},
		{Tag: int32(elf.DT_STRSZ), Val: uint32(len(strtab))},
		{Tag: int32(elf.DT_NULL)},
	} {
		fn.Panic(encoding.Encode(buf, &dyn))
	}
	fn.Panic(buf.Skip(stroff - dynoff - 32))
	_, err := buf.Write(strtab)
	fn.Panic(err)
	return buf.Bytes()
}

func TestMap(t *testing.T) {
	space := memory.NewFlat(memory.ARCH_X86, binary.LittleEndian)
	image, err := loader.Map(space, "", bytes.NewReader(tinyObject()), 0x400000)
	if err != nil {
		t.Fatal(err)
	}
	if image.Name() != "libtiny.so" {
		t.Fatalf("name %q", image.Name())
	}
	if begin, size := image.Region(); begin != 0x400000 || size != 0x2000 {
		t.Fatalf("region %#x+%#x", begin, size)
	}
	if v, ok := image.DynValue(elf.DT_STRSZ); !ok || v != 12 {
		t.Fatalf("DT_STRSZ %d", v)
	}
	if !loader.Contains(image, 0x401ffc, 4) || loader.Contains(image, 0x401ffc, 8) {
		t.Fatal("contains")
	}

	other := memory.NewFlat(memory.ARCH_ARM, binary.LittleEndian)
	if _, err = loader.Map(other, "", bytes.NewReader(tinyObject()), 0x400000); !errors.Is(err, memory.ErrArchMismatch) {
		t.Fatalf("arch mismatch: %v", err)
	}
}
