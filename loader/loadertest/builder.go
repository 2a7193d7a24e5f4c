// Package loadertest builds synthetic modules directly in a memory.Space
// for tests that need a symbol table and relocation tables without an ELF
// file on disk.
package loadertest

import (
	"debug/elf"

	"github.com/wnxd/microld/encoding"
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/memory"
)

// MetaSize is the part of a built module reserved for its dynamic data.
// Offsets at or above MetaSize are free for the test's own words.
const MetaSize = 0x4000

type symbol struct {
	name    string
	value   uint64
	size    uint64
	info    uint8
	section elf.SectionIndex
}

type table struct {
	tag     elf.DynTag
	shape   loader.Shape
	records []loader.Record
}

// Builder accumulates symbols and relocation records of one module.
type Builder struct {
	space   memory.Space
	name    string
	base    uint64
	size    uint64
	symbols []symbol
	tables  []table
	noHash  bool
}

// New maps [base, base+size) read-write in space for a module called name.
func New(space memory.Space, name string, base, size uint64) (*Builder, error) {
	size = memory.Align(max(size, MetaSize+space.PageSize()), space.PageSize())
	if err := space.MemMap(base, size, memory.MEM_PROT_READ|memory.MEM_PROT_WRITE); err != nil {
		return nil, err
	}
	return &Builder{space: space, name: name, base: base, size: size, symbols: []symbol{{}}}, nil
}

func (b *Builder) Base() uint64 {
	return b.base
}

// Symbol appends a symbol and returns its index.
func (b *Builder) Symbol(name string, value, size uint64, bind elf.SymBind, typ elf.SymType, section elf.SectionIndex) uint32 {
	b.symbols = append(b.symbols, symbol{name, value, size, elf.ST_INFO(bind, typ), section})
	return uint32(len(b.symbols) - 1)
}

// Define adds a global data object defined at the module-relative value.
func (b *Builder) Define(name string, value, size uint64) uint32 {
	return b.Symbol(name, value, size, elf.STB_GLOBAL, elf.STT_OBJECT, 1)
}

// Func adds a global function defined at the module-relative value.
func (b *Builder) Func(name string, value uint64) uint32 {
	return b.Symbol(name, value, 0, elf.STB_GLOBAL, elf.STT_FUNC, 1)
}

// Import adds an undefined reference.
func (b *Builder) Import(name string, bind elf.SymBind, typ elf.SymType) uint32 {
	return b.Symbol(name, 0, 0, bind, typ, elf.SHN_UNDEF)
}

// Table adds a relocation table. tag is DT_REL, DT_RELA or DT_JMPREL; the
// jump table shape comes from the records.
func (b *Builder) Table(tag elf.DynTag, records ...loader.Record) {
	shape := loader.SHAPE_REL
	if tag == elf.DT_RELA || tag == elf.DT_JMPREL && len(records) != 0 && records[0].Shape == loader.SHAPE_RELA {
		shape = loader.SHAPE_RELA
	}
	for i := range records {
		records[i].Shape = shape
	}
	b.tables = append(b.tables, table{tag, shape, records})
}

// NoHash leaves DT_HASH out, so the module cannot be searched by name.
func (b *Builder) NoHash() {
	b.noHash = true
}

// Word stores a pointer-sized value at the module-relative offset.
func (b *Builder) Word(offset, value uint64) error {
	return b.space.StoreWord(b.base+offset, b.space.Arch().PointerSize(), value)
}

func (b *Builder) Bytes(offset uint64, data []byte) error {
	return b.space.MemWrite(b.base+offset, data)
}

// Build lays out the string, symbol, hash and relocation tables and
// returns the module descriptor.
func (b *Builder) Build() (*loader.Image, error) {
	class := loader.ClassOf(b.space.Arch())
	dynamic := make(map[elf.DynTag][]uint64)
	cursor := uint64(0)
	put := func(v any) (uint64, error) {
		off := memory.Align(cursor, 8)
		stream := memory.PointerStream(memory.ToPointer(b.space, b.base+off))
		if err := encoding.Encode(stream, v); err != nil {
			return 0, err
		}
		cursor = stream.Offset() - b.base
		return off, nil
	}

	strtab := []byte{0}
	names := make([]uint32, len(b.symbols))
	for i, sym := range b.symbols[1:] {
		names[i+1] = uint32(len(strtab))
		strtab = append(append(strtab, sym.name...), 0)
	}
	if err := b.Bytes(cursor, strtab); err != nil {
		return nil, err
	}
	dynamic[elf.DT_STRTAB] = []uint64{cursor}
	dynamic[elf.DT_STRSZ] = []uint64{uint64(len(strtab))}
	cursor += uint64(len(strtab))

	for i, sym := range b.symbols {
		var off uint64
		var err error
		if class == elf.ELFCLASS32 {
			off, err = put(&elf.Sym32{Name: names[i], Value: uint32(sym.value), Size: uint32(sym.size), Info: sym.info, Shndx: uint16(sym.section)})
		} else {
			off, err = put(&elf.Sym64{Name: names[i], Value: sym.value, Size: sym.size, Info: sym.info, Shndx: uint16(sym.section)})
		}
		if err != nil {
			return nil, err
		}
		if i == 0 {
			dynamic[elf.DT_SYMTAB] = []uint64{off}
		}
	}

	if !b.noHash {
		// one bucket, chained from the last symbol down to the first
		n := uint32(len(b.symbols))
		hash := make([]uint32, 2+1+n)
		hash[0], hash[1], hash[2] = 1, n, n-1
		for i := uint32(1); i < n; i++ {
			hash[3+i] = i - 1
		}
		off := memory.Align(cursor, 8)
		raw := make([]byte, 4*len(hash))
		for i, v := range hash {
			b.space.ByteOrder().PutUint32(raw[4*i:], v)
		}
		if err := b.Bytes(off, raw); err != nil {
			return nil, err
		}
		dynamic[elf.DT_HASH] = []uint64{off}
		cursor = off + uint64(len(raw))
	}

	for _, t := range b.tables {
		start := memory.Align(cursor, 8)
		cursor = start
		for _, rec := range t.records {
			stream := memory.PointerStream(memory.ToPointer(b.space, b.base+cursor))
			if err := loader.WriteRecord(stream, class, rec); err != nil {
				return nil, err
			}
			cursor = stream.Offset() - b.base
		}
		size := cursor - start
		switch t.tag {
		case elf.DT_REL:
			dynamic[elf.DT_REL], dynamic[elf.DT_RELSZ] = []uint64{start}, []uint64{size}
		case elf.DT_RELA:
			dynamic[elf.DT_RELA], dynamic[elf.DT_RELASZ] = []uint64{start}, []uint64{size}
		case elf.DT_JMPREL:
			pltrel := uint64(elf.DT_REL)
			if t.shape == loader.SHAPE_RELA {
				pltrel = uint64(elf.DT_RELA)
			}
			dynamic[elf.DT_JMPREL], dynamic[elf.DT_PLTRELSZ], dynamic[elf.DT_PLTREL] = []uint64{start}, []uint64{size}, []uint64{pltrel}
		}
	}
	if cursor > MetaSize {
		return nil, loader.ErrTableInvalid
	}
	return loader.NewImage(b.space, b.name, b.base, memory.MemRegion{Addr: b.base, Size: b.size, Prot: memory.MEM_PROT_READ | memory.MEM_PROT_WRITE}, dynamic), nil
}
