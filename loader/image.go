package loader

import (
	"debug/elf"
	"sync"
	"sync/atomic"

	"github.com/wnxd/microld/encoding"
	"github.com/wnxd/microld/memory"
)

// Image is a Module whose dynamic section, symbol table and string table
// live in a memory.Space. Symbols are decoded on first use.
type Image struct {
	name    string
	space   memory.Space
	class   elf.Class
	base    uint64
	region  memory.MemRegion
	dynamic map[elf.DynTag][]uint64
	tls     atomic.Pointer[TLS]

	mu      sync.Mutex
	symbols map[uint32]elf.Symbol
	hashed  bool
	count   uint32
	hash    *hashTable
	gnuHash *gnuHashTable
}

var _ Module = (*Image)(nil)

// NewImage describes a module already mapped at base in space. Dynamic
// values are module-relative, as they appear in the file.
func NewImage(space memory.Space, name string, base uint64, region memory.MemRegion, dynamic map[elf.DynTag][]uint64) *Image {
	m := &Image{
		name:    name,
		space:   space,
		class:   ClassOf(space.Arch()),
		base:    base,
		region:  region,
		dynamic: dynamic,
		symbols: make(map[uint32]elf.Symbol),
	}
	if m.name == "" {
		if off, ok := m.DynValue(elf.DT_SONAME); ok {
			m.name, _ = m.String(uint32(off))
		}
	}
	return m
}

func (m *Image) Name() string {
	return m.name
}

func (m *Image) Space() memory.Space {
	return m.space
}

func (m *Image) Class() elf.Class {
	return m.class
}

func (m *Image) BaseAddr() uint64 {
	return m.base
}

func (m *Image) Region() (uint64, uint64) {
	return m.region.Addr, m.region.Size
}

func (m *Image) DynValue(tag elf.DynTag) (uint64, bool) {
	if v := m.dynamic[tag]; len(v) != 0 {
		return v[0], true
	}
	return 0, false
}

func (m *Image) DynValues(tag elf.DynTag) []uint64 {
	return m.dynamic[tag]
}

// Needed lists the DT_NEEDED names in file order.
func (m *Image) Needed() []string {
	var needed []string
	for _, off := range m.dynamic[elf.DT_NEEDED] {
		if name, err := m.String(uint32(off)); err == nil {
			needed = append(needed, name)
		}
	}
	return needed
}

// AssignTLS records the module's TLS placement. It is set by whoever lays
// out thread-local storage, before relocation.
func (m *Image) AssignTLS(modid, offset uint64) {
	m.tls.Store(&TLS{ModID: modid, Offset: offset})
}

func (m *Image) TLS() (TLS, bool) {
	if t := m.tls.Load(); t != nil {
		return *t, true
	}
	return TLS{}, false
}

// String reads a NUL-terminated name from the dynamic string table.
func (m *Image) String(off uint32) (string, error) {
	strtab, ok := m.DynValue(elf.DT_STRTAB)
	if !ok {
		return "", ErrNoSymbolTable
	}
	if size, ok := m.DynValue(elf.DT_STRSZ); ok && uint64(off) >= size {
		return "", ErrSymbolIndex
	}
	return memory.ToPointer(m.space, m.base+strtab+uint64(off)).MemReadString()
}

func (m *Image) Symbol(index uint32) (elf.Symbol, error) {
	m.mu.Lock()
	sym, ok := m.symbols[index]
	m.mu.Unlock()
	if ok {
		return sym, nil
	}
	symtab, ok := m.DynValue(elf.DT_SYMTAB)
	if !ok {
		return elf.Symbol{}, ErrNoSymbolTable
	}
	if count, err := m.SymbolCount(); err != nil {
		return elf.Symbol{}, err
	} else if count != 0 && index >= count {
		return elf.Symbol{}, ErrSymbolIndex
	}
	ent, ok := m.DynValue(elf.DT_SYMENT)
	if !ok {
		ent = m.symEnt()
	}
	stream := memory.PointerStream(memory.ToPointer(m.space, m.base+symtab+uint64(index)*ent))
	var name uint32
	switch m.class {
	case elf.ELFCLASS32:
		var raw elf.Sym32
		if err := encoding.Decode(stream, &raw); err != nil {
			return elf.Symbol{}, err
		}
		name = raw.Name
		sym = elf.Symbol{Info: raw.Info, Other: raw.Other, Section: elf.SectionIndex(raw.Shndx), Value: uint64(raw.Value), Size: uint64(raw.Size)}
	case elf.ELFCLASS64:
		var raw elf.Sym64
		if err := encoding.Decode(stream, &raw); err != nil {
			return elf.Symbol{}, err
		}
		name = raw.Name
		sym = elf.Symbol{Info: raw.Info, Other: raw.Other, Section: elf.SectionIndex(raw.Shndx), Value: raw.Value, Size: raw.Size}
	default:
		return elf.Symbol{}, ErrClassInvalid
	}
	if name != 0 {
		var err error
		if sym.Name, err = m.String(name); err != nil {
			return elf.Symbol{}, err
		}
	}
	m.mu.Lock()
	m.symbols[index] = sym
	m.mu.Unlock()
	return sym, nil
}

// SymbolCount is the number of dynamic symbols, taken from the hash
// tables. Zero means unknown.
func (m *Image) SymbolCount() (uint32, error) {
	if _, _, err := m.hashTables(); err != nil {
		return 0, err
	}
	return m.count, nil
}

func (m *Image) Lookup(name string) (elf.Symbol, error) {
	hash, gnuHash, err := m.hashTables()
	if err != nil {
		return elf.Symbol{}, err
	}
	switch {
	case gnuHash != nil:
		return m.findGNUHashSymbol(gnuHash, name)
	case hash != nil:
		return m.findHashSymbol(hash, name)
	}
	return elf.Symbol{}, ErrSymbolNotFound
}

func (m *Image) hashTables() (*hashTable, *gnuHashTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashed {
		return m.hash, m.gnuHash, nil
	}
	hash, err := m.loadHash()
	if err != nil {
		return nil, nil, err
	}
	gnuHash, err := m.loadGNUHash()
	if err != nil {
		return nil, nil, err
	}
	var count uint32
	switch {
	case hash != nil:
		count = hash.nchain
	case gnuHash != nil:
		if count, err = m.gnuSymbolCount(gnuHash); err != nil {
			return nil, nil, err
		}
	}
	m.hash, m.gnuHash, m.count, m.hashed = hash, gnuHash, count, true
	return hash, gnuHash, nil
}

func (m *Image) symEnt() uint64 {
	if m.class == elf.ELFCLASS32 {
		return 16
	}
	return 24
}

func (m *Image) wordSize() uint64 {
	if m.class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

func (m *Image) word32(addr uint64) (uint32, error) {
	var b [4]byte
	if err := m.space.MemReadAt(addr, b[:]); err != nil {
		return 0, err
	}
	return m.space.ByteOrder().Uint32(b[:]), nil
}

func (m *Image) wordN(addr uint64) (uint64, error) {
	if m.wordSize() == 4 {
		v, err := m.word32(addr)
		return uint64(v), err
	}
	var b [8]byte
	if err := m.space.MemReadAt(addr, b[:]); err != nil {
		return 0, err
	}
	return m.space.ByteOrder().Uint64(b[:]), nil
}
