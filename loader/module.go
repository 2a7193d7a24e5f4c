package loader

import (
	"debug/elf"

	"github.com/wnxd/microld/memory"
)

// Module is a mapped shared object as seen by the relocation engine. It is
// owned by the loader; relocation only borrows it for the length of a pass.
type Module interface {
	Name() string
	Space() memory.Space
	Class() elf.Class
	// BaseAddr is the load bias added to every module-relative address.
	BaseAddr() uint64
	// Region is the mapped extent of the module.
	Region() (uint64, uint64)
	DynValue(tag elf.DynTag) (uint64, bool)
	Symbol(index uint32) (elf.Symbol, error)
	Lookup(name string) (elf.Symbol, error)
	TLS() (TLS, bool)
}

// TLS locates a module's thread-local block: the dynamic TLS module id and
// the offset of its block in the static TLS area.
type TLS struct {
	ModID  uint64
	Offset uint64
}

func ClassOf(arch memory.Arch) elf.Class {
	switch arch.PointerSize() {
	case 4:
		return elf.ELFCLASS32
	case 8:
		return elf.ELFCLASS64
	}
	return elf.ELFCLASSNONE
}

// Contains reports whether [addr, addr+size) falls inside the module's
// mapped extent.
func Contains(m Module, addr, size uint64) bool {
	begin, length := m.Region()
	return memory.MemRegion{Addr: begin, Size: length}.Contains(addr, size)
}
