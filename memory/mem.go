package memory

import (
	"encoding/binary"
	"io"
)

type MemProt int

const (
	MEM_PROT_NONE MemProt = 0
	MEM_PROT_READ MemProt = 1 << (iota - 1)
	MEM_PROT_WRITE
	MEM_PROT_EXEC

	MEM_PROT_ALL = MEM_PROT_READ | MEM_PROT_WRITE | MEM_PROT_EXEC
)

type MemRegion struct {
	Addr, Size uint64
	Prot       MemProt
}

func (r MemRegion) End() uint64 {
	return r.Addr + r.Size
}

// Contains reports whether [addr, addr+size) lies inside the region.
func (r MemRegion) Contains(addr, size uint64) bool {
	if addr < r.Addr || addr+size < addr {
		return false
	}
	return addr+size <= r.End()
}

// Space is the address space loaded modules live in. Word stores and loads
// are single atomic-width accesses and require natural alignment.
type Space interface {
	io.Closer
	Arch() Arch
	ByteOrder() binary.ByteOrder
	PageSize() uint64
	MemMap(addr, size uint64, prot MemProt) error
	MemUnmap(addr, size uint64) error
	MemRegions() ([]MemRegion, error)
	MemRead(addr, size uint64) ([]byte, error)
	MemReadAt(addr uint64, b []byte) error
	MemWrite(addr uint64, data []byte) error
	LoadWord(addr, width uint64) (uint64, error)
	StoreWord(addr, width, value uint64) error
}
