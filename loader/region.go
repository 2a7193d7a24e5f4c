package loader

import (
	"debug/elf"
	"io"

	"github.com/wnxd/microld/memory"
)

// Region is a loadable segment: Size bytes of memory at module-relative
// Addr, the first Length of which come from the file.
type Region struct {
	Addr, Size    uint64
	Length, Align uint64
	Prot          memory.MemProt
	io.ReaderAt
}

func Regions(f *elf.File) []Region {
	var regions []Region
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		regions = append(regions, Region{
			Addr:     prog.Vaddr,
			Size:     prog.Memsz,
			Length:   prog.Filesz,
			Align:    prog.Align,
			Prot:     progProt(prog.Flags),
			ReaderAt: prog.ReaderAt,
		})
	}
	return regions
}

func progProt(flags elf.ProgFlag) memory.MemProt {
	var prot memory.MemProt
	if flags&elf.PF_R != 0 {
		prot |= memory.MEM_PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= memory.MEM_PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= memory.MEM_PROT_EXEC
	}
	return prot
}
