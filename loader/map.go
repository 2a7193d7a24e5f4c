package loader

import (
	"debug/elf"
	"io"

	"github.com/wnxd/microld/encoding"
	"github.com/wnxd/microld/memory"
)

// Map maps the loadable segments of the ELF object read from r into space
// with load bias base and returns its descriptor. Executables (ET_EXEC)
// are always mapped at their link addresses.
func Map(space memory.Space, name string, r io.ReaderAt, base uint64) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	if f.Class != ClassOf(space.Arch()) || f.Machine != space.Arch().Machine() {
		return nil, memory.ErrArchMismatch
	}
	if f.Type == elf.ET_EXEC {
		base = 0
	}
	regions := Regions(f)
	if len(regions) == 0 {
		return nil, ErrNoDynamic
	}
	page := space.PageSize()
	lo, hi := ^uint64(0), uint64(0)
	var prot memory.MemProt
	for _, r := range regions {
		lo = min(lo, memory.AlignDown(r.Addr, page))
		hi = max(hi, memory.Align(r.Addr+r.Size, page))
		prot |= r.Prot
	}
	extent := memory.MemRegion{Addr: base + lo, Size: hi - lo, Prot: prot}
	if err = space.MemMap(extent.Addr, extent.Size, extent.Prot); err != nil {
		return nil, err
	}
	for _, r := range regions {
		if r.Length == 0 {
			continue
		}
		data := make([]byte, r.Length)
		if _, err = r.ReadAt(data, 0); err != nil && err != io.EOF {
			space.MemUnmap(extent.Addr, extent.Size)
			return nil, err
		}
		if err = space.MemWrite(base+r.Addr, data); err != nil {
			space.MemUnmap(extent.Addr, extent.Size)
			return nil, err
		}
	}
	var dynamic map[elf.DynTag][]uint64
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_DYNAMIC {
			dynamic, err = parseDynamic(space, base+prog.Vaddr, prog.Memsz)
			break
		}
	}
	if err != nil {
		space.MemUnmap(extent.Addr, extent.Size)
		return nil, err
	} else if dynamic == nil {
		space.MemUnmap(extent.Addr, extent.Size)
		return nil, ErrNoDynamic
	}
	return NewImage(space, name, base, extent, dynamic), nil
}

func parseDynamic(space memory.Space, addr, size uint64) (map[elf.DynTag][]uint64, error) {
	dynamic := make(map[elf.DynTag][]uint64)
	stream := memory.PointerStream(memory.ToPointer(space, addr))
	class := ClassOf(space.Arch())
	for stream.Offset() < addr+size {
		var tag elf.DynTag
		var val uint64
		switch class {
		case elf.ELFCLASS32:
			var dyn elf.Dyn32
			if err := encoding.Decode(stream, &dyn); err != nil {
				return nil, err
			}
			tag, val = elf.DynTag(dyn.Tag), uint64(dyn.Val)
		default:
			var dyn elf.Dyn64
			if err := encoding.Decode(stream, &dyn); err != nil {
				return nil, err
			}
			tag, val = elf.DynTag(dyn.Tag), dyn.Val
		}
		if tag == elf.DT_NULL {
			break
		}
		dynamic[tag] = append(dynamic[tag], val)
	}
	return dynamic, nil
}
