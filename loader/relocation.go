package loader

import (
	"debug/elf"
	"iter"

	"github.com/wnxd/microld/encoding"
	"github.com/wnxd/microld/memory"
)

// Shape is the on-disk layout of a relocation table.
type Shape int

const (
	// SHAPE_REL records carry no addend; it is the word at the target.
	SHAPE_REL Shape = iota
	// SHAPE_RELA records carry an explicit addend.
	SHAPE_RELA
)

func (s Shape) String() string {
	if s == SHAPE_RELA {
		return "RELA"
	}
	return "REL"
}

// ShapeOf maps a DT_PLTREL value to a table shape.
func ShapeOf(tag elf.DynTag) Shape {
	if tag == elf.DT_RELA {
		return SHAPE_RELA
	}
	return SHAPE_REL
}

// Record is one decoded relocation entry. Offset is module-relative.
type Record struct {
	Offset uint64
	Sym    uint32
	Type   uint32
	Addend int64
	Shape  Shape
}

func (r Record) HasAddend() bool {
	return r.Shape == SHAPE_RELA
}

// Table is a relocation table located in a module's memory. Addr is an
// absolute address in the module's space.
type Table struct {
	Addr, Size uint64
	Shape      Shape
}

func (t Table) EntSize(class elf.Class) uint64 {
	switch {
	case class == elf.ELFCLASS32 && t.Shape == SHAPE_REL:
		return 8
	case class == elf.ELFCLASS32:
		return 12
	case class == elf.ELFCLASS64 && t.Shape == SHAPE_REL:
		return 16
	case class == elf.ELFCLASS64:
		return 24
	}
	return 0
}

func (t Table) Len(class elf.Class) int {
	ent := t.EntSize(class)
	if ent == 0 {
		return 0
	}
	return int(t.Size / ent)
}

// ReadRecord decodes the record at byte offset off of the table.
func ReadRecord(space memory.Space, class elf.Class, t Table, off uint64) (Record, error) {
	ent := t.EntSize(class)
	if ent == 0 {
		return Record{}, ErrClassInvalid
	} else if off%ent != 0 || off > t.Size || t.Size-off < ent {
		return Record{}, ErrTableInvalid
	}
	stream := memory.PointerStream(memory.ToPointer(space, t.Addr+off))
	switch class {
	case elf.ELFCLASS32:
		if t.Shape == SHAPE_RELA {
			var rel elf.Rela32
			if err := encoding.Decode(stream, &rel); err != nil {
				return Record{}, err
			}
			return Record{uint64(rel.Off), elf.R_SYM32(rel.Info), elf.R_TYPE32(rel.Info), int64(rel.Addend), t.Shape}, nil
		}
		var rel elf.Rel32
		if err := encoding.Decode(stream, &rel); err != nil {
			return Record{}, err
		}
		return Record{uint64(rel.Off), elf.R_SYM32(rel.Info), elf.R_TYPE32(rel.Info), 0, t.Shape}, nil
	default:
		if t.Shape == SHAPE_RELA {
			var rel elf.Rela64
			if err := encoding.Decode(stream, &rel); err != nil {
				return Record{}, err
			}
			return Record{rel.Off, elf.R_SYM64(rel.Info), elf.R_TYPE64(rel.Info), rel.Addend, t.Shape}, nil
		}
		var rel elf.Rel64
		if err := encoding.Decode(stream, &rel); err != nil {
			return Record{}, err
		}
		return Record{rel.Off, elf.R_SYM64(rel.Info), elf.R_TYPE64(rel.Info), 0, t.Shape}, nil
	}
}

// Entry is a record together with its byte offset in the table.
type Entry struct {
	Off uint64
	Record
}

// Records iterates the table in order. A decode error is yielded once and
// ends the iteration.
func (t Table) Records(space memory.Space, class elf.Class) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		ent := t.EntSize(class)
		if ent == 0 {
			yield(Entry{}, ErrClassInvalid)
			return
		}
		if t.Size%ent != 0 {
			yield(Entry{}, ErrTableInvalid)
			return
		}
		for off := uint64(0); off < t.Size; off += ent {
			rec, err := ReadRecord(space, class, t, off)
			if !yield(Entry{off, rec}, err) || err != nil {
				return
			}
		}
	}
}

// WriteRecord encodes rec in the layout of class and rec.Shape.
func WriteRecord(stream encoding.Stream, class elf.Class, rec Record) error {
	switch class {
	case elf.ELFCLASS32:
		info := elf.R_INFO32(rec.Sym, rec.Type)
		if rec.Shape == SHAPE_RELA {
			return encoding.Encode(stream, &elf.Rela32{Off: uint32(rec.Offset), Info: info, Addend: int32(rec.Addend)})
		}
		return encoding.Encode(stream, &elf.Rel32{Off: uint32(rec.Offset), Info: info})
	case elf.ELFCLASS64:
		info := elf.R_INFO(rec.Sym, rec.Type)
		if rec.Shape == SHAPE_RELA {
			return encoding.Encode(stream, &elf.Rela64{Off: rec.Offset, Info: info, Addend: rec.Addend})
		}
		return encoding.Encode(stream, &elf.Rel64{Off: rec.Offset, Info: info})
	}
	return ErrClassInvalid
}
