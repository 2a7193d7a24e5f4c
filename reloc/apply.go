package reloc

import (
	"github.com/wnxd/microld/loader"
)

// Input is everything the applier needs to compute one patch.
type Input struct {
	Record loader.Record
	Rule   Rule
	// Place is the absolute address of the target (P).
	Place uint64
	// Word is the target's current contents, the implicit addend of REL
	// records.
	Word uint64
	// Base is the load bias of the module being relocated (B).
	Base uint64
	// Symbol is the resolved symbol value (S).
	Symbol uint64
	// Size is the byte count of a copy relocation.
	Size uint64
	// TLS of the defining module, valid if TLSAssigned.
	TLS         loader.TLS
	TLSAssigned bool
}

type PatchKind int

const (
	PatchNone PatchKind = iota
	PatchStore
	PatchCopy
)

// Patch is the memory change a relocation record asks for.
type Patch struct {
	Kind PatchKind
	// Value is stored in Width bytes at the target for PatchStore.
	Value uint64
	Width uint64
	// Src and Size describe the bytes copied for PatchCopy.
	Src  uint64
	Size uint64
}

// Apply computes the patch for in without touching memory.
func Apply(arch *Arch, in Input) (Patch, error) {
	rule := in.Rule
	addend := in.Word
	if in.Record.HasAddend() {
		addend = uint64(in.Record.Addend)
	}
	if rule.Op.IsTLS() && !in.TLSAssigned {
		return Patch{}, ErrTLSUnassigned
	}
	var value uint64
	switch rule.Op {
	case OpNone:
		return Patch{Kind: PatchNone}, nil
	case OpAbs:
		value = addend + in.Symbol
	case OpPCRel:
		value = addend + in.Symbol - in.Place
	case OpBind:
		value = in.Symbol
	case OpRelative:
		value = addend + in.Base
	case OpCopy:
		if in.Symbol == 0 {
			return Patch{Kind: PatchNone}, nil
		}
		return Patch{Kind: PatchCopy, Src: in.Symbol, Size: in.Size}, nil
	case OpDTPMod:
		value = in.TLS.ModID
	case OpDTPOff:
		if in.Record.HasAddend() || arch.DTPOffAccumulates {
			value = addend + in.Symbol
		} else {
			value = in.Symbol
		}
	case OpTPOff:
		value = addend + in.Symbol - in.TLS.Offset
	case OpTPOffNeg:
		value = addend + in.TLS.Offset - in.Symbol
	case OpTPOffVariant1:
		value = addend + in.Symbol + in.TLS.Offset
	case OpDisabled:
		return Patch{}, ErrDisabledKind
	default:
		return Patch{}, ErrUnsupportedKind
	}
	return Patch{Kind: PatchStore, Value: truncate(value, rule.Width), Width: rule.Width}, nil
}

func truncate(v, width uint64) uint64 {
	if width >= 8 {
		return v
	}
	return v & (1<<(width*8) - 1)
}
