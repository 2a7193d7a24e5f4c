package reloc

// Op is the architecture-neutral effect a relocation kind has on its
// target word.
type Op int

const (
	// OpNone leaves the target unchanged.
	OpNone Op = iota
	// OpAbs stores S + A.
	OpAbs
	// OpPCRel stores S + A - P.
	OpPCRel
	// OpBind stores S unconditionally (GOT entries and jump slots).
	OpBind
	// OpRelative stores B + A and needs no symbol lookup.
	OpRelative
	// OpCopy copies the definition's bytes into the target.
	OpCopy
	// OpDTPMod stores the defining module's TLS module id.
	OpDTPMod
	// OpDTPOff stores the symbol's offset within its TLS block.
	OpDTPOff
	// OpTPOff stores S - TLSOffset + A (negative offset, forward from the
	// thread pointer).
	OpTPOff
	// OpTPOffNeg stores TLSOffset - S + A (positive offset, backward from
	// the thread pointer).
	OpTPOffNeg
	// OpTPOffVariant1 stores S + TLSOffset + A (TLS variant I layouts).
	OpTPOffVariant1
	// OpDisabled is a kind the loader knows about but refuses to handle.
	OpDisabled
)

var opNames = [...]string{
	OpNone:          "none",
	OpAbs:           "absolute",
	OpPCRel:         "pc-relative",
	OpBind:          "bind",
	OpRelative:      "relative",
	OpCopy:          "copy",
	OpDTPMod:        "tls-module-id",
	OpDTPOff:        "tls-offset",
	OpTPOff:         "tls-static-forward",
	OpTPOffNeg:      "tls-static-backward",
	OpTPOffVariant1: "tls-static-variant1",
	OpDisabled:      "disabled",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

func (op Op) IsTLS() bool {
	switch op {
	case OpDTPMod, OpDTPOff, OpTPOff, OpTPOffNeg, OpTPOffVariant1:
		return true
	}
	return false
}

// Class selects the lookup preferences the resolver applies.
type Class int

const (
	ClassData Class = iota
	// ClassPLT is used for jump slots; PLT stubs of undefined functions are
	// not acceptable definitions.
	ClassPLT
	// ClassCopy is used for copy relocations, which must be satisfied by a
	// module other than the requester.
	ClassCopy
)

func (c Class) String() string {
	switch c {
	case ClassPLT:
		return "plt"
	case ClassCopy:
		return "copy"
	}
	return "data"
}
