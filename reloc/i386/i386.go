// Package i386 registers the relocation kinds of 32-bit x86.
package i386

import (
	"debug/elf"

	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
)

var Arch = &reloc.Arch{
	Arch: memory.ARCH_X86,
	Types: map[uint32]reloc.Rule{
		uint32(elf.R_386_NONE):         {Op: reloc.OpNone},
		uint32(elf.R_386_32):           {Op: reloc.OpAbs, Width: 4},
		uint32(elf.R_386_PC32):         {Op: reloc.OpPCRel, Width: 4},
		uint32(elf.R_386_GLOB_DAT):     {Op: reloc.OpBind, Width: 4},
		uint32(elf.R_386_JMP_SLOT):     {Op: reloc.OpBind, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_386_RELATIVE):     {Op: reloc.OpRelative, Width: 4},
		uint32(elf.R_386_COPY):         {Op: reloc.OpCopy, Class: reloc.ClassCopy},
		uint32(elf.R_386_TLS_DTPMOD32): {Op: reloc.OpDTPMod, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_386_TLS_DTPOFF32): {Op: reloc.OpDTPOff, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_386_TLS_TPOFF32):  {Op: reloc.OpTPOffNeg, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_386_TLS_TPOFF):    {Op: reloc.OpTPOff, Class: reloc.ClassPLT, Width: 4},
	},
	JumpSlot: uint32(elf.R_386_JMP_SLOT),
	None:     uint32(elf.R_386_NONE),
	Name: func(typ uint32) string {
		return elf.R_386(typ).String()
	},
}

var _ = reloc.Register(Arch)
