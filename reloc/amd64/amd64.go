// Package amd64 registers the relocation kinds of x86-64. Its tables use
// explicit addends.
package amd64

import (
	"debug/elf"

	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
)

var Arch = &reloc.Arch{
	Arch: memory.ARCH_X86_64,
	Types: map[uint32]reloc.Rule{
		uint32(elf.R_X86_64_NONE):      {Op: reloc.OpNone},
		uint32(elf.R_X86_64_64):        {Op: reloc.OpAbs, Width: 8},
		uint32(elf.R_X86_64_PC32):      {Op: reloc.OpPCRel, Width: 4},
		uint32(elf.R_X86_64_GLOB_DAT):  {Op: reloc.OpBind, Width: 8},
		uint32(elf.R_X86_64_JMP_SLOT):  {Op: reloc.OpBind, Class: reloc.ClassPLT, Width: 8},
		uint32(elf.R_X86_64_RELATIVE):  {Op: reloc.OpRelative, Width: 8},
		uint32(elf.R_X86_64_COPY):      {Op: reloc.OpCopy, Class: reloc.ClassCopy},
		uint32(elf.R_X86_64_DTPMOD64):  {Op: reloc.OpDTPMod, Class: reloc.ClassPLT, Width: 8},
		uint32(elf.R_X86_64_DTPOFF64):  {Op: reloc.OpDTPOff, Class: reloc.ClassPLT, Width: 8},
		uint32(elf.R_X86_64_TPOFF64):   {Op: reloc.OpTPOff, Class: reloc.ClassPLT, Width: 8},
		uint32(elf.R_X86_64_IRELATIVE): {Op: reloc.OpDisabled, Width: 8, Reason: "R_X86_64_IRELATIVE: indirect functions are not supported"},
	},
	JumpSlot: uint32(elf.R_X86_64_JMP_SLOT),
	None:     uint32(elf.R_X86_64_NONE),
	Name: func(typ uint32) string {
		return elf.R_X86_64(typ).String()
	},
}

var _ = reloc.Register(Arch)
