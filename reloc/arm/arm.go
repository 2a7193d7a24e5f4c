// Package arm registers the relocation kinds of 32-bit ARM.
package arm

import (
	"debug/elf"

	"github.com/wnxd/microld/memory"
	"github.com/wnxd/microld/reloc"
)

var Arch = &reloc.Arch{
	Arch: memory.ARCH_ARM,
	Types: map[uint32]reloc.Rule{
		uint32(elf.R_ARM_NONE):         {Op: reloc.OpNone},
		uint32(elf.R_ARM_ABS32):        {Op: reloc.OpAbs, Width: 4},
		uint32(elf.R_ARM_PC24):         {Op: reloc.OpDisabled, Width: 4, Reason: "R_ARM_PC24: compile shared libraries with -fPIC"},
		uint32(elf.R_ARM_GLOB_DAT):     {Op: reloc.OpBind, Width: 4},
		uint32(elf.R_ARM_JUMP_SLOT):    {Op: reloc.OpBind, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_ARM_RELATIVE):     {Op: reloc.OpRelative, Width: 4},
		uint32(elf.R_ARM_COPY):         {Op: reloc.OpCopy, Class: reloc.ClassCopy},
		uint32(elf.R_ARM_TLS_DTPMOD32): {Op: reloc.OpDTPMod, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_ARM_TLS_DTPOFF32): {Op: reloc.OpDTPOff, Class: reloc.ClassPLT, Width: 4},
		uint32(elf.R_ARM_TLS_TPOFF32):  {Op: reloc.OpTPOffVariant1, Class: reloc.ClassPLT, Width: 4},
	},
	JumpSlot:          uint32(elf.R_ARM_JUMP_SLOT),
	None:              uint32(elf.R_ARM_NONE),
	DTPOffAccumulates: true,
	Name: func(typ uint32) string {
		return elf.R_ARM(typ).String()
	},
}

var _ = reloc.Register(Arch)
