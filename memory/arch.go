package memory

import (
	"debug/elf"
	"encoding/binary"
)

type Arch int

const (
	ARCH_UNKNOWN Arch = iota
	ARCH_ARM
	ARCH_ARM64
	ARCH_X86
	ARCH_X86_64
)

func (a Arch) String() string {
	switch a {
	case ARCH_ARM:
		return "arm"
	case ARCH_ARM64:
		return "arm64"
	case ARCH_X86:
		return "386"
	case ARCH_X86_64:
		return "amd64"
	}
	return "unknown"
}

// PointerSize is the width of an address-sized word in bytes.
func (a Arch) PointerSize() uint64 {
	switch a {
	case ARCH_ARM, ARCH_X86:
		return 4
	case ARCH_ARM64, ARCH_X86_64:
		return 8
	}
	return 0
}

func (a Arch) Machine() elf.Machine {
	switch a {
	case ARCH_ARM:
		return elf.EM_ARM
	case ARCH_ARM64:
		return elf.EM_AARCH64
	case ARCH_X86:
		return elf.EM_386
	case ARCH_X86_64:
		return elf.EM_X86_64
	}
	return elf.EM_NONE
}

func ArchOf(machine elf.Machine) (Arch, error) {
	switch machine {
	case elf.EM_ARM:
		return ARCH_ARM, nil
	case elf.EM_AARCH64:
		return ARCH_ARM64, nil
	case elf.EM_386:
		return ARCH_X86, nil
	case elf.EM_X86_64:
		return ARCH_X86_64, nil
	}
	return ARCH_UNKNOWN, ErrArchUnsupported
}

func ByteOrderOf(data elf.Data) binary.ByteOrder {
	if data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
