package reloc

import (
	"debug/elf"
	"fmt"
	"sync"

	"github.com/wnxd/microld/memory"
)

// Rule binds one architecture relocation type to an operation.
type Rule struct {
	Op    Op
	Class Class
	// Width of the patched word in bytes. Copy relocations ignore it.
	Width uint64
	// Reason is reported for OpDisabled kinds.
	Reason string
}

// Arch is the relocation capability table of one architecture.
type Arch struct {
	Arch memory.Arch
	// Types maps relocation type numbers to rules. Types absent from the
	// table are unsupported.
	Types map[uint32]Rule
	// JumpSlot is the type lazily bound through the PLT.
	JumpSlot uint32
	// None is the architecture's no-op type.
	None uint32
	// DTPOffAccumulates selects word += S for implicit-addend DTPOFF records
	// instead of word = S.
	DTPOffAccumulates bool
	// Name prints a relocation type.
	Name func(typ uint32) string
}

func (a *Arch) Rule(typ uint32) (Rule, bool) {
	rule, ok := a.Types[typ]
	return rule, ok
}

func (a *Arch) TypeName(typ uint32) string {
	if a.Name != nil {
		return a.Name(typ)
	}
	return fmt.Sprintf("%d", typ)
}

var (
	archMu  sync.RWMutex
	archMap = make(map[memory.Arch]*Arch)
)

// Register makes an architecture table available to Lookup. It reports
// false if the architecture was already registered.
func Register(arch *Arch) bool {
	archMu.Lock()
	defer archMu.Unlock()
	if _, ok := archMap[arch.Arch]; ok {
		return false
	}
	archMap[arch.Arch] = arch
	return true
}

func Lookup(arch memory.Arch) (*Arch, error) {
	archMu.RLock()
	defer archMu.RUnlock()
	if a, ok := archMap[arch]; ok {
		return a, nil
	}
	return nil, memory.ErrArchUnsupported
}

// MachineOf is a convenience for tables keyed by ELF machine.
func MachineOf(machine elf.Machine) (*Arch, error) {
	arch, err := memory.ArchOf(machine)
	if err != nil {
		return nil, err
	}
	return Lookup(arch)
}
