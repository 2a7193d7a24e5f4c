package reloc

import (
	"github.com/wnxd/microld/loader"
	"github.com/wnxd/microld/memory"
)

// target is a patch location proven to lie inside the mapped extent of
// the module it belongs to. It is the only way the engine writes memory.
type target struct {
	space memory.Space
	addr  uint64
	size  uint64
}

func newTarget(mod loader.Module, addr, size uint64) (target, error) {
	if size == 0 || !loader.Contains(mod, addr, size) {
		return target{}, ErrOutOfBounds
	}
	return target{mod.Space(), addr, size}, nil
}

func (t target) load() (uint64, error) {
	var raw [8]byte
	if t.size > uint64(len(raw)) {
		return 0, memory.ErrWidthInvalid
	}
	if err := t.space.MemReadAt(t.addr, raw[:t.size]); err != nil {
		return 0, err
	}
	order := t.space.ByteOrder()
	switch t.size {
	case 1:
		return uint64(raw[0]), nil
	case 2:
		return uint64(order.Uint16(raw[:])), nil
	case 4:
		return uint64(order.Uint32(raw[:])), nil
	case 8:
		return order.Uint64(raw[:]), nil
	}
	return 0, memory.ErrWidthInvalid
}

func (t target) store(value uint64) error {
	var raw [8]byte
	order := t.space.ByteOrder()
	switch t.size {
	case 1:
		raw[0] = byte(value)
	case 2:
		order.PutUint16(raw[:], uint16(value))
	case 4:
		order.PutUint32(raw[:], uint32(value))
	case 8:
		order.PutUint64(raw[:], value)
	default:
		return memory.ErrWidthInvalid
	}
	return t.space.MemWrite(t.addr, raw[:t.size])
}

// storeSlot replaces a GOT/PLT slot with one atomic-width store, so a
// concurrent caller never observes a torn address.
func (t target) storeSlot(value uint64) error {
	return t.space.StoreWord(t.addr, t.size, value)
}

func (t target) loadSlot() (uint64, error) {
	return t.space.LoadWord(t.addr, t.size)
}

func (t target) copyFrom(src memory.Space, addr uint64) error {
	data, err := src.MemRead(addr, t.size)
	if err != nil {
		return err
	}
	return t.space.MemWrite(t.addr, data)
}
