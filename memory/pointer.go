package memory

import (
	"slices"
)

type Pointer struct {
	space Space
	addr  uint64
}

func ToPointer(space Space, addr uint64) Pointer {
	return Pointer{space, addr}
}

func (p Pointer) IsNil() bool {
	return p.addr == 0
}

func (p Pointer) Address() uint64 {
	return p.addr
}

func (p Pointer) Space() Space {
	return p.space
}

func (p Pointer) Add(offset uint64) Pointer {
	return Pointer{p.space, p.addr + offset}
}

func (p Pointer) Sub(offset uint64) Pointer {
	return Pointer{p.space, p.addr - offset}
}

func (p Pointer) MemRead(size uint64) ([]byte, error) {
	return p.space.MemRead(p.addr, size)
}

func (p Pointer) MemWrite(data []byte) error {
	return p.space.MemWrite(p.addr, data)
}

func (p Pointer) MemReadString() (string, error) {
	var data []byte
	var buf [0x10]byte
	for begin := p.addr; ; begin += uint64(len(buf)) {
		// a string may end close to the end of its region
		n := len(buf)
		if err := p.space.MemReadAt(begin, buf[:]); err != nil {
			n = 0
			for n < len(buf) {
				if p.space.MemReadAt(begin+uint64(n), buf[n:n+1]) != nil {
					break
				}
				n++
			}
			if n == 0 {
				return "", err
			}
		}
		i := slices.Index(buf[:n], 0)
		if i != -1 {
			data = append(data, buf[:i]...)
			break
		}
		data = append(data, buf[:n]...)
		if n < len(buf) {
			return "", ErrAddressInvalid
		}
	}
	return string(data), nil
}

// MemReadPointer reads an address-sized word.
func (p Pointer) MemReadPointer() (Pointer, error) {
	size := p.space.Arch().PointerSize()
	if size == 0 {
		return Pointer{}, ErrArchUnsupported
	}
	raw, err := p.space.MemRead(p.addr, size)
	if err != nil {
		return Pointer{}, err
	}
	order := p.space.ByteOrder()
	var addr uint64
	if size == 4 {
		addr = uint64(order.Uint32(raw))
	} else {
		addr = order.Uint64(raw)
	}
	return Pointer{p.space, addr}, nil
}

func (p Pointer) ReadAt(b []byte, off int64) (n int, err error) {
	return len(b), p.space.MemReadAt(p.addr+uint64(off), b)
}

func (p Pointer) WriteAt(b []byte, off int64) (n int, err error) {
	return len(b), p.space.MemWrite(p.addr+uint64(off), b)
}
