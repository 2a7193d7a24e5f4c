package memory

import (
	"encoding/binary"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"
)

const defaultPageSize = 0x1000

type flatRegion struct {
	MemRegion
	words []uint64
	data  []byte
}

// Flat is an in-process Space. Region contents are backed by word-aligned
// host memory so that word accesses can be performed atomically. Host-side
// writes are not checked against region protection, like an emulator's
// memory write.
type Flat struct {
	arch     Arch
	order    binary.ByteOrder
	pageSize uint64
	mu       sync.RWMutex
	regions  []*flatRegion
}

func NewFlat(arch Arch, order binary.ByteOrder) *Flat {
	return &Flat{arch: arch, order: order, pageSize: defaultPageSize}
}

func newFlatRegion(addr, size uint64, prot MemProt) *flatRegion {
	words := make([]uint64, size/8)
	return &flatRegion{
		MemRegion: MemRegion{Addr: addr, Size: size, Prot: prot},
		words:     words,
		data:      unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size),
	}
}

func (f *Flat) Close() error {
	f.mu.Lock()
	f.regions = nil
	f.mu.Unlock()
	return nil
}

func (f *Flat) Arch() Arch {
	return f.arch
}

func (f *Flat) ByteOrder() binary.ByteOrder {
	return f.order
}

func (f *Flat) PageSize() uint64 {
	return f.pageSize
}

func (f *Flat) MemMap(addr, size uint64, prot MemProt) error {
	end := Align(addr+size, f.pageSize)
	addr = AlignDown(addr, f.pageSize)
	if size == 0 || end <= addr {
		return ErrAddressInvalid
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.regions {
		if _, _, ok := calcOverlap(r.Addr, r.End(), addr, end); ok {
			return ErrRegionOverlap
		}
	}
	i, _ := slices.BinarySearchFunc(f.regions, addr, func(r *flatRegion, addr uint64) int {
		return cmpAddr(r.Addr, addr)
	})
	f.regions = slices.Insert(f.regions, i, newFlatRegion(addr, end-addr, prot))
	return nil
}

func (f *Flat) MemUnmap(addr, size uint64) error {
	end := Align(addr+size, f.pageSize)
	addr = AlignDown(addr, f.pageSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*flatRegion
	for _, r := range f.regions {
		start, stop, ok := calcOverlap(r.Addr, r.End(), addr, end)
		if !ok {
			kept = append(kept, r)
			continue
		}
		if start > r.Addr {
			head := newFlatRegion(r.Addr, start-r.Addr, r.Prot)
			copy(head.data, r.data[:start-r.Addr])
			kept = append(kept, head)
		}
		if stop < r.End() {
			tail := newFlatRegion(stop, r.End()-stop, r.Prot)
			copy(tail.data, r.data[stop-r.Addr:])
			kept = append(kept, tail)
		}
	}
	f.regions = kept
	return nil
}

func (f *Flat) MemRegions() ([]MemRegion, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	regions := make([]MemRegion, len(f.regions))
	for i, r := range f.regions {
		regions[i] = r.MemRegion
	}
	return regions, nil
}

func (f *Flat) MemRead(addr, size uint64) ([]byte, error) {
	data := make([]byte, size)
	if err := f.MemReadAt(addr, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *Flat) MemReadAt(addr uint64, b []byte) error {
	return f.access(addr, uint64(len(b)), func(chunk []byte, done uint64) {
		copy(b[done:], chunk)
	})
}

func (f *Flat) MemWrite(addr uint64, data []byte) error {
	return f.access(addr, uint64(len(data)), func(chunk []byte, done uint64) {
		copy(chunk, data[done:])
	})
}

func (f *Flat) LoadWord(addr, width uint64) (uint64, error) {
	p, err := f.word(addr, width)
	if err != nil {
		return 0, err
	}
	var raw [8]byte
	switch width {
	case 4:
		binary.NativeEndian.PutUint32(raw[:], atomic.LoadUint32((*uint32)(p)))
		return uint64(f.order.Uint32(raw[:])), nil
	default:
		binary.NativeEndian.PutUint64(raw[:], atomic.LoadUint64((*uint64)(p)))
		return f.order.Uint64(raw[:]), nil
	}
}

func (f *Flat) StoreWord(addr, width, value uint64) error {
	p, err := f.word(addr, width)
	if err != nil {
		return err
	}
	var raw [8]byte
	switch width {
	case 4:
		f.order.PutUint32(raw[:], uint32(value))
		atomic.StoreUint32((*uint32)(p), binary.NativeEndian.Uint32(raw[:]))
	default:
		f.order.PutUint64(raw[:], value)
		atomic.StoreUint64((*uint64)(p), binary.NativeEndian.Uint64(raw[:]))
	}
	return nil
}

func (f *Flat) word(addr, width uint64) (unsafe.Pointer, error) {
	if width != 4 && width != 8 {
		return nil, ErrWidthInvalid
	} else if !IsAligned(addr, width) {
		return nil, ErrAddressUnaligned
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	r := f.locate(addr)
	if r == nil || !r.Contains(addr, width) {
		return nil, ErrAddressInvalid
	}
	return unsafe.Pointer(&r.data[addr-r.Addr]), nil
}

func (f *Flat) access(addr, size uint64, fn func(chunk []byte, done uint64)) error {
	if addr+size < addr {
		return ErrAddressInvalid
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var done uint64
	for done < size {
		cur := addr + done
		r := f.locate(cur)
		if r == nil {
			return ErrAddressInvalid
		}
		n := min(size-done, r.End()-cur)
		off := cur - r.Addr
		fn(r.data[off:off+n], done)
		done += n
	}
	return nil
}

func (f *Flat) locate(addr uint64) *flatRegion {
	i, found := slices.BinarySearchFunc(f.regions, addr, func(r *flatRegion, addr uint64) int {
		return cmpAddr(r.Addr, addr)
	})
	if found {
		return f.regions[i]
	} else if i == 0 {
		return nil
	}
	r := f.regions[i-1]
	if addr < r.End() {
		return r
	}
	return nil
}

func cmpAddr(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func calcOverlap(min1, max1, min2, max2 uint64) (uint64, uint64, bool) {
	if max1 <= min2 || max2 <= min1 {
		return 0, 0, false
	}
	overlapMin := max(min1, min2)
	overlapMax := min(max1, max2)
	return overlapMin, overlapMax, true
}
