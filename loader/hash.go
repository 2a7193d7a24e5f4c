package loader

import (
	"debug/elf"
)

func elfHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		g := h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &^= g
	}
	return h
}

func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

type hashTable struct {
	buckets, chains uint64
	nbucket, nchain uint32
}

type gnuHashTable struct {
	bloom, buckets, chains uint64
	nbucket, symbias       uint32
	nbloom, shift          uint32
}

func (m *Image) loadHash() (*hashTable, error) {
	addr, ok := m.DynValue(elf.DT_HASH)
	if !ok {
		return nil, nil
	}
	addr += m.base
	nbucket, err := m.word32(addr)
	if err != nil {
		return nil, err
	}
	nchain, err := m.word32(addr + 4)
	if err != nil {
		return nil, err
	}
	return &hashTable{
		buckets: addr + 8,
		chains:  addr + 8 + 4*uint64(nbucket),
		nbucket: nbucket,
		nchain:  nchain,
	}, nil
}

func (m *Image) loadGNUHash() (*gnuHashTable, error) {
	addr, ok := m.DynValue(elf.DT_GNU_HASH)
	if !ok {
		return nil, nil
	}
	addr += m.base
	var hdr [4]uint32
	for i := range hdr {
		v, err := m.word32(addr + 4*uint64(i))
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	bloom := addr + 16
	buckets := bloom + uint64(hdr[2])*m.wordSize()
	return &gnuHashTable{
		bloom:   bloom,
		buckets: buckets,
		chains:  buckets + 4*uint64(hdr[0]),
		nbucket: hdr[0],
		symbias: hdr[1],
		nbloom:  hdr[2],
		shift:   hdr[3],
	}, nil
}

func (m *Image) findHashSymbol(ht *hashTable, name string) (elf.Symbol, error) {
	if ht.nbucket == 0 {
		return elf.Symbol{}, ErrSymbolNotFound
	}
	index, err := m.word32(ht.buckets + 4*uint64(elfHash(name)%ht.nbucket))
	if err != nil {
		return elf.Symbol{}, err
	}
	for index != 0 && index < ht.nchain {
		sym, err := m.Symbol(index)
		if err != nil {
			return elf.Symbol{}, err
		}
		if sym.Name == name {
			return sym, nil
		}
		if index, err = m.word32(ht.chains + 4*uint64(index)); err != nil {
			return elf.Symbol{}, err
		}
	}
	return elf.Symbol{}, ErrSymbolNotFound
}

func (m *Image) findGNUHashSymbol(ht *gnuHashTable, name string) (elf.Symbol, error) {
	if ht.nbucket == 0 || ht.nbloom == 0 {
		return elf.Symbol{}, ErrSymbolNotFound
	}
	h := gnuHash(name)
	bits := uint32(m.wordSize() * 8)
	word, err := m.wordN(ht.bloom + uint64((h/bits)%ht.nbloom)*m.wordSize())
	if err != nil {
		return elf.Symbol{}, err
	}
	mask := (uint64(1) << (h % bits)) | (uint64(1) << ((h >> ht.shift) % bits))
	if word&mask != mask {
		return elf.Symbol{}, ErrSymbolNotFound
	}
	idx, err := m.word32(ht.buckets + 4*uint64(h%ht.nbucket))
	if err != nil {
		return elf.Symbol{}, err
	} else if idx < ht.symbias {
		return elf.Symbol{}, ErrSymbolNotFound
	}
	for ; ; idx++ {
		chain, err := m.word32(ht.chains + 4*uint64(idx-ht.symbias))
		if err != nil {
			return elf.Symbol{}, err
		}
		if chain|1 == h|1 {
			sym, err := m.Symbol(idx)
			if err != nil {
				return elf.Symbol{}, err
			} else if sym.Name == name {
				return sym, nil
			}
		}
		if chain&1 != 0 {
			break
		}
	}
	return elf.Symbol{}, ErrSymbolNotFound
}

// gnuSymbolCount walks to the end of the last hash chain; DT_GNU_HASH has
// no explicit symbol count.
func (m *Image) gnuSymbolCount(ht *gnuHashTable) (uint32, error) {
	var last uint32
	for i := uint32(0); i < ht.nbucket; i++ {
		v, err := m.word32(ht.buckets + 4*uint64(i))
		if err != nil {
			return 0, err
		}
		last = max(last, v)
	}
	if last < ht.symbias {
		return ht.symbias, nil
	}
	for ; ; last++ {
		chain, err := m.word32(ht.chains + 4*uint64(last-ht.symbias))
		if err != nil {
			return 0, err
		} else if chain&1 != 0 {
			return last + 1, nil
		}
	}
}
