package encoding

type structSize []int

func (ss structSize) Add(size structSize) structSize {
	return append(ss, size...)
}

func (ss structSize) Size() (total int) {
	for _, size := range ss {
		total += size
	}
	return
}

func (ss structSize) Align() (maxSize int) {
	for _, size := range ss {
		maxSize = max(maxSize, size)
	}
	return
}

func align(a, b int) int {
	if b <= 1 {
		return a
	}
	return (a + b - 1) &^ (b - 1)
}
