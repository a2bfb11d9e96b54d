package iodispatch

// FDSet is the list of descriptors watched for one direction. It is rebuilt
// every dispatcher cycle with Reset followed by Add, so the backing array is
// allocated once and only grows.
type FDSet struct {
	fds   []int
	count int
}

func NewFDSet(capacity int) *FDSet {
	if capacity < 1 {
		capacity = 1
	}
	return &FDSet{fds: make([]int, capacity)}
}

func (s *FDSet) Add(fd int) {
	if s.count == len(s.fds) {
		s.resize()
	}
	s.fds[s.count] = fd
	s.count++
}

func (s *FDSet) Get(index int) int {
	return s.fds[index]
}

func (s *FDSet) Count() int {
	return s.count
}

func (s *FDSet) Cap() int {
	return len(s.fds)
}

func (s *FDSet) Reset() {
	s.count = 0
}

// Close drops the backing array. Calling it twice is harmless.
func (s *FDSet) Close() {
	s.fds = nil
	s.count = 0
}

func (s *FDSet) resize() {
	size := len(s.fds) * 2
	if size == 0 {
		size = 1
	}
	fds := make([]int, size)
	copy(fds, s.fds[:s.count])
	s.fds = fds
}
