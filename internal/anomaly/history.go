package anomaly

import "sync"

// window is a bounded FIFO of float64 samples backed by a ring buffer.
type window struct {
	vals     []float64
	head     int
	size     int
	capacity int
}

func newWindow(capacity int) *window {
	return &window{vals: make([]float64, capacity), capacity: capacity}
}

func (w *window) push(v float64) {
	if w.size == w.capacity {
		w.vals[w.head] = v
		w.head = (w.head + 1) % w.capacity
		return
	}
	w.vals[(w.head+w.size)%w.capacity] = v
	w.size++
}

func (w *window) snapshot() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.vals[(w.head+i)%w.capacity]
	}
	return out
}

// historyStore keeps one bounded amount window per canonical vendor plus one
// global window. A single lock covers the snapshot-then-append sequence so
// detectors always see a consistent prior state.
type historyStore struct {
	vendorCapacity int
	globalCapacity int

	mu      sync.Mutex
	global  *window
	vendors map[string]*window
}

func newHistoryStore(vendorCapacity, globalCapacity int) *historyStore {
	return &historyStore{
		vendorCapacity: vendorCapacity,
		globalCapacity: globalCapacity,
		global:         newWindow(globalCapacity),
		vendors:        make(map[string]*window),
	}
}

// observe snapshots the prior vendor-scoped and global samples, then appends
// amount to both windows. Detectors evaluate against the returned snapshots.
func (s *historyStore) observe(vendorKey string, amount float64) (vendorPrior, globalPrior []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vw, ok := s.vendors[vendorKey]
	if !ok {
		vw = newWindow(s.vendorCapacity)
		s.vendors[vendorKey] = vw
	}

	vendorPrior = vw.snapshot()
	globalPrior = s.global.snapshot()

	vw.push(amount)
	s.global.push(amount)
	return vendorPrior, globalPrior
}
