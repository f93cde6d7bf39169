package telemetry

import "sync"

// item is what the ingest queue carries; exactly one field is set.
type item struct {
	monitoring *MonitoringEvent
	violation  *ViolationEvent
}

// ringBuffer is a bounded, thread-safe queue for telemetry items.
// Overflow policy is drop-oldest: under a burst the newest signal survives,
// which is the right bias for proctoring (the latest violation matters more
// than a tab-blur from a minute ago).
type ringBuffer struct {
	mu       sync.Mutex
	items    []item
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &ringBuffer{
		items:    make([]item, capacity),
		capacity: capacity,
	}
}

// enqueue adds an item, dropping the oldest if the buffer is full.
// Reports whether anything was dropped to make room.
func (b *ringBuffer) enqueue(it item) (droppedOldest bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		droppedOldest = true
	}

	b.items[b.head] = it
	b.head = (b.head + 1) % b.capacity
	b.count++
	return droppedOldest
}

// dequeueBatch removes up to n items in arrival order.
func (b *ringBuffer) dequeueBatch(n int) []item {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]item, n)
	for i := 0; i < n; i++ {
		result[i] = b.items[b.tail]
		b.items[b.tail] = item{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return result
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedTotal() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
