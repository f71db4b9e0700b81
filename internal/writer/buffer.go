package writer

// Buffer is a FIFO ring that doubles its capacity when it reaches 70% full,
// up to a fixed limit. It is not safe for concurrent use; BatchWriter guards
// it with its own mutex.
type Buffer[T any] struct {
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	limit    int

	resizeCount int
}

// NewBuffer creates a buffer with the given initial capacity that never
// holds more than limit items.
func NewBuffer[T any](initialCapacity, limit int) *Buffer[T] {
	if limit < 1 {
		limit = 1
	}
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if initialCapacity > limit {
		initialCapacity = limit
	}
	return &Buffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		limit:    limit,
	}
}

// PushAll appends all items or none. It returns false when the items would
// not fit under the limit.
func (b *Buffer[T]) PushAll(items []T) bool {
	if b.count+len(items) > b.limit {
		return false
	}
	b.reserve(b.count + len(items))
	for _, item := range items {
		b.buf[b.tail] = item
		b.tail = (b.tail + 1) % b.capacity
		b.count++
	}
	return true
}

// Unshift puts items back at the head, ahead of anything buffered. It may
// exceed the limit so a batch taken for commit can always be returned.
func (b *Buffer[T]) Unshift(items []T) {
	if len(items) == 0 {
		return
	}
	rest := b.DrainTo(0)
	if need := len(items) + len(rest); need > b.capacity {
		b.resize(need)
	}
	b.head, b.tail, b.count = 0, 0, 0
	for _, group := range [][]T{items, rest} {
		for _, item := range group {
			b.buf[b.tail] = item
			b.tail = (b.tail + 1) % b.capacity
			b.count++
		}
	}
}

// DrainTo removes up to max items from the head (all of them when max <= 0).
func (b *Buffer[T]) DrainTo(max int) []T {
	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		result[i] = b.buf[b.head]
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
	}

	return result
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the current ring capacity.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// reserve grows the ring until n items fit below the 70% mark or the
// limit is reached.
func (b *Buffer[T]) reserve(n int) {
	newCapacity := b.capacity
	for newCapacity < b.limit && n >= threshold(newCapacity) {
		newCapacity *= 2
	}
	if newCapacity > b.limit {
		newCapacity = b.limit
	}
	if newCapacity < n {
		newCapacity = n
	}
	if newCapacity != b.capacity {
		b.resize(newCapacity)
	}
}

func threshold(capacity int) int {
	t := (capacity * 70) / 100
	if t < 1 {
		t = 1
	}
	return t
}

func (b *Buffer[T]) resize(newCapacity int) {
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count % newCapacity
	b.capacity = newCapacity
	b.resizeCount++
}
