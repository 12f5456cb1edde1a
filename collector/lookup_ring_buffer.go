package collector

import "sync"

type Identifiable[T comparable] interface {
	Identity() T
}

// LookupRingBuffer is a thread-safe ring buffer with lookup and in-place update by identity
type LookupRingBuffer[T Identifiable[S], S comparable] struct {
	buffer []T
	// lookup maps an identity to its absolute write position
	lookup     map[S]uint64
	size       uint64
	capacity   uint64
	writeIndex uint64
	mu         sync.RWMutex
}

// NewLookupRingBuffer creates a new ring buffer with the given capacity
func NewLookupRingBuffer[T Identifiable[S], S comparable](capacity uint64) *LookupRingBuffer[T, S] {
	if capacity == 0 {
		panic("capacity must be greater than 0")
	}

	return &LookupRingBuffer[T, S]{
		buffer:   make([]T, capacity),
		lookup:   make(map[S]uint64, capacity),
		capacity: capacity,
	}
}

// Add adds an entry to the buffer. If the buffer was full, the oldest entry is
// overwritten and returned as evicted.
func (rb *LookupRingBuffer[T, S]) Add(record T) (evicted T, wasEvicted bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	index := rb.writeIndex % rb.capacity

	if rb.size < rb.capacity {
		rb.size++
	} else {
		evicted, wasEvicted = rb.buffer[index], true
		// Only drop the lookup if it still points at the overwritten slot
		if pos, ok := rb.lookup[evicted.Identity()]; ok && pos == rb.writeIndex-rb.capacity {
			delete(rb.lookup, evicted.Identity())
		}
	}

	rb.buffer[index] = record
	rb.lookup[record.Identity()] = rb.writeIndex
	rb.writeIndex++

	return evicted, wasEvicted
}

// Update replaces the record with the given identity by fn(record) at the same position.
// It returns false if no record with that identity is buffered.
func (rb *LookupRingBuffer[T, S]) Update(identity S, fn func(T) T) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	pos, found := rb.lookup[identity]
	if !found {
		return false
	}
	index := pos % rb.capacity
	rb.buffer[index] = fn(rb.buffer[index])
	return true
}

// Newest returns the most recent n records, newest first
func (rb *LookupRingBuffer[T, S]) Newest(n uint64) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := min(n, rb.size)
	result := make([]T, count)
	for i := uint64(0); i < count; i++ {
		result[i] = rb.buffer[(rb.writeIndex-1-i)%rb.capacity]
	}
	return result
}

func (rb *LookupRingBuffer[T, S]) Lookup(identity S) (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	pos, found := rb.lookup[identity]
	if found {
		return rb.buffer[pos%rb.capacity], true
	}

	var empty T
	return empty, false
}

// Clear removes all records
func (rb *LookupRingBuffer[T, S]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.buffer)
	clear(rb.lookup)
	rb.size = 0
	rb.writeIndex = 0
}

// Size returns the current number of records in the buffer
func (rb *LookupRingBuffer[T, S]) Size() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Capacity returns the maximum capacity of the buffer
func (rb *LookupRingBuffer[T, S]) Capacity() uint64 {
	return rb.capacity
}
