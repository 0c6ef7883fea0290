// Package ring provides a fixed-capacity FIFO that evicts its oldest element
// when full. It serializes to JSON as a plain array, oldest first.
package ring

import "encoding/json"

// Ring is not safe for concurrent use; owners guard it with their own lock.
// A zero-capacity Ring holds nothing until Resize is called.
type Ring[T any] struct {
	buf      []T
	head     int
	size     int
	capacity int
}

func New[T any](capacity int) Ring[T] {
	if capacity < 0 {
		capacity = 0
	}
	return Ring[T]{buf: make([]T, capacity), capacity: capacity}
}

// Push appends v, evicting the oldest element if the ring is full.
// It reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	if r.capacity == 0 {
		return true
	}
	if len(r.buf) != r.capacity {
		r.buf = append(r.buf[:0:0], r.Items()...)
		r.buf = append(r.buf, make([]T, r.capacity-len(r.buf))...)
		r.head = 0
	}
	if r.size < r.capacity {
		r.buf[(r.head+r.size)%r.capacity] = v
		r.size++
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.capacity
	return true
}

func (r Ring[T]) Len() int { return r.size }

func (r Ring[T]) Cap() int { return r.capacity }

// Items returns a copy of the contents, oldest first.
func (r Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Last returns up to n newest elements, oldest first.
func (r Ring[T]) Last(n int) []T {
	items := r.Items()
	if n >= len(items) {
		return items
	}
	if n <= 0 {
		return []T{}
	}
	return items[len(items)-n:]
}

// Newest returns the most recently pushed element.
func (r Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// Resize changes the capacity, keeping the newest elements.
func (r *Ring[T]) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	items := r.Last(capacity)
	*r = New[T](capacity)
	for _, v := range items {
		r.Push(v)
	}
}

func (r Ring[T]) Clone() Ring[T] {
	out := New[T](r.capacity)
	for _, v := range r.Items() {
		out.Push(v)
	}
	return out
}

func (r Ring[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Items())
}

// UnmarshalJSON keeps the receiver's capacity when one is set; otherwise the
// capacity becomes the decoded length and callers are expected to Resize.
func (r *Ring[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	capacity := r.capacity
	if capacity == 0 {
		capacity = len(items)
	}
	*r = New[T](capacity)
	for _, v := range items {
		r.Push(v)
	}
	return nil
}
