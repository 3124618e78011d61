// Package queue provides the multi-producer single-consumer list used to hand
// task completions from worker callbacks to the build loop.
package queue

import (
	"sync/atomic"
)

type node[T any] struct {
	value T
	next  *node[T]
}

// List is a lock-free multi-producer list. Any number of goroutines may Push
// concurrently; a single consumer drains it with ExtractAll.
type List[T any] struct {
	head atomic.Pointer[node[T]]
}

// Push prepends a value to the list.
func (l *List[T]) Push(v T) {
	n := &node[T]{value: v}
	for {
		head := l.head.Load()
		n.next = head
		if l.head.CompareAndSwap(head, n) {
			return
		}
	}
}

// ExtractAll atomically detaches every pushed value and returns them in push
// order. Values pushed by a single goroutine keep their relative order.
func (l *List[T]) ExtractAll() []T {
	head := l.head.Swap(nil)

	var out []T
	for n := head; n != nil; n = n.next {
		out = append(out, n.value)
	}

	// The chain is in LIFO order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// IsEmpty returns true if no values are pending.
func (l *List[T]) IsEmpty() bool {
	return l.head.Load() == nil
}
