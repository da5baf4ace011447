// Package queue provides a stable priority queue used by the scheduler.
package queue

import (
	"container/heap"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// entry wraps a queued value. seq is the insertion order and breaks ties
// between equal priorities so that dispatch within a level is FIFO.
type entry[T any] struct {
	value    T
	priority types.Priority
	seq      uint64
	index    int // index in the heap
}

// entryHeap implements heap.Interface
type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	// Pop must return the highest priority, so compare with greater than.
	if h[i].priority == h[j].priority {
		return h[i].seq < h[j].seq // oldest first within a level
	}
	return h[i].priority > h[j].priority
}

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	e.index = -1
	*h = old[:n-1]
	return e
}

// PriorityQueue orders values by priority, then by insertion order.
// It is not safe for concurrent use.
type PriorityQueue[T any] struct {
	h   entryHeap[T]
	seq uint64
}

// New returns an empty queue.
func New[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

// Len returns the number of queued values.
func (q *PriorityQueue[T]) Len() int { return q.h.Len() }

// Enqueue inserts v at priority p behind all values of the same priority.
func (q *PriorityQueue[T]) Enqueue(v T, p types.Priority) {
	q.seq++
	heap.Push(&q.h, &entry[T]{value: v, priority: p, seq: q.seq})
}

// Dequeue removes and returns the highest priority, oldest value.
func (q *PriorityQueue[T]) Dequeue() (T, types.Priority, bool) {
	if q.h.Len() == 0 {
		var zero T
		return zero, types.PriorityBackground, false
	}
	e := heap.Pop(&q.h).(*entry[T])
	return e.value, e.priority, true
}

// Peek returns the next value without removing it.
func (q *PriorityQueue[T]) Peek() (T, bool) {
	if q.h.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.h[0].value, true
}

// PeekPriority returns the priority of the next value.
func (q *PriorityQueue[T]) PeekPriority() (types.Priority, bool) {
	if q.h.Len() == 0 {
		return types.PriorityBackground, false
	}
	return q.h[0].priority, true
}

// Contains reports whether any queued value matches pred.
func (q *PriorityQueue[T]) Contains(pred func(T) bool) bool {
	for _, e := range q.h {
		if pred(e.value) {
			return true
		}
	}
	return false
}

// CountWhere counts queued values matching pred.
func (q *PriorityQueue[T]) CountWhere(pred func(T, types.Priority) bool) int {
	n := 0
	for _, e := range q.h {
		if pred(e.value, e.priority) {
			n++
		}
	}
	return n
}

// RemoveWhere drops every value matching pred and returns how many were removed.
func (q *PriorityQueue[T]) RemoveWhere(pred func(T) bool) int {
	kept := q.h[:0]
	removed := 0
	for _, e := range q.h {
		if pred(e.value) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = nil
	}
	q.h = kept
	if removed > 0 {
		for i, e := range q.h {
			e.index = i
		}
		heap.Init(&q.h)
	}
	return removed
}

// Promote raises every matching value whose priority is strictly lower than p.
// Values keep their insertion order. It returns the number of values promoted.
func (q *PriorityQueue[T]) Promote(pred func(T) bool, p types.Priority) int {
	promoted := 0
	for _, e := range q.h {
		if e.priority < p && pred(e.value) {
			e.priority = p
			promoted++
		}
	}
	if promoted > 0 {
		heap.Init(&q.h)
	}
	return promoted
}

// Items returns a snapshot of the queued values in dispatch order.
func (q *PriorityQueue[T]) Items() []T {
	sorted := make(entryHeap[T], len(q.h))
	for i, e := range q.h {
		cp := *e
		cp.index = i
		sorted[i] = &cp
	}
	heap.Init(&sorted)
	out := make([]T, 0, len(sorted))
	for sorted.Len() > 0 {
		out = append(out, heap.Pop(&sorted).(*entry[T]).value)
	}
	return out
}
