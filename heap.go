package quartz

import (
	"container/heap"
)

// triggerHeap implements heap.Interface for the WAITING triggers of a
// MemoryStore, ordered by next fire time, then priority, then key.
// It provides O(log n) insertion and removal, and O(1) peek for the next trigger.
type triggerHeap []*triggerWrapper

// Len returns the number of triggers in the heap.
func (h triggerHeap) Len() int { return len(h) }

// Less reports whether trigger i should be acquired before trigger j.
// Zero times are considered "infinite" and sort to the end.
func (h triggerHeap) Less(i, j int) bool {
	return triggerLess(h[i].trigger, h[j].trigger)
}

func triggerLess(a, b Trigger) bool {
	an, bn := a.NextFireTime(), b.NextFireTime()
	switch {
	case an.IsZero() && !bn.IsZero():
		return false
	case bn.IsZero() && !an.IsZero():
		return true
	case !an.Equal(bn):
		return an.Before(bn)
	}
	if a.Priority() != b.Priority() {
		return a.Priority() > b.Priority()
	}
	return a.Key().Compare(b.Key()) < 0
}

// Swap swaps elements i and j and updates their heap indices.
func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

// Push adds a trigger to the heap.
func (h *triggerHeap) Push(x any) {
	w := x.(*triggerWrapper) //nolint:errcheck // heap.Interface contract guarantees type
	w.heapIndex = len(*h)
	*h = append(*h, w)
}

// Pop removes and returns the earliest trigger.
func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return nil
	}
	w := old[n-1]
	old[n-1] = nil   // avoid memory leak
	w.heapIndex = -1 // mark as removed
	*h = old[0 : n-1]
	return w
}

// Peek returns the earliest trigger without removing it, or nil.
func (h triggerHeap) Peek() *triggerWrapper {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// add pushes w unless it is already queued.
func (h *triggerHeap) add(w *triggerWrapper) {
	if h.contains(w) {
		heap.Fix(h, w.heapIndex)
		return
	}
	heap.Push(h, w)
}

// popMin removes and returns the earliest trigger, or nil.
func (h *triggerHeap) popMin() *triggerWrapper {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*triggerWrapper) //nolint:errcheck // always *triggerWrapper
}

// remove drops w from the heap. It reports whether w was queued.
func (h *triggerHeap) remove(w *triggerWrapper) bool {
	if !h.contains(w) {
		return false
	}
	heap.Remove(h, w.heapIndex)
	return true
}

func (h triggerHeap) contains(w *triggerWrapper) bool {
	idx := w.heapIndex
	return idx >= 0 && idx < len(h) && h[idx] == w
}
