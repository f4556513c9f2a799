package reminder

import domain "marco/internal/domain/reminder"

// entry is a registry slot. index is the heap position, or -1 once the
// reminder has left the dispatch queue (fired or dead-lettered).
type entry struct {
	reminder domain.Reminder
	index    int
}

// reminderHeap is a container/heap min-heap ordered by (FireTime, Seq).
type reminderHeap []*entry

func (h reminderHeap) Len() int { return len(h) }

func (h reminderHeap) Less(i, j int) bool {
	return h[i].reminder.Less(h[j].reminder)
}

func (h reminderHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *reminderHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *reminderHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// indexHeap orders heap positions by the reminders they hold. It drives the
// frontier walk in DueAsOf.
type indexHeap struct {
	positions []int
	backing   reminderHeap
}

func (h indexHeap) Len() int { return len(h.positions) }
func (h indexHeap) Less(i, j int) bool {
	return h.backing[h.positions[i]].reminder.Less(h.backing[h.positions[j]].reminder)
}
func (h indexHeap) Swap(i, j int) { h.positions[i], h.positions[j] = h.positions[j], h.positions[i] }
func (h *indexHeap) Push(x any)   { h.positions = append(h.positions, x.(int)) }
func (h *indexHeap) Pop() any {
	n := len(h.positions)
	v := h.positions[n-1]
	h.positions = h.positions[:n-1]
	return v
}
