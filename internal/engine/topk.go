package engine

import "container/heap"

// Compile time check to ensure candidateHeap satisfies the heap interface.
var _ heap.Interface = (*candidateHeap)(nil)

// candidateHeap is a min-heap of scored candidates ordered so that the
// root is the current worst result: lowest score, ties resolved against
// the later internal document order. Bounding it at topK keeps candidate
// selection at O(n log k).
type candidateHeap struct {
	items []scoredCandidate
}

// worse reports whether a loses to b: lower score, or an equal score with
// a later (segment, row) position. The inverse ordering is what makes
// repeated searches on an unchanged generation deterministic.
func worse(a, b scoredCandidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.view != b.view {
		return a.view > b.view
	}
	return a.row > b.row
}

func (h *candidateHeap) Len() int { return len(h.items) }

func (h *candidateHeap) Less(i, j int) bool { return worse(h.items[i], h.items[j]) }

func (h *candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candidateHeap) Push(x any) {
	c, _ := x.(scoredCandidate)
	h.items = append(h.items, c)
}

func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	c := old[n-1]
	h.items = old[:n-1]
	return c
}

// offer inserts c, evicting the current worst when the heap already holds
// limit candidates and c beats it.
func (h *candidateHeap) offer(c scoredCandidate, limit int) {
	if h.Len() < limit {
		heap.Push(h, c)
		return
	}
	if worse(c, h.items[0]) {
		return
	}
	h.items[0] = c
	heap.Fix(h, 0)
}

// drain empties the heap into a slice ordered best-first.
func (h *candidateHeap) drain() []scoredCandidate {
	out := make([]scoredCandidate, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		c, _ := heap.Pop(h).(scoredCandidate)
		out[i] = c
	}
	return out
}
