// Package merger selects the newest message ids from a candidate set.
// Message ids come from one increasing counter, so numeric order is
// chronological order.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
)

// Newest returns up to limit ids from candidates, newest first. A
// non-positive limit returns every candidate.
func Newest(candidates map[string]struct{}, limit int) []string {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	h := &idHeap{}
	heap.Init(h)
	for id := range candidates {
		heap.Push(h, id)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]string, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(string)
	}
	return result
}

// idHeap is a min-heap by id, so the oldest kept id is evicted first.
type idHeap []string

func (h idHeap) Len() int { return len(h) }

func (h idHeap) Less(i, j int) bool {
	return chat.CompareIDs(h[i], h[j]) < 0
}

func (h idHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *idHeap) Push(x interface{}) {
	*h = append(*h, x.(string))
}

func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
