// Package eventqueue implements the keyed min-heap used by the scheduler to
// multiplex tick/trade/market-activation futures into a single earliest-
// event query: a binary heap ordered by time, ties broken by insertion
// order, paired with a key→slot map so an existing key can be upserted or
// removed in O(log n) instead of requiring a linear scan.
package eventqueue

import "container/heap"

// Index is a keyed priority queue over (time, key). Ordering is by time
// only; ties are broken by insertion order (stable).
type Index[K comparable, V any] struct {
	h    indexHeap[K, V]
	slot map[K]*entry[K, V]
	seq  int64
}

type entry[K comparable, V any] struct {
	key     K
	time    int64
	payload V
	seq     int64 // insertion order, used to break time ties
	index   int   // slot in the heap, maintained by heap.Interface
}

// New creates an empty Index.
func New[K comparable, V any]() *Index[K, V] {
	return &Index[K, V]{slot: make(map[K]*entry[K, V])}
}

// Len reports the number of keys currently tracked.
func (idx *Index[K, V]) Len() int { return len(idx.h) }

// Upsert inserts key with the given time/payload, or updates its time and
// payload in place and re-heaps if key already exists.
func (idx *Index[K, V]) Upsert(key K, time int64, payload V) {
	if e, ok := idx.slot[key]; ok {
		e.time = time
		e.payload = payload
		heap.Fix(&idx.h, e.index)
		return
	}
	idx.seq++
	e := &entry[K, V]{key: key, time: time, payload: payload, seq: idx.seq}
	heap.Push(&idx.h, e)
	idx.slot[key] = e
}

// Remove drops key from the index, if present.
func (idx *Index[K, V]) Remove(key K) {
	e, ok := idx.slot[key]
	if !ok {
		return
	}
	heap.Remove(&idx.h, e.index)
	delete(idx.slot, key)
}

// Peek returns the earliest (time, payload) without removing it.
func (idx *Index[K, V]) Peek() (time int64, payload V, ok bool) {
	if len(idx.h) == 0 {
		var zero V
		return 0, zero, false
	}
	top := idx.h[0]
	return top.time, top.payload, true
}

// PeekKey returns the earliest key without removing it.
func (idx *Index[K, V]) PeekKey() (key K, ok bool) {
	if len(idx.h) == 0 {
		var zero K
		return zero, false
	}
	return idx.h[0].key, true
}

// Pop removes and returns the earliest (key, time, payload).
func (idx *Index[K, V]) Pop() (key K, time int64, payload V, ok bool) {
	if len(idx.h) == 0 {
		var zeroK K
		var zeroV V
		return zeroK, 0, zeroV, false
	}
	e := heap.Pop(&idx.h).(*entry[K, V])
	delete(idx.slot, e.key)
	return e.key, e.time, e.payload, true
}

// indexHeap implements container/heap.Interface over pointer entries so
// that the slot map (keyed on the same pointer identity via .index) stays
// valid across Swap calls, mirroring the index-tracked eventQueue idiom
// used for backtest replay queues elsewhere in this codebase.
type indexHeap[K comparable, V any] []*entry[K, V]

func (h indexHeap[K, V]) Len() int { return len(h) }

func (h indexHeap[K, V]) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h indexHeap[K, V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *indexHeap[K, V]) Push(x any) {
	e := x.(*entry[K, V])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *indexHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
