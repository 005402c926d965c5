package engine

import (
	"slices"

	"github.com/five82/tally/internal/classapi"
)

// GroupBatch is the pending values for one group, in enqueue order.
type GroupBatch struct {
	Group  int
	Values []float64
}

// Batch is everything taken from the queue for one flush. Grouped sessions
// fill Groups; paired sessions fill X and Y.
type Batch struct {
	Groups []GroupBatch
	X      []float64
	Y      []float64
}

// Empty reports whether the batch has nothing to write.
func (b Batch) Empty() bool {
	return len(b.Groups) == 0 && len(b.X) == 0
}

// Len returns the number of observations in the batch.
func (b Batch) Len() int {
	n := len(b.X)
	for _, g := range b.Groups {
		n += len(g.Values)
	}
	return n
}

// writeQueue buffers values per destination. Destinations keep the order in
// which they first received values so flushes are reproducible.
type writeQueue struct {
	order   []int
	buffers map[int][]float64
	xs, ys  []float64
}

func newWriteQueue() *writeQueue {
	return &writeQueue{buffers: make(map[int][]float64)}
}

func (q *writeQueue) Enqueue(group int, values ...float64) {
	if len(values) == 0 {
		return
	}
	if _, ok := q.buffers[group]; !ok {
		q.order = append(q.order, group)
	}
	q.buffers[group] = append(q.buffers[group], values...)
}

func (q *writeQueue) EnqueuePairs(points ...classapi.Point) {
	for _, p := range points {
		q.xs = append(q.xs, p.X)
		q.ys = append(q.ys, p.Y)
	}
}

// Take returns every non-empty buffer and leaves the queue empty.
func (q *writeQueue) Take() Batch {
	var b Batch
	for _, group := range q.order {
		if vs := q.buffers[group]; len(vs) > 0 {
			b.Groups = append(b.Groups, GroupBatch{Group: group, Values: slices.Clone(vs)})
		}
	}
	if len(q.xs) > 0 {
		b.X = slices.Clone(q.xs)
		b.Y = slices.Clone(q.ys)
	}
	q.Clear()
	return b
}

func (q *writeQueue) Len() int {
	n := len(q.xs)
	for _, vs := range q.buffers {
		n += len(vs)
	}
	return n
}

func (q *writeQueue) Clear() {
	q.order = nil
	clear(q.buffers)
	q.xs = nil
	q.ys = nil
}
