// SPDX-License-Identifier: MIT

// Package queue implements the bounded admission queue: strict priority
// ordering with FIFO among equals.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/hoangtv090103/text-to-video/internal/metrics"
	"github.com/hoangtv090103/text-to-video/internal/model"
)

// ErrQueueFull is returned when the queue is at capacity. The submission is
// rejected; nothing was admitted.
var ErrQueueFull = errors.New("job queue full")

// Item is one queued admission.
type Item struct {
	JobID    string
	Priority model.Priority

	seq   uint64 // enqueue order, breaks priority ties FIFO
	index int
}

type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a bounded priority queue. Push never blocks; Pop blocks until an
// item or cancellation.
type Queue struct {
	mu      sync.Mutex
	items   itemHeap
	byJob   map[string]*Item
	nextSeq uint64
	max     int

	// wake is a capacity-1 doorbell for blocked Pop callers.
	wake chan struct{}
}

// New creates a queue holding at most max items.
func New(max int) *Queue {
	if max <= 0 {
		max = 100
	}
	return &Queue{
		byJob: make(map[string]*Item),
		max:   max,
		wake:  make(chan struct{}, 1),
	}
}

// Push admits a job, or fails with ErrQueueFull.
func (q *Queue) Push(jobID string, priority model.Priority) error {
	q.mu.Lock()
	if len(q.items) >= q.max {
		q.mu.Unlock()
		return ErrQueueFull
	}
	it := &Item{JobID: jobID, Priority: priority, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.items, it)
	q.byJob[jobID] = it
	metrics.SetQueueDepth(len(q.items))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pop returns the highest-priority, oldest item, blocking until one is
// available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (*Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := heap.Pop(&q.items).(*Item)
			delete(q.byJob, it.JobID)
			metrics.SetQueueDepth(len(q.items))
			q.mu.Unlock()
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Remove deletes a queued job, e.g. on cancellation before admission.
// Returns false when the job is no longer queued.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byJob[jobID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, it.index)
	delete(q.byJob, jobID)
	metrics.SetQueueDepth(len(q.items))
	return true
}

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
