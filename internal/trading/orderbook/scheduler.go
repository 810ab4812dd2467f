package orderbook

import (
	"container/heap"
	"math"

	"github.com/Aidin1998/tickbook/internal/trading/model"
)

// Scheduler delivers deferred callbacks at wall-clock deadlines. Tasks are
// addressed by key; scheduling an existing key replaces the pending task.
// Nothing fires on its own: the owner drives the scheduler with Advance.
type Scheduler[K comparable] interface {
	Schedule(key K, deadline model.Timestamp, fn func())
	Cancel(key K) bool
	Pending(key K) bool
	Advance(now model.Timestamp) int
	Len() int
}

type task[K comparable] struct {
	key      K
	deadline model.Timestamp
	seq      uint64
	fn       func()
	index    int
}

// taskHeap orders tasks by deadline, then by scheduling order.
type taskHeap[K comparable] []*task[K]

func (h taskHeap[K]) Len() int { return len(h) }
func (h taskHeap[K]) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap[K]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap[K]) Push(x interface{}) {
	t := x.(*task[K])
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap[K]) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// DeadlineQueue is the in-process Scheduler: a min-heap of deadlines plus a
// key index for cancellation. It is not safe for concurrent use.
type DeadlineQueue[K comparable] struct {
	tasks taskHeap[K]
	byKey map[K]*task[K]
	seq   uint64
}

func NewDeadlineQueue[K comparable]() *DeadlineQueue[K] {
	return &DeadlineQueue[K]{byKey: make(map[K]*task[K])}
}

// Schedule registers fn to run once Advance reaches deadline. Infinite
// deadlines are never scheduled.
func (q *DeadlineQueue[K]) Schedule(key K, deadline model.Timestamp, fn func()) {
	q.Cancel(key)
	if math.IsInf(float64(deadline), 1) {
		return
	}
	q.seq++
	t := &task[K]{key: key, deadline: deadline, seq: q.seq, fn: fn}
	heap.Push(&q.tasks, t)
	q.byKey[key] = t
}

func (q *DeadlineQueue[K]) Cancel(key K) bool {
	t, ok := q.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&q.tasks, t.index)
	delete(q.byKey, key)
	return true
}

func (q *DeadlineQueue[K]) Pending(key K) bool {
	_, ok := q.byKey[key]
	return ok
}

// Advance runs, in deadline order, every task whose deadline is at or
// before now and returns how many ran. Callbacks may schedule or cancel
// other tasks.
func (q *DeadlineQueue[K]) Advance(now model.Timestamp) int {
	fired := 0
	for len(q.tasks) > 0 && q.tasks[0].deadline <= now {
		t := heap.Pop(&q.tasks).(*task[K])
		delete(q.byKey, t.key)
		t.fn()
		fired++
	}
	return fired
}

func (q *DeadlineQueue[K]) Len() int { return len(q.tasks) }

// NextDeadline reports the earliest pending deadline.
func (q *DeadlineQueue[K]) NextDeadline() (model.Timestamp, bool) {
	if len(q.tasks) == 0 {
		return 0, false
	}
	return q.tasks[0].deadline, true
}
