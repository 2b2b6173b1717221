package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/models"
)

// pqItem represents a candidate in the heap
type pqItem struct {
	candidate models.CandidateURL
	seq       int // insertion order, breaks priority ties
	index     int // index in the heap (required by heap interface)
}

// priorityQueue implements heap.Interface. Higher Priority pops first; ties pop in insertion order.
type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].candidate.Priority != pq[j].candidate.Priority {
		return pq[i].candidate.Priority > pq[j].candidate.Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the heap
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

// Pop removes and returns the last element; heap.Pop has already moved the best one there
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// CandidateQueue is a thread-safe max-heap of frontier candidates ordered by priority.
// It feeds the progressive fill phase, which keeps pushing newly discovered links while popping.
type CandidateQueue struct {
	pq     priorityQueue
	seq    int
	queued map[string]bool
	mu     sync.Mutex
	log    *logrus.Entry
}

// NewCandidateQueue creates an empty queue
func NewCandidateQueue(log *logrus.Entry) *CandidateQueue {
	q := &CandidateQueue{queued: make(map[string]bool), log: log}
	heap.Init(&q.pq)
	return q
}

// Push adds a candidate. A URL already pushed once is ignored; returns whether it was added.
func (q *CandidateQueue) Push(c models.CandidateURL) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[c.NormalizedURL] {
		q.log.Debugf("Candidate already queued: %s", c.NormalizedURL)
		return false
	}
	q.queued[c.NormalizedURL] = true
	heap.Push(&q.pq, &pqItem{candidate: c, seq: q.seq})
	q.seq++
	return true
}

// Pop removes and returns the highest priority candidate, or false if the queue is empty.
// It never blocks.
func (q *CandidateQueue) Pop() (models.CandidateURL, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return models.CandidateURL{}, false
	}
	item := heap.Pop(&q.pq).(*pqItem)
	return item.candidate, true
}

// Len returns the current number of queued candidates
func (q *CandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}
