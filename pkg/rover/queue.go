package rover

import "sync"

// commandQueue is the bounded FIFO between intent/event producers and
// the drain loop. It is the only shared mutable state between the two,
// so every operation holds the lock.
//
// Overflow never fails: when full, the newest command replaces the
// oldest pending command of the same category — freshness over
// completeness. If no same-category command is pending, the oldest
// overall goes.
type commandQueue struct {
	mu       sync.Mutex
	items    []Command
	capacity int
	dropped  uint64
}

func newCommandQueue(capacity int) *commandQueue {
	return &commandQueue{capacity: capacity}
}

func (q *commandQueue) push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		idx := 0
		for i, pending := range q.items {
			if pending.Category == cmd.Category {
				idx = i
				break
			}
		}
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		q.dropped++
	}
	q.items = append(q.items, cmd)
}

// pop removes and returns the head.
func (q *commandQueue) pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Command{}, false
	}
	cmd := q.items[0]
	q.items = q.items[1:]
	return cmd, true
}

func (q *commandQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *commandQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
