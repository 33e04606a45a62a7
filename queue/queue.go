package queue

// An array-based fixed-length queue implementation, supposedly faster than a LinkedList implementation.
// Used for the bounded inboxes of in-process connections.

type Queue[T any] struct {
	// tracking the length separately in l, because calculating it from (front, back)
	// is difficult in some cases (especially rollover)
	front, back, l int
	queue          []T
}

func NewQueue[T any](capacity int) Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return Queue[T]{queue: make([]T, capacity)}
}

func (q *Queue[T]) Len() int {
	return q.l
}

func (q *Queue[T]) Cap() int {
	return len(q.queue)
}

// Append to the back. Returns false if queue is full.
func (q *Queue[T]) Push(e T) bool {
	if q.l >= len(q.queue) {
		return false
	}
	q.queue[q.back] = e
	q.back = (q.back + 1) % len(q.queue)
	q.l++
	return true
}

// Get from the front. ok is false if the queue is empty.
func (q *Queue[T]) Pop() (e T, ok bool) {
	if q.l == 0 {
		return e, false
	}
	var zero T
	e = q.queue[q.front]
	q.queue[q.front] = zero
	q.front = (q.front + 1) % len(q.queue)
	q.l--
	return e, true
}

// Returns the front element without removing it.
func (q *Queue[T]) Peek() (e T, ok bool) {
	if q.l == 0 {
		return e, false
	}
	return q.queue[q.front], true
}
