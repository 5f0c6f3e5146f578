package negotiation

import "sync"

// queue runs posted closures one at a time, in order, on a single goroutine.
// post never blocks, so transport hooks can enqueue from inside transport calls.
type queue struct {
	mu    sync.Mutex
	items []func()

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newQueue() *queue {
	q := &queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// post enqueues fn. It reports false once the queue is stopped.
func (q *queue) post(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) run() {
	for {
		select {
		case <-q.wake:
			for {
				fn, ok := q.pop()
				if !ok {
					break
				}
				fn()

				select {
				case <-q.done:
					return
				default:
				}
			}
		case <-q.done:
			return
		}
	}
}

func (q *queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

// stop ends the run loop after the closure currently executing. Pending
// closures are dropped.
func (q *queue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}

// Done is closed once the queue is stopped.
func (q *queue) Done() <-chan struct{} { return q.done }
