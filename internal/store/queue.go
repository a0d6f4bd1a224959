package store

import "sync"

// Queue доставляет события одной подписки по порядку в отдельной горутине.
// Push никогда не блокирует отправителя (очередь не ограничена), поэтому
// обработчик может спокойно ходить в хранилище, а Close безопасно звать
// из самого обработчика — горутина выйдет после его возврата.
type Queue struct {
	fn func(Event)

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool
	done    chan struct{}
}

// NewQueue запускает горутину доставки для fn.
func NewQueue(fn func(Event)) *Queue {
	q := &Queue{fn: fn, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Push ставит событие в очередь. После Close — молча выбрасывает.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, ev)
	q.cond.Signal()
}

// Close останавливает доставку; недоставленные события теряются.
// Повторный вызов ничего не делает.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.pending = nil
	q.cond.Broadcast()
}

// Done закрывается, когда горутина доставки завершилась.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		ev := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.fn(ev)
	}
}
