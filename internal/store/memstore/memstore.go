// Package memstore — дерево состояния в памяти процесса с теми же
// правилами уведомлений, что и у удалённого хранилища. Используется
// сервером rthub как основное хранилище и тестами как дубль удалённого.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/EgorLis/palermobot/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	root    map[string]any
	subs    map[uint64]*subscription
	nextSub uint64
	version atomic.Uint64
	log     *slog.Logger
}

type Option func(*Store)

// WithDocument задаёт начальный документ (например, из снапшота).
func WithDocument(doc map[string]any) Option {
	return func(s *Store) {
		if doc != nil {
			s.root, _ = store.Clone(doc).(map[string]any)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(opts ...Option) *Store {
	s := &Store{
		root: map[string]any{},
		subs: make(map[uint64]*subscription),
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.root == nil {
		s.root = map[string]any{}
	}
	return s
}

var _ store.Store = (*Store)(nil)

// Version растёт на каждую запись. Нужен снапшотам, чтобы не писать
// документ, который не менялся.
func (s *Store) Version() uint64 { return s.version.Load() }

func (s *Store) Get(_ context.Context, path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Clone(lookup(s.root, store.Split(path))), nil
}

func (s *Store) Set(_ context.Context, path string, value any) error {
	v, err := store.Normalize(value)
	if err != nil {
		return fmt.Errorf("memstore: set %q: %w", path, err)
	}
	segs := store.Split(path)

	s.mu.Lock()
	if len(segs) == 0 {
		m, ok := v.(map[string]any)
		if v != nil && !ok {
			s.mu.Unlock()
			return fmt.Errorf("memstore: root must be an object, got %T", v)
		}
		if m == nil {
			m = map[string]any{}
		}
		s.root = m
	} else if v == nil {
		remove(s.root, segs)
	} else {
		put(s.root, segs, v)
	}
	s.version.Add(1)
	s.notifyLocked(segs)
	s.mu.Unlock()
	return nil
}

func (s *Store) Subscribe(_ context.Context, path string, fn func(store.Event)) (store.Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("memstore: subscribe %q: nil handler", path)
	}
	segs := store.Split(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	sub := &subscription{id: s.nextSub, path: segs, owner: s, queue: store.NewQueue(fn)}
	s.subs[sub.id] = sub
	// первое событие — текущее значение целиком
	sub.queue.Push(store.Event{Path: "/", Data: store.Clone(lookup(s.root, segs))})
	return sub, nil
}

// SubscriberCount — число активных подписок (для тестов и логов).
func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// notifyLocked раздаёт событие всем подпискам, которых касается изменение
// по пути changed. Вызывать под s.mu.
func (s *Store) notifyLocked(changed []string) {
	for _, sub := range s.subs {
		switch {
		case store.HasPrefix(changed, sub.path):
			// изменение внутри подписки: относительный путь и новое значение узла
			rel := "/" + store.Join(changed[len(sub.path):]...)
			sub.queue.Push(store.Event{Path: rel, Data: store.Clone(lookup(s.root, changed))})
		case store.HasPrefix(sub.path, changed):
			// изменение выше подписки: отдаём узел подписки целиком
			sub.queue.Push(store.Event{Path: "/", Data: store.Clone(lookup(s.root, sub.path))})
		}
	}
}

type subscription struct {
	id    uint64
	path  []string
	owner *Store
	queue *store.Queue
	once  sync.Once
}

func (sub *subscription) Cancel() error {
	sub.once.Do(func() {
		sub.owner.mu.Lock()
		delete(sub.owner.subs, sub.id)
		sub.owner.mu.Unlock()
		sub.queue.Close()
	})
	return nil
}

func lookup(root map[string]any, segs []string) any {
	var cur any = root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	if m, ok := cur.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return cur
}

func put(root map[string]any, segs []string, v any) {
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			// скаляр на пути перезатирается объектом
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

// remove удаляет узел и подчищает опустевших родителей.
func remove(root map[string]any, segs []string) {
	parents := []map[string]any{root}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		parents = append(parents, next)
		cur = next
	}
	delete(cur, segs[len(segs)-1])

	for i := len(parents) - 1; i > 0; i-- {
		if len(parents[i]) != 0 {
			break
		}
		delete(parents[i-1], segs[i-1])
	}
}
