package rtclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/EgorLis/palermobot/internal/store"
	"github.com/EgorLis/palermobot/internal/wire"
)

// ========================= store.Store =========================

func (c *Client) Get(ctx context.Context, path string) (any, error) {
	r, err := c.call(ctx, wire.Frame{Op: wire.OpGet, Path: path})
	if err != nil {
		return nil, err
	}
	return r.Value, nil
}

func (c *Client) Set(ctx context.Context, path string, value any) error {
	v, err := store.Normalize(value)
	if err != nil {
		return fmt.Errorf("rtclient: set %q: %w", path, err)
	}
	_, err = c.call(ctx, wire.Frame{Op: wire.OpSet, Path: path, Value: v})
	return err
}

// Subscribe регистрирует локальную очередь до запроса: начальное событие
// сервера может прийти раньше ответа.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(store.Event)) (store.Subscription, error) {
	s := &remoteSub{
		c:     c,
		id:    c.nextSub.Add(1),
		path:  path,
		queue: store.NewQueue(fn),
	}
	c.subMu.Lock()
	c.subs[s.id] = s
	c.subMu.Unlock()

	if _, err := c.call(ctx, wire.Frame{Op: wire.OpSubscribe, Sub: s.id, Path: path}); err != nil {
		c.removeSub(s.id)
		s.queue.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) removeSub(id uint32) {
	c.subMu.Lock()
	delete(c.subs, id)
	c.subMu.Unlock()
}

// resubscribe — после реконнекта сервер ничего не знает о наших подписках
func (c *Client) resubscribe(ctx context.Context) {
	c.subMu.Lock()
	subs := make([]*remoteSub, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subMu.Unlock()

	for _, s := range subs {
		if _, err := c.call(ctx, wire.Frame{Op: wire.OpSubscribe, Sub: s.id, Path: s.path}); err != nil {
			c.reportError(fmt.Errorf("rtclient: resubscribe %q: %w", s.path, err))
			continue
		}
		c.log.Debug("rtclient resubscribed", "path", s.path, "sub", s.id)
	}
}

type remoteSub struct {
	c     *Client
	id    uint32
	path  string
	queue *store.Queue
	once  sync.Once
}

// Cancel не ждёт ответа сервера, так что его можно звать из обработчика.
func (s *remoteSub) Cancel() error {
	s.once.Do(func() {
		s.c.removeSub(s.id)
		s.queue.Close()
		if _, err := s.c.sendRequest(wire.Frame{Op: wire.OpUnsubscribe, Sub: s.id}, nil); err != nil {
			// без соединения сервер уже забыл подписку
			s.c.log.Debug("rtclient unsubscribe not sent", "path", s.path, "err", err)
		}
	})
	return nil
}
