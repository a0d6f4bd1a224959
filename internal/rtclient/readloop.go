package rtclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EgorLis/palermobot/internal/store"
	"github.com/EgorLis/palermobot/internal/wire"
)

const maxBackoff = 30 * time.Second

var errConnectionLost = errors.New("rtclient: connection lost")

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		c.closed.Store(true)
		c.closeConn()
		c.failPendingCallbacks(ErrClosed)
		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
	}()

	// закрыть по отмене контекста
	go func() {
		select {
		case <-ctx.Done():
			c.closed.Store(true)
			c.closeConn()
		case <-done:
		}
	}()

	backoff := time.Second

	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			f, derr := wire.Decode(data)
			if derr != nil {
				c.reportError(derr)
				continue
			}
			// успешное чтение
			c.touchActivity()
			c.dispatch(f)
			continue
		}

		if c.closed.Load() {
			return
		}
		c.reportError(err)

		// закрываем и фейлим ожидающие
		c.closeConn()
		c.failPendingCallbacks(errConnectionLost)

		// реконнект с backoff
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(backoff):
			}
			if c.closed.Load() {
				return
			}
			if c.OnConnecting != nil {
				c.OnConnecting()
			}
			nc, derr := c.dialAndSetup(ctx)
			if derr != nil {
				c.reportError(fmt.Errorf("rtclient: reconnect failed (wait %v): %w", backoff, derr))
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			conn = nc
			c.setConn(conn)
			backoff = time.Second
			break
		}

		if c.OnConnected != nil {
			c.OnConnected()
		}
		// подписки переоформляем вне readLoop: ответы читает он же
		go c.resubscribe(ctx)
	}
}

func (c *Client) dispatch(f wire.Frame) {
	switch f.Op {
	case wire.OpResult:
		if cb, ok := c.takeCallback(f.Seq); ok {
			cb(f)
		}
	case wire.OpEvent:
		c.subMu.Lock()
		s, ok := c.subs[f.Sub]
		c.subMu.Unlock()
		if ok {
			s.queue.Push(store.Event{Path: f.Path, Data: f.Value})
		}
	default:
		c.log.Debug("rtclient: unexpected frame", "op", f.Op, "seq", f.Seq)
	}
}
