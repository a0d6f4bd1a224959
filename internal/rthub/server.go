package rthub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/EgorLis/palermobot/internal/store"
	"github.com/EgorLis/palermobot/internal/wire"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
)

type Server struct {
	store    store.Store
	log      *slog.Logger
	upgrader websocket.Upgrader
	active   atomic.Int64
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		store: st,
		log:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// клиенты — боты и сервисы, не браузеры
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connections — сколько клиентов подключено сейчас.
func (s *Server) Connections() int64 { return s.active.Load() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("rthub: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		srv:  s,
		subs: make(map[uint32]store.Subscription),
	}
	s.active.Add(1)
	defer s.active.Add(-1)

	log := s.log.With("conn", c.id, "remote", r.RemoteAddr)
	log.Info("rthub: client connected")
	err = c.serve(r.Context())
	log.Info("rthub: client disconnected", "err", err)
}

type conn struct {
	id  string
	ws  *websocket.Conn
	srv *Server
	wmu sync.Mutex

	mu   sync.Mutex
	subs map[uint32]store.Subscription
}

func (c *conn) serve(ctx context.Context) error {
	defer func() {
		c.cancelAll()
		_ = c.ws.Close()
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPingHandler(func(data string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		f, err := wire.Decode(data)
		if err != nil {
			c.srv.log.Debug("rthub: bad frame", "conn", c.id, "err", err)
			continue
		}
		c.handle(ctx, f)
	}
}

func (c *conn) handle(ctx context.Context, f wire.Frame) {
	resp := wire.Frame{Op: wire.OpResult, Seq: f.Seq}

	switch f.Op {
	case wire.OpGet:
		v, err := c.srv.store.Get(ctx, f.Path)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Value = v

	case wire.OpSet:
		if err := c.srv.store.Set(ctx, f.Path, f.Value); err != nil {
			resp.Error = err.Error()
		}

	case wire.OpSubscribe:
		if f.Sub == 0 {
			resp.Error = "subscribe: sub id is required"
			break
		}
		// повторная подписка с тем же id (после реконнекта клиента) заменяет старую
		c.cancel(f.Sub)
		subID := f.Sub
		sub, err := c.srv.store.Subscribe(ctx, f.Path, func(ev store.Event) {
			c.send(wire.Frame{Op: wire.OpEvent, Sub: subID, Path: ev.Path, Value: ev.Data})
		})
		if err != nil {
			resp.Error = err.Error()
			break
		}
		c.mu.Lock()
		c.subs[subID] = sub
		c.mu.Unlock()

	case wire.OpUnsubscribe:
		c.cancel(f.Sub)

	default:
		resp.Error = "unknown op " + string(f.Op)
	}

	c.send(resp)
}

func (c *conn) send(f wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		c.srv.log.Error("rthub: encode frame", "conn", c.id, "op", f.Op, "err", err)
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.srv.log.Debug("rthub: write failed", "conn", c.id, "op", f.Op, "err", err)
	}
}

func (c *conn) cancel(id uint32) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		_ = sub.Cancel()
	}
}

func (c *conn) cancelAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint32]store.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Cancel()
	}
}
