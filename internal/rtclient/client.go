package rtclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EgorLis/palermobot/internal/clock"
	"github.com/EgorLis/palermobot/internal/store"
	"github.com/EgorLis/palermobot/internal/wire"
)

var (
	ErrNotConnected = errors.New("rtclient: not connected")
	ErrClosed       = errors.New("rtclient: client closed")
)

// RemoteError — ошибка, которую вернул сервер на запрос.
type RemoteError struct {
	Op      wire.Op
	Path    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rtclient: %s %q: %s", e.Op, e.Path, e.Message)
}

const (
	defaultRequestTimeout = 8 * time.Second
	writeTimeout          = 5 * time.Second
)

type Client struct {
	url            string
	dialer         *websocket.Dialer
	requestTimeout time.Duration
	clock          clock.Clock // паузы реконнекта
	log            *slog.Logger

	conn   *websocket.Conn // под wmu
	wmu    sync.Mutex      // сериализует запись в websocket и замену conn
	seq    atomic.Uint32
	mu     sync.Mutex
	cbs    map[uint32]func(wire.Frame)
	closed atomic.Bool

	pingStop     chan struct{} // под wmu
	lastActivity atomic.Int64  // unix nanos последнего успешного приёма

	subMu   sync.Mutex
	subs    map[uint32]*remoteSub
	nextSub atomic.Uint32

	// "События"
	OnConnecting   func()
	OnConnected    func()
	OnDisconnected func()
	OnError        func(error)
}

var _ store.Store = (*Client)(nil)

type Option func(*Client)

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithRequestTimeout — сколько ждать ответа, если у ctx нет своего дедлайна.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		dialer:         websocket.DefaultDialer,
		requestTimeout: defaultRequestTimeout,
		clock:          clock.Real(),
		log:            slog.Default(),
		cbs:            make(map[uint32]func(wire.Frame)),
		subs:           make(map[uint32]*remoteSub),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect — устанавливает WebSocket и запускает readLoop.
// Отмена ctx закрывает соединение и останавливает реконнекты.
func (c *Client) Connect(ctx context.Context) error {
	if c.OnConnecting != nil {
		c.OnConnecting()
	}
	conn, err := c.dialAndSetup(ctx)
	if err != nil {
		return fmt.Errorf("rtclient: connect %s: %w", c.url, err)
	}
	c.setConn(conn)
	c.closed.Store(false)

	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.readLoop(ctx, conn)
	return nil
}

// Close закрывает соединение навсегда. Повторный вызов ничего не делает.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.closeConn()
	c.failPendingCallbacks(ErrClosed)

	c.subMu.Lock()
	subs := c.subs
	c.subs = make(map[uint32]*remoteSub)
	c.subMu.Unlock()
	for _, s := range subs {
		s.queue.Close()
	}
}

// sendRequest — отправляет кадр с новым seq. cb вызывается ответом с тем же
// seq (или искусственным ответом с ошибкой при обрыве).
func (c *Client) sendRequest(f wire.Frame, cb func(wire.Frame)) (uint32, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	f.Seq = c.seq.Add(1)
	data, err := wire.Encode(f)
	if err != nil {
		return 0, err
	}

	if cb != nil {
		c.mu.Lock()
		c.cbs[f.Seq] = cb
		c.mu.Unlock()
	}
	if err := c.write(data); err != nil {
		// сеть упала между подготовкой и записью — подчищаем cb
		c.dropCallback(f.Seq)
		return 0, err
	}
	return f.Seq, nil
}

// call — запрос с ожиданием ответа (ctx или requestTimeout).
func (c *Client) call(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	respCh := make(chan wire.Frame, 1)
	seq, err := c.sendRequest(f, func(r wire.Frame) { respCh <- r })
	if err != nil {
		return wire.Frame{}, err
	}

	select {
	case r := <-respCh:
		if r.Error != "" {
			return r, &RemoteError{Op: f.Op, Path: f.Path, Message: r.Error}
		}
		return r, nil
	case <-ctx.Done():
		c.dropCallback(seq)
		return wire.Frame{}, fmt.Errorf("rtclient: %s %q: %w", f.Op, f.Path, ctx.Err())
	}
}

func (c *Client) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Client) dropCallback(seq uint32) {
	c.mu.Lock()
	delete(c.cbs, seq)
	c.mu.Unlock()
}

func (c *Client) takeCallback(seq uint32) (func(wire.Frame), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.cbs[seq]
	if ok {
		delete(c.cbs, seq)
	}
	return cb, ok
}

// failPendingCallbacks — завершить все ожидающие запросы ошибкой.
func (c *Client) failPendingCallbacks(err error) {
	c.mu.Lock()
	cbs := c.cbs
	c.cbs = make(map[uint32]func(wire.Frame))
	c.mu.Unlock()

	for seq, cb := range cbs {
		cb(wire.Frame{Op: wire.OpResult, Seq: seq, Error: err.Error()})
	}
}

func (c *Client) reportError(err error) {
	if c.OnError != nil && !c.closed.Load() {
		c.OnError(err)
	}
}
