package rtclient

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 10 * time.Second
	pongWait     = 30 * time.Second
)

// dial с установкой pong-handler'а и read-deadline
func (c *Client) dialAndSetup(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(16 << 20)

	// всегда обновляем отметку активности сразу
	c.touchActivity()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		c.touchActivity()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return conn, nil
}

// setConn — подменить текущее соединение и запустить для него пинги
func (c *Client) setConn(conn *websocket.Conn) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn = conn
	c.startPingLocked(conn)
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.stopPingLocked()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) sinceLastActivity() time.Duration {
	n := c.lastActivity.Load()
	if n == 0 {
		return time.Hour
	}
	return time.Since(time.Unix(0, n))
}

func (c *Client) startPingLocked(conn *websocket.Conn) {
	c.stopPingLocked()
	stop := make(chan struct{})
	c.pingStop = stop

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
				c.wmu.Unlock()
				if err != nil {
					c.log.Debug("rtclient ping failed", "err", err, "idle", c.sinceLastActivity())
				}
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
