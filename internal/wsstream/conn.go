// Package wsstream adapts a websocket connection to the byte stream a
// portal multiplexes over. Binary messages are concatenated into one
// contiguous read stream; frame boundaries on the wire carry no meaning
// here.
package wsstream

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn wraps a websocket connection as an io.ReadWriteCloser with read
// deadlines. The websocket's own read deadline poisons the connection once
// it expires, so deadlines are implemented locally: a pump goroutine drains
// messages into a buffer and Read waits on that buffer instead of the
// socket.
type Conn struct {
	ws *websocket.Conn

	// gorilla permits one concurrent writer
	wmu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	buf      bytes.Buffer
	readErr  error
	deadline time.Time
	timer    *time.Timer

	closeOnce sync.Once
	closeErr  error
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws}
	c.cond = sync.NewCond(&c.mu)
	go c.pump()
	return c
}

// Upgrade hijacks an HTTP request into a websocket stream.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

// Dial connects to a websocket endpoint such as ws://host:port/ttp.
func Dial(url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *Conn) pump() {
	for {
		_, msg, err := c.ws.ReadMessage()
		c.mu.Lock()
		if err != nil {
			c.readErr = normalizeClose(err)
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		c.buf.Write(msg)
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

// A peer that says goodbye properly reads as a clean end of stream.
func normalizeClose(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	if errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return err
}

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.buf.Len() > 0 {
			return c.buf.Read(p)
		}
		if c.readErr != nil {
			return 0, c.readErr
		}
		if !c.deadline.IsZero() && !time.Now().Before(c.deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		c.cond.Wait()
	}
}

// SetReadDeadline bounds Read. A zero time means Read blocks until data or
// error.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if t.IsZero() {
		return nil
	}
	d := time.Until(t)
	if d <= 0 {
		c.cond.Broadcast()
		return nil
	}
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	return nil
}

func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame best-effort, closes the socket and releases any
// blocked reader.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.wmu.Lock()
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.wmu.Unlock()
		c.closeErr = c.ws.Close()

		c.mu.Lock()
		if c.readErr == nil {
			c.readErr = net.ErrClosed
		}
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	return c.closeErr
}
