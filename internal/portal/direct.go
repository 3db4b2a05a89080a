package portal

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/danmuck/ttp/internal/protocol"
	"github.com/danmuck/ttp/internal/protocol/frame"
)

// Direct is the singleplex variant: the frame codec applied straight to a
// stream, no routing frames and no selector. The caller's goroutine does the
// I/O, so Send and Receive block on the stream itself.
type Direct struct {
	name string
	conn io.ReadWriteCloser
	r    *frame.Reader
	w    *frame.Writer

	wmu sync.Mutex
	rmu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewDirect wraps conn for singleplexed transfer. An empty name is replaced
// with a generated one.
func NewDirect(conn io.ReadWriteCloser, name string) *Direct {
	if name == "" {
		name = uuid.NewString()
	}
	return &Direct{
		name: name,
		conn: conn,
		r:    frame.NewReader(conn),
		w:    frame.NewWriter(conn),
	}
}

// Name returns the portal's name.
func (d *Direct) Name() string { return d.name }

// IsClosed reports whether Close has been called.
func (d *Direct) IsClosed() bool { return d.closed.Load() }

// Send writes one packet and flushes it to the stream.
func (d *Direct) Send(p protocol.Packet) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if err := d.w.WritePacket(p); err != nil {
		return err
	}
	return d.w.Flush()
}

// Receive blocks for the next packet on the stream.
func (d *Direct) Receive() (protocol.Packet, error) {
	if d.closed.Load() {
		return protocol.Packet{}, ErrClosed
	}
	d.rmu.Lock()
	defer d.rmu.Unlock()
	return d.r.ReadPacket()
}

// Transfer sends req and blocks for the reply.
func (d *Direct) Transfer(req protocol.Packet) (protocol.Packet, error) {
	if err := d.Send(req); err != nil {
		return protocol.Packet{}, err
	}
	return d.Receive()
}

// Close closes the underlying stream. Close is idempotent; later calls
// return the first result.
func (d *Direct) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.closeErr = d.conn.Close()
	})
	return d.closeErr
}
