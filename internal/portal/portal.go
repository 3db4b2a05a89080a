package portal

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/ttp/internal/protocol"
	"github.com/danmuck/ttp/internal/protocol/frame"
)

// StandardPort is the conventional listen port for multiplexed service.
const StandardPort = 4020

// DefaultPollWindow bounds how long the selector waits for the first byte of
// an inbound frame before moving on to the next channel.
const DefaultPollWindow = time.Millisecond

var (
	ErrClosed         = errors.New("portal: closed")
	ErrInvalidRouting = errors.New("portal: invalid routing id")
	ErrChannelCount   = errors.New("portal: channel count must be positive")
)

// Stream is what a portal multiplexes over. net.Conn satisfies it, as does
// any transport adapter that can honor read deadlines.
type Stream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Portal owns one stream and a fixed array of channels, with a selector
// worker moving packets between them. Channels exist for the portal's whole
// lifetime; there is no dynamic open or close of individual channels.
type Portal struct {
	name       string
	conn       Stream
	r          *frame.Reader
	w          *frame.Writer
	channels   []*Channel
	sel        *Selector
	pollWindow time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open wraps conn in a portal with chcount channels and starts its selector.
// An empty name is replaced with a generated one.
func Open(conn Stream, name string, chcount int) (*Portal, error) {
	if chcount <= 0 {
		return nil, ErrChannelCount
	}
	if name == "" {
		name = uuid.NewString()
	}
	p := &Portal{
		name:       name,
		conn:       conn,
		r:          frame.NewReader(conn),
		w:          frame.NewWriter(conn),
		channels:   make([]*Channel, chcount),
		pollWindow: DefaultPollWindow,
	}
	for i := range p.channels {
		p.channels[i] = newChannel(i)
	}
	p.sel = newSelector(p)
	p.sel.Start()
	return p, nil
}

// Name returns the portal's name.
func (p *Portal) Name() string { return p.name }

// ChannelCount returns the fixed number of channels.
func (p *Portal) ChannelCount() int { return len(p.channels) }

// Channel returns channel i. Indexes outside [0, ChannelCount) are a
// programming error and panic.
func (p *Portal) Channel(i int) *Channel { return p.channels[i] }

// Selector exposes the portal's worker for state inspection.
func (p *Portal) Selector() *Selector { return p.sel }

// IsClosed reports whether Close has been called.
func (p *Portal) IsClosed() bool { return p.closed.Load() }

// Transfer sends req on channel 0 and blocks for the reply. It is the
// simple request/response shape layered over the multiplexer.
func (p *Portal) Transfer(req protocol.Packet) (protocol.Packet, error) {
	if p.closed.Load() {
		return protocol.Packet{}, ErrClosed
	}
	ch := p.channels[0]
	ch.Send(req)
	for {
		if resp, ok := ch.Receive(); ok {
			return resp, nil
		}
		ch.AwaitInput()
		if p.closed.Load() {
			if resp, ok := ch.Receive(); ok {
				return resp, nil
			}
			return protocol.Packet{}, ErrClosed
		}
	}
}

// Close stops the selector, releases every channel waiter and closes the
// stream. Packets already enqueued outbound are drained to the wire first.
// Close is idempotent; later calls return the first result.
func (p *Portal) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.sel.Stop()
		for _, ch := range p.channels {
			ch.close()
		}
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}
