package portal

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/danmuck/ttp/internal/logging"
	"github.com/danmuck/ttp/internal/protocol"
	"github.com/danmuck/ttp/internal/protocol/frame"
)

// Selector lifecycle states.
const (
	StateNew int32 = iota
	StateRunning
	StateStopping
	StateStopped
)

// StateName renders a selector state for logs.
func StateName(s int32) string {
	switch s {
	case StateNew:
		return "NEW"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	}
	return "unknown"
}

// Selector is the single worker that shuttles packets between the portal's
// channels and its stream. All stream I/O after Open happens here, which is
// what keeps a routing frame and its payload adjacent on the wire.
type Selector struct {
	portal *Portal

	state  atomic.Int32
	cycles atomic.Uint64
	done   chan struct{}

	// readDead and abort are only touched on the worker goroutine.
	readDead bool
	abort    bool
}

func newSelector(p *Portal) *Selector {
	s := &Selector{portal: p, done: make(chan struct{})}
	s.state.Store(StateNew)
	return s
}

// State reports the current lifecycle state.
func (s *Selector) State() int32 { return s.state.Load() }

// Cycles reports how many cycles the worker has started; the counter is
// bumped at the beginning of each sweep.
func (s *Selector) Cycles() uint64 { return s.cycles.Load() }

// Start launches the worker goroutine. Starting twice is a no-op.
func (s *Selector) Start() {
	if !s.state.CompareAndSwap(StateNew, StateRunning) {
		return
	}
	go s.run()
}

// Stop requests shutdown and blocks until the worker has exited. The worker
// keeps cycling until every channel's outbound queue is empty, so packets
// already enqueued still reach the wire.
func (s *Selector) Stop() {
	if s.state.CompareAndSwap(StateNew, StateStopped) {
		close(s.done)
		return
	}
	s.state.CompareAndSwap(StateRunning, StateStopping)
	<-s.done
}

func (s *Selector) runningOrDraining() bool {
	if s.state.Load() == StateRunning {
		return true
	}
	return s.anyOutbound()
}

func (s *Selector) anyOutbound() bool {
	for _, ch := range s.portal.channels {
		if ch.OutputSize() > 0 {
			return true
		}
	}
	return false
}

func (s *Selector) run() {
	log := logging.Component("selector").With().
		Str("portal", s.portal.name).Logger()
	log.Debug().Msg("selector started")
	defer func() {
		s.state.Store(StateStopped)
		close(s.done)
		log.Debug().Uint64("cycles", s.cycles.Load()).Msg("selector stopped")
	}()

	for s.runningOrDraining() {
		s.cycle(&log)
		if s.abort {
			return
		}
		if s.readDead && !s.anyOutbound() {
			return
		}
	}
}

// cycle visits every channel in ascending id order, moving at most one
// outbound packet per channel and then polling the stream for input.
func (s *Selector) cycle(log *logging.Logger) {
	s.cycles.Add(1)
	for _, ch := range s.portal.channels {
		if err := s.output(ch); err != nil {
			log.Error().Err(err).Int("channel", ch.id).Msg("write failed")
		}
		if s.readDead || s.abort {
			continue
		}
		if err := s.input(); err != nil {
			switch {
			case errors.Is(err, ErrInvalidRouting):
				log.Error().Err(err).Msg("selector aborting")
				s.abort = true
				return
			case errors.Is(err, frame.ErrTruncated), errors.Is(err, frame.ErrNegativeLength):
				log.Warn().Err(err).Msg("stream unreadable, draining outbound")
				s.readDead = true
			default:
				log.Warn().Err(err).Msg("read failed, draining outbound")
				s.readDead = true
			}
		}
	}
}

// output sends the head of ch's outbound queue as a routing frame followed by
// the payload frame, flushed together.
func (s *Selector) output(ch *Channel) error {
	p, ok := ch.get()
	if !ok {
		return nil
	}
	if err := s.portal.w.WritePacket(protocol.NewInt(ch.id)); err != nil {
		return err
	}
	if err := s.portal.w.WritePacket(p); err != nil {
		return err
	}
	return s.portal.w.Flush()
}

// input polls the stream for one logical packet. A quiet stream is not an
// error: the poll window expires and the cycle moves on. Once the first byte
// of a routing frame is seen, both frames are read with blocking reads.
func (s *Selector) input() error {
	conn := s.portal.conn
	if err := conn.SetReadDeadline(time.Now().Add(s.portal.pollWindow)); err != nil {
		return err
	}
	_, err := s.portal.r.Peek(1)
	if derr := conn.SetReadDeadline(time.Time{}); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		if isPollTimeout(err) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	routing, err := s.portal.r.ReadPacket()
	if err != nil {
		return err
	}
	id, aerr := strconv.Atoi(routing.Format())
	if aerr != nil || id < 0 || id >= len(s.portal.channels) {
		return fmt.Errorf("%w: %q", ErrInvalidRouting, routing.Format())
	}

	payload, err := s.portal.r.ReadPacket()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return frame.ErrTruncated
		}
		return err
	}
	s.portal.channels[id].put(payload)
	return nil
}

func isPollTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
