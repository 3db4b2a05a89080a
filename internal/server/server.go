package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/danmuck/ttp/internal/logging"
	"github.com/danmuck/ttp/internal/observability"
	"github.com/danmuck/ttp/internal/portal"
)

// Mode selects how a connection's byte stream carries packets.
type Mode int

const (
	// ModeMultiplexed runs a portal with a selector per connection.
	ModeMultiplexed Mode = iota
	// ModeDirect applies the codec straight to the stream.
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "multiplexed"
}

var (
	ErrServerClosed = errors.New("server: closed")
	ErrBadConfig    = errors.New("server: bad config")
)

type Config struct {
	Addr         string
	Mode         Mode
	ChannelCount int
	Workers      int
}

func DefaultConfig() Config {
	return Config{
		Addr:         fmt.Sprintf(":%d", portal.StandardPort),
		Mode:         ModeMultiplexed,
		ChannelCount: 2,
		Workers:      128,
	}
}

func (c Config) validate() error {
	if c.Mode == ModeMultiplexed && c.ChannelCount < 2 {
		return fmt.Errorf("%w: multiplexed mode needs a control and a data channel, got %d",
			ErrBadConfig, c.ChannelCount)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: worker count %d", ErrBadConfig, c.Workers)
	}
	return nil
}

// Server accepts connections and runs one evaluator loop per client on a
// bounded worker pool. When the pool is saturated new connections are
// dropped rather than queued.
type Server struct {
	cfg  Config
	eval Evaluator
	pool *ants.Pool
	log  logging.Logger

	mu      sync.Mutex
	ln      net.Listener
	http    *http.Server
	clients map[io.Closer]struct{}

	closed atomic.Bool
	wg     sync.WaitGroup
}

func New(cfg Config, eval Evaluator) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		eval:    eval,
		pool:    pool,
		log:     logging.Component("server"),
		clients: make(map[io.Closer]struct{}),
	}, nil
}

// ListenAndServe listens on the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts on ln until Close or a non-recoverable accept error.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Stringer("mode", s.cfg.Mode).Msg("serving")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			return err
		}
		s.wg.Add(1)
		submitted := s.pool.Submit(func() {
			defer s.wg.Done()
			s.handle(conn, "tcp")
		})
		if submitted != nil {
			s.wg.Done()
			conn.Close()
			s.log.Warn().Err(submitted).
				Str("remote", conn.RemoteAddr().String()).Msg("connection dropped")
		}
	}
}

// Close stops accepting, closes every live client and waits for handlers to
// drain.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	if s.http != nil {
		s.http.Close()
	}
	for c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.pool.Release()
	return nil
}

func (s *Server) track(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) untrack(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// streamConn is the slice of net.Conn the handlers actually need, so
// websocket adapters can be served through the same paths.
type streamConn interface {
	portal.Stream
	RemoteAddr() net.Addr
}

func (s *Server) handle(conn streamConn, transport string) {
	observability.RecordConnection(transport, s.cfg.Mode.String())
	switch s.cfg.Mode {
	case ModeDirect:
		s.handleDirect(conn)
	default:
		s.handleMultiplexed(conn)
	}
}

// handleMultiplexed serves the control channel: evaluate each request, reply
// on channel 0 and forward datum packets on channel 1.
func (s *Server) handleMultiplexed(conn streamConn) {
	p, err := portal.Open(conn, conn.RemoteAddr().String(), s.cfg.ChannelCount)
	if err != nil {
		conn.Close()
		return
	}
	defer p.Close()
	if !s.track(p) {
		return
	}
	defer s.untrack(p)

	log := s.log.With().Str("portal", p.Name()).Logger()
	log.Info().Msg("client connected")
	defer log.Info().Msg("client finished")

	control := p.Channel(0)
	for {
		control.AwaitInput()
		req, ok := control.Receive()
		if !ok {
			return
		}
		log.Debug().Stringer("req", req).Msg("request")
		start := time.Now()
		v := s.eval.Evaluate(req)
		observability.RecordExchange(s.cfg.Mode.String(), req.Header, v.Response.Header, time.Since(start))
		log.Debug().Stringer("res", v.Response).Msg("response")
		control.Send(v.Response)
		if v.Forward {
			p.Channel(1).Send(req)
		}
		if v.Done {
			return
		}
	}
}

// handleDirect serves the singleplexed request/response loop. Verdict
// forwarding does not apply without a side channel.
func (s *Server) handleDirect(conn streamConn) {
	d := portal.NewDirect(conn, conn.RemoteAddr().String())
	defer d.Close()
	if !s.track(d) {
		return
	}
	defer s.untrack(d)

	log := s.log.With().Str("portal", d.Name()).Logger()
	log.Info().Msg("client connected")
	defer log.Info().Msg("client finished")

	for {
		req, err := d.Receive()
		if err != nil {
			return
		}
		log.Debug().Stringer("req", req).Msg("request")
		start := time.Now()
		v := s.eval.Evaluate(req)
		observability.RecordExchange(s.cfg.Mode.String(), req.Header, v.Response.Header, time.Since(start))
		log.Debug().Stringer("res", v.Response).Msg("response")
		if err := d.Send(v.Response); err != nil {
			return
		}
		if v.Done {
			return
		}
	}
}
