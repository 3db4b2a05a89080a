package server

import (
	"errors"
	"net"
	"net/http"

	"github.com/danmuck/ttp/internal/wsstream"
)

// WebsocketPattern is the endpoint clients dial for websocket transport.
const WebsocketPattern = "/ttp"

// ServeWebsocket accepts websocket clients on ln and runs them through the
// same handlers as raw TCP connections. It returns ErrServerClosed after
// Close.
func (s *Server) ServeWebsocket(ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc(WebsocketPattern, func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsstream.Upgrade(w, r)
		if err != nil {
			s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
			return
		}
		s.wg.Add(1)
		if err := s.pool.Submit(func() {
			defer s.wg.Done()
			s.handle(conn, "websocket")
		}); err != nil {
			s.wg.Done()
			conn.Close()
			s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("connection dropped")
		}
	})

	hs := &http.Server{Handler: mux}
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.http = hs
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("serving websocket")

	err := hs.Serve(ln)
	if s.closed.Load() || errors.Is(err, http.ErrServerClosed) {
		return ErrServerClosed
	}
	return err
}
