package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ttp/internal/logging"
	"github.com/danmuck/ttp/internal/observability"
	"github.com/danmuck/ttp/internal/server"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "ttpd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to TOML config file")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := defaultDaemonConfig()
	if *configPath != "" {
		loaded, err := loadDaemonConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	srv, err := server.New(cfg.Config, server.StandardEvaluator{})
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() { errc <- srv.ListenAndServe() }()
	if cfg.WebsocketAddr != "" {
		ln, err := net.Listen("tcp", cfg.WebsocketAddr)
		if err != nil {
			srv.Close()
			return err
		}
		go func() { errc <- srv.ServeWebsocket(ln) }()
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go http.ListenAndServe(cfg.MetricsAddr, mux)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		srv.Close()
		return err
	case <-sig:
		return srv.Close()
	}
}
