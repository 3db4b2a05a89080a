package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/ttp/internal/server"
)

type fileConfig struct {
	Addr          string `toml:"addr"`
	WebsocketAddr string `toml:"websocket_addr"`
	MetricsAddr   string `toml:"metrics_addr"`
	Mode          string `toml:"mode"`
	Channels      int    `toml:"channels"`
	Workers       int    `toml:"workers"`
}

type daemonConfig struct {
	server.Config
	WebsocketAddr string
	MetricsAddr   string
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{Config: server.DefaultConfig()}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load ttpd config: %w", err)
	}

	if meta.IsDefined("addr") {
		addr := strings.TrimSpace(raw.Addr)
		if addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("websocket_addr") {
		cfg.WebsocketAddr = strings.TrimSpace(raw.WebsocketAddr)
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("mode") {
		switch strings.ToLower(strings.TrimSpace(raw.Mode)) {
		case "multiplexed":
			cfg.Mode = server.ModeMultiplexed
		case "direct":
			cfg.Mode = server.ModeDirect
		default:
			return daemonConfig{}, fmt.Errorf("parse mode: unknown mode %q", raw.Mode)
		}
	}

	if meta.IsDefined("channels") {
		cfg.ChannelCount = raw.Channels
	}

	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}

	return cfg, nil
}
