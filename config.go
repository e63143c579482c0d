package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// config is the resolved runtime configuration.
type config struct {
	Addr            string
	WSPath          string
	StaticDir       string
	Origin          string
	MaxConns        int
	MaxMessageSize  int64
	SendQueue       int
	SendTimeout     time.Duration
	PingInterval    time.Duration
	PingTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsTick     time.Duration
	LogFile         string
	Debug           bool
}

func defaultConfig() config {
	return config{
		Addr:            "0.0.0.0:8000",
		WSPath:          "/ws",
		MaxConns:        1000,
		MaxMessageSize:  16 * 1024 * 1024,
		SendQueue:       256,
		SendTimeout:     5 * time.Second,
		PingInterval:    20 * time.Second,
		PingTimeout:     10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsTick:     60 * time.Second,
	}
}

func configFlags() []cli.Flag {
	d := defaultConfig()
	return []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: d.Addr, Usage: "http service address", Sources: cli.EnvVars("RELAY_ADDR")},
		&cli.StringFlag{Name: "ws-path", Value: d.WSPath, Usage: "websocket endpoint path", Sources: cli.EnvVars("RELAY_WS_PATH")},
		&cli.StringFlag{Name: "static-dir", Usage: "directory served under /static/; its index.html replaces the built-in page", Sources: cli.EnvVars("RELAY_STATIC_DIR")},
		&cli.StringFlag{Name: "origin", Usage: "only accept websocket Origin headers equal to this scheme://host[:port]", Sources: cli.EnvVars("RELAY_ORIGIN")},
		&cli.IntFlag{Name: "max-conns", Value: d.MaxConns, Usage: "maximum concurrent connections, 0 for no limit", Sources: cli.EnvVars("RELAY_MAX_CONNS")},
		&cli.Int64Flag{Name: "max-message-size", Value: d.MaxMessageSize, Usage: "maximum inbound message size in bytes", Sources: cli.EnvVars("RELAY_MAX_MESSAGE_SIZE")},
		&cli.IntFlag{Name: "send-queue", Value: d.SendQueue, Usage: "frames queued per connection before it is evicted", Sources: cli.EnvVars("RELAY_SEND_QUEUE")},
		&cli.DurationFlag{Name: "send-timeout", Value: d.SendTimeout, Usage: "time allowed to write a frame to a peer", Sources: cli.EnvVars("RELAY_SEND_TIMEOUT")},
		&cli.DurationFlag{Name: "ping-interval", Value: d.PingInterval, Usage: "keepalive ping period, 0 disables keepalive", Sources: cli.EnvVars("RELAY_PING_INTERVAL")},
		&cli.DurationFlag{Name: "ping-timeout", Value: d.PingTimeout, Usage: "time allowed for a pong after a ping", Sources: cli.EnvVars("RELAY_PING_TIMEOUT")},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: d.ShutdownTimeout, Usage: "time allowed for graceful shutdown", Sources: cli.EnvVars("RELAY_SHUTDOWN_TIMEOUT")},
		&cli.DurationFlag{Name: "metrics-tick", Value: d.MetricsTick, Usage: "duration between metrics reports, 0 disables them", Sources: cli.EnvVars("RELAY_METRICS_TICK")},
		&cli.StringFlag{Name: "log-file", Usage: "also write logs to this file", Sources: cli.EnvVars("RELAY_LOG_FILE")},
		&cli.BoolFlag{Name: "debug", Usage: "log source file and line", Sources: cli.EnvVars("RELAY_DEBUG")},
	}
}

func configFromCommand(cmd *cli.Command) (config, error) {
	cfg := config{
		Addr:            cmd.String("addr"),
		WSPath:          cmd.String("ws-path"),
		StaticDir:       cmd.String("static-dir"),
		Origin:          cmd.String("origin"),
		MaxConns:        cmd.Int("max-conns"),
		MaxMessageSize:  cmd.Int64("max-message-size"),
		SendQueue:       cmd.Int("send-queue"),
		SendTimeout:     cmd.Duration("send-timeout"),
		PingInterval:    cmd.Duration("ping-interval"),
		PingTimeout:     cmd.Duration("ping-timeout"),
		ShutdownTimeout: cmd.Duration("shutdown-timeout"),
		MetricsTick:     cmd.Duration("metrics-tick"),
		LogFile:         cmd.String("log-file"),
		Debug:           cmd.Bool("debug"),
	}
	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("ws-path %q must start with /", c.WSPath))
	}
	if c.WSPath == "/" || strings.HasPrefix(c.WSPath, "/static/") || c.WSPath == "/stats" {
		errs = append(errs, fmt.Errorf("ws-path %q collides with another route", c.WSPath))
	}
	if c.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("max-conns must not be negative, got %d", c.MaxConns))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max-message-size must be positive, got %d", c.MaxMessageSize))
	}
	if c.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("send-queue must be positive, got %d", c.SendQueue))
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"send-timeout", c.SendTimeout},
		{"ping-interval", c.PingInterval},
		{"ping-timeout", c.PingTimeout},
		{"shutdown-timeout", c.ShutdownTimeout},
		{"metrics-tick", c.MetricsTick},
	} {
		if d.val < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", d.name, d.val))
		}
	}
	return errors.Join(errs...)
}
