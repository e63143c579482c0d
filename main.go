// Command wsrelay is a websocket message relay.
//
//	wsrelay --addr=:8000
//
// Clients connect to the websocket endpoint (default /ws) and send JSON text
// messages of the form
//
//	{"message": "hi", "timestamp": "t1"}
//
// Each message is answered with an echo to the sender
//
//	{"type": "echo", "message": "Server received: hi", "timestamp": "t1"}
//
// and relayed to every connected client, the sender included:
//
//	{"type": "broadcast", "message": "Broadcast: hi", "timestamp": "t1"}
//
// Text that is not JSON gets an error envelope back and nothing is relayed.
// Nothing is stored: a client only receives what is sent while it is
// connected.
//
// GET / serves an HTML client; /static/ serves --static-dir; /stats reports
// metrics as JSON. Every flag can also be set from the environment or a
// .env file, see --help.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// Values already in the environment take precedence over .env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: error loading .env file: %v", err)
	}

	cmd := &cli.Command{
		Name:   "wsrelay",
		Usage:  "relay JSON messages between websocket clients",
		Flags:  configFlags(),
		Action: runRelay,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func runRelay(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}

	logOut, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	startMetrics(logOut, cfg.MetricsTick)
	defer finalMetrics()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newServer(cfg).run(ctx)
}

func setupLogging(cfg config) (io.Writer, func(), error) {
	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	w := io.MultiWriter(os.Stderr, f)
	log.SetOutput(w)
	return w, func() { f.Close() }, nil
}
