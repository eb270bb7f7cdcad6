// Command receiptctl captures, verifies and reviews receipts against a
// running receipt-capture server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/client"
	"github.com/zombor/receipt-capture/internal/logging"
)

// app carries the global flags and I/O shared by every subcommand
type app struct {
	serverURL *string
	timeout   *time.Duration
	logLevel  *string

	stdin  io.Reader
	stdout io.Writer
	logger *zap.Logger
}

func (a *app) client() *client.Client {
	return client.New(*a.serverURL, *a.timeout)
}

func main() {
	a := &app{stdin: os.Stdin, stdout: os.Stdout}

	rootFlags := ff.NewFlagSet("receiptctl")
	a.serverURL = rootFlags.StringLong("server", "http://localhost:3001", "receipt-capture server URL")
	a.timeout = rootFlags.DurationLong("timeout", 2*time.Minute, "HTTP request timeout")
	a.logLevel = rootFlags.StringLong("log-level", "warn", "Log level: debug, info, warn, error")

	root := &ff.Command{
		Name:      "receiptctl",
		Usage:     "receiptctl [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "capture and review receipts from the terminal",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			a.captureCommand(rootFlags),
			a.historyCommand(rootFlags),
			a.exportCommand(rootFlags),
			a.aiCallsCommand(rootFlags),
			a.deleteCommand(rootFlags),
		},
		Exec: func(context.Context, []string) error {
			return ff.ErrHelp
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Parse(os.Args[1:], ff.WithEnvVarPrefix("RECEIPTCTL")); err != nil {
		exit(root, err)
	}

	a.logger = logging.New(logging.Config{Level: *a.logLevel, Format: "console"})
	defer a.logger.Sync()

	if err := root.Run(ctx); err != nil {
		exit(root, err)
	}
}

func exit(root *ff.Command, err error) {
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
