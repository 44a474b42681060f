package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/evanofslack/cf-zone-sync/internal/cli"
)

func main() {
	// Interrupts cancel in-flight requests and stop before the next zone
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
