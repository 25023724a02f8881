package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tgdrive/filebot/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.New().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
