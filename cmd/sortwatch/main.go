package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Iron-Ham/sortwatch/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
