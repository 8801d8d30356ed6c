package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/emoradar/emoradar/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatalf("❌ emoradar failed to start: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("❌ emoradar stopped with error: %v", err)
	}
}
