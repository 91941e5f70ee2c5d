// Command orderctl is the order-desk admin tool: schema migrations, demo
// data seeding and bulk promo code imports.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("orderctl failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}
}
