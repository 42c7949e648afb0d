package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"partsuite/internal/app"
	"partsuite/internal/config"
	"partsuite/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger := app.NewLogger(cfg, os.Stderr)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a, err := app.Build(cfg, db, logger)
	must(err)
	svc, err := a.Listener()
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
