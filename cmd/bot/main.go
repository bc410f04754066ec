package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nagbot/internal/app"
)

func main() {
	// .env is optional; real deployments set BOT_TOKEN via the unit file.
	_ = godotenv.Load()

	cfgPath := flag.String("config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nagbot: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nagbot: start: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "nagbot: shutdown: %v\n", err)
		os.Exit(1)
	}
}
