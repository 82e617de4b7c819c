package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"platestation/internal/app"
)

func main() {
	application, err := app.NewApp()
	if err != nil {
		fmt.Printf("Error starting application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Printf("Server stopped: %v\n", err)
		os.Exit(1)
	}
}
