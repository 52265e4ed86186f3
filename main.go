package main

import (
	"log/slog"
	"os"

	"service-queue/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		slog.Error("queued failed", "error", err)
		os.Exit(1)
	}
}
