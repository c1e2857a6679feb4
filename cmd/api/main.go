package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/melih/lighthouse-launch/internal/cli"
	"github.com/melih/lighthouse-launch/internal/config"
	"github.com/melih/lighthouse-launch/internal/logging"
	"github.com/sirupsen/logrus"
)

// api runs only the control plane; it is what `lighthouse serve` runs,
// without the rest of the CLI.
func main() {
	cfg, used, err := config.Load(config.LoadOptions{
		File:       os.Getenv("LIGHTHOUSE_CONFIG"),
		SearchDirs: []string{"."},
	})
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	if used != "" {
		log.WithField("file", used).Info("loaded config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.Serve(ctx, cfg, log); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
