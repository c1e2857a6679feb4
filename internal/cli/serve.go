package cli

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/melih/lighthouse-launch/internal/adapters/builder"
	"github.com/melih/lighthouse-launch/internal/adapters/docker"
	"github.com/melih/lighthouse-launch/internal/adapters/http"
	"github.com/melih/lighthouse-launch/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand(e *env) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and the subdomain proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := e.cfg
			if listen != "" {
				cfg.Listen = listen
			}
			return Serve(cmd.Context(), cfg, e.log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, \":3000\")")
	return cmd
}

// Serve runs the control API until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	// 1. Initialize Adapters (Infrastructure)
	dockerAdapter, err := docker.NewAdapter(log)
	if err != nil {
		return err
	}
	builderAdapter, err := builder.NewBuilderAdapter(log, log.WriterLevel(logrus.DebugLevel))
	if err != nil {
		return err
	}

	// 2. Initialize HTTP Handlers, injecting the adapters through their ports.
	containerHandler := http.NewContainerHandler(dockerAdapter, builderAdapter, cfg.Recipe)
	proxyHandler := http.NewProxyHandler(dockerAdapter)

	// 3. Setup Framework (Fiber)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(proxyHandler.ProxyRequest)
	containerHandler.Register(app)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	// 4. Start Server
	log.WithField("addr", cfg.Listen).Info("server starting")
	return app.Listen(cfg.Listen)
}
