package cli

import (
	"os"

	"github.com/melih/lighthouse-launch/internal/launcher"
	"github.com/spf13/cobra"
)

func newLaunchCommand(e *env) *cobra.Command {
	var (
		app         string
		host        string
		server      string
		defaultPort int
	)
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Run the ASGI server in the foreground on $PORT (default 8000)",
		Long: `Resolves PORT, checks the address can be bound and runs the server as
the only process. The command exits with the server's exit status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := e.cfg.Recipe
			if app == "" {
				app = r.App
			}
			if server == "" {
				server = r.Server
			}
			if defaultPort == 0 {
				defaultPort = r.DefaultPort
			}
			argv, err := launcher.ParseServerCommand(server)
			if err != nil {
				return err
			}
			l := launcher.New(launcher.Options{
				App:         app,
				Host:        host,
				Server:      argv,
				DefaultPort: defaultPort,
				Getenv:      os.Getenv,
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
				Logger:      e.log,
			})
			return l.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVar(&app, "app", "", "application object as module:attribute (default from recipe)")
	f.StringVar(&host, "host", launcher.DefaultHost, "address to bind")
	f.StringVar(&server, "server", "", "server command line (default from recipe)")
	f.IntVar(&defaultPort, "default-port", 0, "port used when PORT is unset (default from recipe)")
	return cmd
}
