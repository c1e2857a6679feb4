// Package cli wires the lighthouse commands: build an image from an ASGI
// app's source tree, run it, and launch the server inside the container.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/melih/lighthouse-launch/internal/config"
	"github.com/melih/lighthouse-launch/internal/launcher"
	"github.com/melih/lighthouse-launch/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

// env is shared by every subcommand once the root pre-run has loaded it.
type env struct {
	flags  globalFlags
	cfg    config.Config
	log    *logrus.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	e := &env{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "lighthouse",
		Short:         "Build and launch ASGI apps as containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&e.flags.configFile, "config", "c", "", "config file (default: ./lighthouse.yaml if present)")
	pf.StringVar(&e.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&e.flags.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newInitCommand(e),
		newRenderCommand(e),
		newBuildCommand(e),
		newRunCommand(e),
		newLaunchCommand(e),
		newPackagesCommand(e),
		newDiffCommand(e),
		newServeCommand(e),
	)
	return root
}

func (e *env) load(cmd *cobra.Command) error {
	dirs := []string{"."}
	if f := cmd.Flags().Lookup("source"); f != nil && f.Value.String() != "" {
		dirs = append([]string{f.Value.String()}, dirs...)
	}
	cfg, used, err := config.Load(config.LoadOptions{File: e.flags.configFile, SearchDirs: dirs})
	if err != nil {
		return err
	}
	if e.flags.logLevel != "" {
		cfg.Log.Level = e.flags.logLevel
	}
	if e.flags.logFormat != "" {
		cfg.Log.Format = e.flags.logFormat
	}
	log, err := logging.New(e.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	if used != "" {
		log.WithField("file", used).Debug("loaded config")
	}
	e.cfg, e.log = cfg, log
	return nil
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *launcher.ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if errors.Is(err, ErrPackagesDiffer) {
		return 3
	}
	return 1
}
