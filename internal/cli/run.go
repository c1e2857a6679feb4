package cli

import (
	"fmt"
	"strings"

	"github.com/melih/lighthouse-launch/internal/adapters/docker"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/spf13/cobra"
)

func newRunCommand(e *env) *cobra.Command {
	var (
		name    string
		port    int
		envs    []string
		restart string
	)
	cmd := &cobra.Command{
		Use:   "run IMAGE",
		Short: "Start a container from a built image with PORT injected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := parseEnv(envs)
			if err != nil {
				return err
			}
			if port == 0 {
				port = e.cfg.Recipe.DefaultPort
			}
			svc, err := docker.NewAdapter(e.log)
			if err != nil {
				return err
			}
			id, err := svc.StartContainer(cmd.Context(), domain.RunSpec{
				Image:         args[0],
				Name:          name,
				Port:          port,
				Env:           vars,
				RestartPolicy: restart,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "container name, also its proxy subdomain")
	f.IntVarP(&port, "port", "p", 0, "value of PORT inside the container, published on 0.0.0.0")
	f.StringArrayVarP(&envs, "env", "e", nil, "extra environment variable KEY=VALUE")
	f.StringVar(&restart, "restart", "no", "restart policy (no, on-failure, always, unless-stopped)")
	return cmd
}

func parseEnv(pairs []string) ([]domain.EnvVar, error) {
	vars := make([]domain.EnvVar, 0, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env %q, want KEY=VALUE", p)
		}
		vars = append(vars, domain.EnvVar{Name: k, Value: v})
	}
	return vars, nil
}
