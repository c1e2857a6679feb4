package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/melih/lighthouse-launch/internal/adapters/docker"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/core/ports"
	"github.com/melih/lighthouse-launch/internal/recipe"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var ErrPackagesDiffer = errors.New("installed packages differ")

// newPackageLister is swapped in tests.
var newPackageLister = func(e *env) (ports.ContainerService, error) {
	return docker.NewAdapter(e.log)
}

func newPackagesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "packages IMAGE",
		Short: "List the packages installed in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newPackageLister(e)
			if err != nil {
				return err
			}
			pkgs, err := svc.ListPackages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, p := range pkgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s==%s\n", p.Name, p.Version)
			}
			return nil
		},
	}
}

func newDiffCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "diff IMAGE_A IMAGE_B",
		Short: "Compare the packages installed in two images",
		Long:  "Exits with status 3 when the installed package sets differ.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newPackageLister(e)
			if err != nil {
				return err
			}
			a, b, err := listBoth(cmd.Context(), svc, args[0], args[1])
			if err != nil {
				return err
			}
			changes := recipe.DiffPackages(a, b)
			if len(changes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "identical")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PACKAGE\t"+args[0]+"\t"+args[1])
			for _, c := range changes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, orDash(c.Before), orDash(c.After))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d change(s)", ErrPackagesDiffer, len(changes))
		},
	}
}

func listBoth(ctx context.Context, svc ports.ContainerService, imgA, imgB string) (a, b []domain.Package, err error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = svc.ListPackages(ctx, imgA)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = svc.ListPackages(ctx, imgB)
		return err
	})
	return a, b, g.Wait()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
