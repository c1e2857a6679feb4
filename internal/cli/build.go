package cli

import (
	"encoding/json"
	"fmt"

	"github.com/melih/lighthouse-launch/internal/adapters/builder"
	"github.com/melih/lighthouse-launch/internal/core/ports"
	"github.com/spf13/cobra"
)

func newBuildCommand(e *env) *cobra.Command {
	var (
		source        string
		repo          string
		ref           string
		tag           string
		requirePinned bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an image: toolchain, dependencies from the manifest, then the source tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source == "" && repo == "" {
				source = "."
			}
			r := e.cfg.Recipe
			if cmd.Flags().Changed("require-pinned") {
				r.RequirePinned = requirePinned
			}
			b, err := builder.NewBuilderAdapter(e.log, e.stderr)
			if err != nil {
				return err
			}
			res, err := b.BuildImage(cmd.Context(), ports.BuildRequest{
				SourceDir: source,
				RepoURL:   repo,
				Ref:       ref,
				Image:     tag,
				Recipe:    r,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "", "local source tree (default \".\")")
	f.StringVar(&repo, "repo", "", "git repository to clone instead of a local tree")
	f.StringVar(&ref, "ref", "", "branch to clone")
	f.StringVarP(&tag, "tag", "t", "", "image tag")
	f.BoolVar(&requirePinned, "require-pinned", false, "fail when a requirement is not pinned with ==")
	cmd.MarkFlagsMutuallyExclusive("source", "repo")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}
