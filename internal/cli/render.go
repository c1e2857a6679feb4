package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/recipe"
	"github.com/spf13/cobra"
)

func newRenderCommand(e *env) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Dockerfile generated from the recipe",
		Long: `Prints the Dockerfile for the recipe. With --source, the manifest in that
tree is read and every file it references is copied before the install step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := e.cfg.Recipe
			var files []domain.ContextPath
			if source != "" {
				fsys := os.DirFS(source)
				if _, err := fs.Stat(fsys, r.Manifest); err == nil {
					m, err := recipe.LoadManifest(fsys, r.Manifest)
					if err != nil {
						return err
					}
					files = m.Files
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			return recipe.Render(cmd.OutOrStdout(), r, files...)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source tree whose lighthouse.yaml and manifest to use")
	return cmd
}
