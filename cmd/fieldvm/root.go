package main

import (
	"github.com/chazu/fieldvm/manifest"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fieldvm",
		Short: "fieldvm evaluates aggregate programs on simulated devices",
		Long: `fieldvm evaluates field calculus programs round by round on a simulated
network. Every device runs its own copy of the program and exchanges the
values of its nbr expressions with the devices in range.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dir", ".", "Directory to search for "+manifest.FileName)

	root.AddCommand(
		newRunCmd(),
		newEncodeCmd(),
		newShowCmd(),
		newExamplesCmd(),
		newInitCmd(),
	)
	return root
}

// loadManifest finds the configuration above --dir, falling back to the
// defaults when there is none.
func loadManifest(cmd *cobra.Command) (*manifest.Manifest, error) {
	dir, _ := cmd.Flags().GetString("dir")
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}
