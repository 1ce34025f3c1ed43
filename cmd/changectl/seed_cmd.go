package main

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/change-service/internal/seed"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert risk matrices, workflows and categories from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			result, err := seed.Apply(cmd.Context(), a.Settings, parsed, a.Logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.example.yaml", "seed file")
	return cmd
}
