package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/change-service/internal/risk"
)

func newPreviewCmd() *cobra.Command {
	var (
		orgID      string
		categoryID string
		scores     []string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Score impact values against a tenant's default risk matrix",
		Example: "  changectl preview --org acme --score business=90 --score technical=80",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID = strings.TrimSpace(orgID)
			if orgID == "" {
				return fmt.Errorf("--org is required")
			}
			parsed, err := parseScores(scores)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			var category *string
			if categoryID != "" {
				category = &categoryID
			}
			preview, err := a.Changes.ComputeRiskPreview(cmd.Context(), orgID, category, parsed)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), preview)
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "tenant id")
	cmd.Flags().StringVar(&categoryID, "category", "", "change category id")
	cmd.Flags().StringArrayVar(&scores, "score", nil, "impact score as key=value, repeatable")
	return cmd
}

func parseScores(raw []string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --score %q: want key=value", item)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --score %q: %w", item, err)
		}
		if !risk.ValidScore(n) {
			return nil, fmt.Errorf("invalid --score %q: must be a number within 0..100", item)
		}
		out[key] = n
	}
	return out, nil
}
