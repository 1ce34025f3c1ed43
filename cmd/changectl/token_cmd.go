package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/config"
)

type issuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		orgID   string
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(subject) == "" || strings.TrimSpace(orgID) == "" {
				return fmt.Errorf("--subject and --org are required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.NewTokenManager(cfg.Auth).GenerateToken(subject, orgID, roles)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), issuedToken{Token: token, ExpiresAt: expiresAt})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "identity recorded on approvals")
	cmd.Flags().StringVar(&orgID, "org", "", "tenant id")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim, repeatable")
	return cmd
}
