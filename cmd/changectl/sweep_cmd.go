package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep and print what it did",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			result, err := a.Escalation.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			// A cancelled context makes the worker deliver what is queued and return.
			flush, cancel := context.WithCancel(context.Background())
			cancel()
			if err := a.RunNotifications(flush); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}
