package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"payment-service/internal/model"
)

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit [payment-id]",
		Short: "Print the audit trail of a payment as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.auditRepo.ListByResource(cmd.Context(), model.AuditResourcePayments, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}
}
