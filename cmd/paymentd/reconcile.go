package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"payment-service/internal/reconcile"
)

func reconcileCmd() *cobra.Command {
	var staleAfter, batch int

	cmd := &cobra.Command{
		Use:   "reconcile [payment-id]",
		Short: "Reconcile stale payments once, or a single payment as a user",
		Long: `Ask the gateway for the current status of payments stuck in PENDING or
PROCESSING and apply any forward transition.

Examples:
  paymentd reconcile
  paymentd reconcile --stale-after-ms 60000 --batch 500
  paymentd reconcile 7a0c... --as <user-id>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				as, _ := cmd.Flags().GetString("as")
				return reconcileOne(cmd, a, args[0], as)
			}

			cfg := a.cfg.Reconcile
			if staleAfter > 0 {
				cfg.StaleAfterMs = staleAfter
			}
			if batch > 0 {
				cfg.BatchSize = batch
			}

			res, err := reconcile.NewWorker(a.payments, a.service, cfg, a.logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d changed=%d failed=%d\n", res.Checked, res.Changed, res.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&staleAfter, "stale-after-ms", 0, "override reconcile.stale-after-ms")
	cmd.Flags().IntVar(&batch, "batch", 0, "override reconcile.batch-size")
	cmd.Flags().String("as", "", "user id to act as when reconciling a single payment")

	return cmd
}

func reconcileOne(cmd *cobra.Command, a *app, rawID, rawUser string) error {
	paymentID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid payment id: %w", err)
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return fmt.Errorf("--as must be a user id: %w", err)
	}

	p, err := a.service.Reconcile(cmd.Context(), userID, paymentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.ID, p.Status)
	return nil
}
