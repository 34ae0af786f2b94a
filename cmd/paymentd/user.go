package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"payment-service/internal/api"
	"payment-service/internal/db"
	"payment-service/internal/model"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}
	cmd.AddCommand(userAddCmd())
	cmd.AddCommand(userTokenCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var email, role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			u := &model.User{ID: uuid.New(), Email: email, Role: role}
			if err := db.NewUserRepository(a.pool).Create(cmd.Context(), u); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&role, "role", "customer", "user role")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func userTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			if _, err := db.NewUserRepository(a.pool).GetUser(cmd.Context(), userID); err != nil {
				return fmt.Errorf("loading user %s: %w", userID, err)
			}

			token, err := api.GenerateToken([]byte(a.cfg.Auth.JWTSecret), userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
