package main

import (
	"context"
	"fmt"
	"os"

	"github.com/loykin/pausr/internal/auth"
	"github.com/spf13/cobra"
)

func (c command) Login(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("password required (--password or PAUSR_PASSWORD)")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	tok, err := cl.Login(ctx, password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, tok.Value)
	return nil
}

func createLoginCommand(c command, flags *LoginFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange the operator password for a bearer token",
		Long: `Prints a token for daemons with [server.auth] enabled.

Examples:
  export PAUSR_TOKEN=$(pausr login --password=secret)
  pausr apps`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := flags.Password
			if pw == "" {
				pw = os.Getenv("PAUSR_PASSWORD")
			}
			return c.withOut(cmd).Login(cmd.Context(), pw)
		},
	}
	cmd.Flags().StringVar(&flags.Password, "password", "", "operator password")
	return cmd
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash for [server.auth].password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0], 0)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
