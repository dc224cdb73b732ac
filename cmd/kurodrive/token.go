package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kurodrive/internal/auth"
	"kurodrive/internal/domain"
)

// newTokenCommand выпускает токен для локальной отладки. В рабочей схеме
// токены приходят от внешнего сервиса идентификации.
func newTokenCommand(opts *rootOptions) *cobra.Command {
	var p domain.Principal
	var admin bool

	cmd := &cobra.Command{
		Use:   "token --user ID",
		Short: "Mint a bearer token signed with the configured secret.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			p.Role = domain.RoleUser
			if admin {
				p.Role = domain.RoleAdmin
			}
			token, err := auth.NewTokens(cfg.Auth).GenerateToken(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
