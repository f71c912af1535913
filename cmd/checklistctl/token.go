package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitchensafe/kitchensafe-backend/internal/auth/jwt"
	"github.com/kitchensafe/kitchensafe-backend/pkg/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		secret string
		issuer string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive user id")
			}

			cfg, err := config.Load(toolName)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			jwtCfg := cfg.JWT
			if secret != "" {
				jwtCfg.Secret = secret
			}
			if issuer != "" {
				jwtCfg.Issuer = issuer
			}
			if ttl > 0 {
				jwtCfg.AccessExpiry = ttl
			}
			if config.IsProductionLike() {
				return fmt.Errorf("refusing to mint tokens in %s", config.GetEnvironment())
			}

			token, expires, err := jwt.NewManager(&jwtCfg).Generate(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id to issue the token for")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to jwt.secret)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer claim (defaults to jwt.issuer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.access_expiry)")
	return cmd
}
