package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
)

func newTokenCmd(c *cli) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token for the write API",
		Long:  `Sign an HS256 admin token with CMS_JWT_SECRET (or jwt_secret from the config file).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("no JWT secret configured; set CMS_JWT_SECRET")
			}
			token, err := api.IssueAdminToken(api.NewAdminAuth(cfg.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(map[string]any{"token": token, "expires_in": int(ttl.Seconds())})
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cmsctl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
