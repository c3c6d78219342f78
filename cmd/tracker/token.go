package main

import (
	"fmt"
	"time"

	"github.com/Capricia-k/WoSport/internal/auth"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTokenCmd(deps mainDeps) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadAndLog(deps)
			if userID == "" {
				return errors.New("--user is required")
			}
			token, err := auth.SignToken(cfg.JWTSecret, userID, ttl)
			if err != nil {
				return errors.Wrap(err, "failed to sign token")
			}
			_, err = fmt.Fprintln(deps.out, token)
			return err
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
