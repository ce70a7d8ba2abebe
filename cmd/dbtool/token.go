package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blsq/iaso/internal/server"
)

func newTokenCmd(e *env) *cobra.Command {
	var userID int64
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a profile, signed with AUTH__JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return withCode(exitUsage, errors.New("--user-id must be positive"))
			}
			v, err := server.NewTokenVerifier(e.conf.Auth.JWTSecret, e.conf.Auth.Issuer)
			if err != nil {
				return withCode(exitUsage, err)
			}
			token, err := v.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "Profile user id (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime; 0 issues a token without expiry")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
