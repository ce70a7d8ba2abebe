package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blsq/iaso/config"
	"github.com/blsq/iaso/pkg/logger"
)

const (
	exitOK         = 0
	exitUsage      = 2
	exitValidation = 3
	exitDB         = 4
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if e, ok := errors.AsType[*exitError](err); ok {
		return e.code
	}
	return 1
}

type env struct {
	conf   *config.Configuration
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "dbtool:", pgErrorMessage(err))
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var envPath, yamlPath string
	e := &env{}

	root := &cobra.Command{
		Use:           "dbtool",
		Short:         "Operator tasks for the org unit database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(envPath, yamlPath)
			if err != nil {
				return withCode(exitUsage, err)
			}
			log, err := logger.New(conf.Log.Level)
			if err != nil {
				return withCode(exitUsage, err)
			}
			e.conf, e.logger = conf, log
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&envPath, "env", "e", "", "Environment file, e.g. --env .env")
	root.PersistentFlags().StringVarP(&yamlPath, "config", "c", "", "YAML config file, e.g. --config config.yaml")

	root.AddCommand(
		newMigrateCmd(e),
		newSeedPathsCmd(e),
		newOrgUnitSmokeCmd(e),
		newTokenCmd(e),
	)
	return root
}

func (e *env) pool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, e.conf.Database.DSN())
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, err)
	}
	return pool, nil
}

func pgErrorMessage(err error) string {
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		if pgErr.ConstraintName != "" {
			return fmt.Sprintf("%s (sqlstate %s, constraint %s)", pgErr.Message, pgErr.Code, pgErr.ConstraintName)
		}
		return fmt.Sprintf("%s (sqlstate %s)", pgErr.Message, pgErr.Code)
	}
	return err.Error()
}
