package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/blsq/iaso/config"
	"github.com/blsq/iaso/internal/jobs"
	"github.com/blsq/iaso/internal/server"
	"github.com/blsq/iaso/modules/orgunit/infrastructure/cache"
	"github.com/blsq/iaso/modules/orgunit/infrastructure/persistence"
	"github.com/blsq/iaso/modules/orgunit/services"
	"github.com/blsq/iaso/pkg/authz"
	"github.com/blsq/iaso/pkg/logger"
	"github.com/blsq/iaso/pkg/metrics"
)

func main() {
	var envPath, yamlPath string
	pflag.StringVarP(&envPath, "env", "e", "", "Environment file, e.g. --env .env")
	pflag.StringVarP(&yamlPath, "config", "c", "", "YAML config file, e.g. --config config.yaml")
	pflag.Parse()

	conf, err := config.Load(envPath, yamlPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(conf.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(conf, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(conf *config.Configuration, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolConf, err := pgxpool.ParseConfig(conf.Database.DSN())
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if conf.Database.MaxConns > 0 {
		poolConf.MaxConns = conf.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, conf.Metrics.Namespace, nil)

	units := persistence.NewOrgUnitPGStore(pool)
	unitTypes := persistence.NewOrgUnitTypePGStore(pool)
	access := persistence.NewAccessPGStore(pool)

	filterOpts := []services.AccessFilterOption{services.WithAccessMetrics(m)}
	if conf.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, project cache disabled", zap.String("addr", conf.Redis.Addr), zap.Error(err))
		} else {
			filterOpts = append(filterOpts, services.WithProjectCache(cache.NewProjectCache(rdb), conf.Redis.ProjectTTL))
		}
	}

	unitService := services.NewOrgUnitService(units, log.Named("orgunit"), m)
	typeService := services.NewOrgUnitTypeService(unitTypes, log.Named("orgunit_type"))
	accessFilter := services.NewAccessFilter(access, log.Named("access"), filterOpts...)
	seeder := services.NewPathSeeder(unitService, conf.Seeder.BatchSize, log.Named("seeder"))

	mode, err := authz.ParseMode(conf.Authz.Mode, os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") == "1")
	if err != nil {
		return err
	}
	authorizer, err := authz.NewAuthorizer(conf.Authz.ModelPath, conf.Authz.PolicyPath, mode)
	if err != nil {
		return fmt.Errorf("load authz policy: %w", err)
	}

	var tokens *server.TokenVerifier
	if conf.Auth.JWTSecret != "" {
		if tokens, err = server.NewTokenVerifier(conf.Auth.JWTSecret, conf.Auth.Issuer); err != nil {
			return err
		}
	} else {
		log.Warn("AUTH__JWT_SECRET is empty, only anonymous requests are served")
	}

	handler, err := server.NewHandlerWithOptions(server.HandlerOptions{
		AllowlistPath: conf.Routing.AllowlistPath,
		Logger:        log,
		Metrics:       m,
		Gatherer:      reg,
		Authorizer:    authorizer,
		Tokens:        tokens,
		Access:        access,
		Units:         unitService,
		Types:         typeService,
		AccessFilter:  accessFilter,
		Seeder:        seeder,
		Health:        pool.Ping,
	})
	if err != nil {
		return err
	}

	scheduler := jobs.NewCron(seeder, log)
	if conf.Seeder.Schedule != "" {
		if err := scheduler.Run(conf.Seeder.Schedule); err != nil {
			return fmt.Errorf("schedule path seeding: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              conf.App.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", conf.App.Addr), zap.String("authz_mode", string(authorizer.Mode())))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.App.ShutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn("cron stop", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}
