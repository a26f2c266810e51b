package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/buildlog/internal/auth"
	"github.com/bryan-buckman/buildlog/internal/config"
	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/events"
	"github.com/bryan-buckman/buildlog/internal/feed"
	"github.com/bryan-buckman/buildlog/internal/janitor"
	"github.com/bryan-buckman/buildlog/internal/mail"
	"github.com/bryan-buckman/buildlog/internal/metrics"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
	"github.com/bryan-buckman/buildlog/internal/realtime"
	"github.com/bryan-buckman/buildlog/internal/recovery"
	"github.com/bryan-buckman/buildlog/internal/server"
)

var version = "dev"

// eventQueueSize bounds post events waiting for the broker.
const eventQueueSize = 256

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "buildlog",
		Short:         "Public build log service",
		Version:       fmt.Sprintf("%s (api %d)", version, server.APIVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations and exit",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete expired rate-limit counters and recovery codes once",
			Args:  cobra.NoArgs,
			RunE:  runSweep,
		},
	)
	return root
}

// setup loads the config named by --config and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()), nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	log.Info("schema up to date", "backend", db.DatabaseType())
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	jan, err := janitor.New(db, nil, cfg.Janitor, log)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	rep, err := jan.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "counters=%d recovery_codes=%d\n", rep.Counters, rep.RecoveryCodes)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	log.Info("database ready", "backend", db.DatabaseType())

	verifier := auth.NewVerifier(db, cfg.Database.BcryptCost)

	var (
		limiter ratelimit.Limiter
		sweeper janitor.Sweeper
	)
	switch backend := cfg.RateLimit.Backend; {
	case backend == "memory", backend == "" && !db.SupportsHighConcurrency():
		mem := ratelimit.NewMemory()
		limiter, sweeper = mem, mem
		log.Info("rate limiter", "backend", "memory")
	default:
		limiter = ratelimit.NewShared(db)
		log.Info("rate limiter", "backend", "database")
	}

	mailer, err := mail.New(cfg.Mail, log)
	if err != nil {
		return fmt.Errorf("configure mail: %w", err)
	}

	m := metrics.New()
	hub := realtime.NewHub(cfg.Realtime.Throttle, log)

	notifiers := events.Fanout{hub}
	if cfg.AMQP.URL != "" {
		pub, err := events.NewRabbitMQ(cfg.AMQP, log)
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer func() { _ = pub.Close() }()
		dispatcher := events.NewDispatcher(pub, eventQueueSize, log)
		dispatcher.Start()
		defer dispatcher.Stop()
		notifiers = append(notifiers, dispatcher)
	}

	feeds := feed.NewService(db, verifier, notifiers)

	rec := recovery.NewService(db, verifier, mailer, limiter, log)
	rec.Observe = m.ObserveRecovery

	jan, err := janitor.New(db, sweeper, cfg.Janitor, log)
	if err != nil {
		return fmt.Errorf("configure janitor: %w", err)
	}
	jan.Start()
	defer jan.Stop()

	srv := server.New(server.Options{
		Addr:            cfg.Server.Addr,
		PublicURL:       cfg.Server.PublicURL,
		TrustProxy:      cfg.Server.TrustProxy,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		DB:       db,
		Feeds:    feeds,
		Auth:     verifier,
		Recovery: rec,
		Limiter:  limiter,
		Hub:      hub,
		Metrics:  m,
		Logger:   log,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("server stopped")
	return nil
}
