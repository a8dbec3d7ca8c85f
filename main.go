package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pocusai/internal/auth"
	"pocusai/internal/config"
	"pocusai/internal/redis"
	"pocusai/internal/sessions"
	"pocusai/internal/storage"
	"pocusai/internal/usage"
	"pocusai/internal/worker"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "pocusai",
		Short:        "POCUS AI clinical consultation server",
		Long:         "Serves point-of-care ultrasound consultations and administers the accounts that use them.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvConfigPath), "path to config file (json or yaml)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newUsersCmd(&configPath))
	cmd.AddCommand(newUsageCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pocusai %s (commit: %s)\n", Version, Commit)
		},
	}
}

// app holds the stores shared by every command.
type app struct {
	cfg      *config.Config
	backend  storage.Backend
	rdb      *redis.Client
	auth     *auth.Service
	sessions *sessions.Store
	usage    *usage.Counter
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := log.ParseLevel(cfg.BasicConfig.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.BasicConfig.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.WithField("storage", cfg.Storage.Driver).Info("opening storage")
	backend, err := storage.NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	records := storage.NewRecords(backend)

	a := &app{
		cfg:      cfg,
		backend:  backend,
		auth:     auth.NewService(records, cfg.Admin, cfg.BasicConfig.BcryptCost),
		sessions: sessions.NewStore(records),
		usage:    usage.NewCounter(records),
	}
	if cfg.RedisEnabled() {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		a.rdb = rdb
	}
	if err := a.auth.Bootstrap(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("bootstrap administrator: %w", err)
	}
	return a, nil
}

// invalidator returns the cross-process invalidation channel, or nil without redis.
func (a *app) invalidator() *worker.Invalidator {
	if a.rdb == nil {
		return nil
	}
	return worker.NewInvalidator(a.rdb)
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if err := a.backend.Close(); err != nil {
		log.WithError(err).Warn("close storage")
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
