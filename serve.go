package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pocusai/internal/api"
	"pocusai/internal/service/ai"
	"pocusai/internal/service/assistant"
	"pocusai/internal/worker"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath)
		},
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	generator, err := ai.NewGenerator(cfg)
	if err != nil {
		return err
	}
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:  cfg.Worker.MinWorkers,
		MaxWorkers:  cfg.Worker.MaxWorkers,
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: time.Duration(cfg.Worker.IdleTimeout) * time.Minute,
	}, generator)
	manager := worker.NewManager(dispatcher, func(_ string, g ai.Generator) *assistant.Conversation {
		return assistant.NewConversation(assistant.Options{
			Language:    cfg.BasicConfig.DefaultLanguage,
			Temperature: cfg.Model.Temperature,
		}, g, a.sessions, a.usage, a.auth)
	})
	defer manager.Stop()

	inv := a.invalidator()
	if inv != nil {
		manager.Subscribe(ctx, inv)
	}

	handlers := api.NewHandler(a.auth, a.sessions, a.usage, manager, inv)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
	}()

	provider, _ := cfg.Provider()
	log.WithFields(log.Fields{
		"addr":     srv.Addr,
		"provider": provider,
	}).Info("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
