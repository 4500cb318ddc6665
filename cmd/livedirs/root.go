package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"livedirs/internal/config"
	"livedirs/internal/executor"
	"livedirs/internal/live"
	"livedirs/internal/logging"
	"livedirs/internal/server"
	"livedirs/internal/tree"
)

var (
	flagConfig   string
	flagListen   string
	flagLogLevel string
	flagToken    string
)

var rootCmd = &cobra.Command{
	Use:   "livedirs [flags] [directory...]",
	Short: "Mirror directory trees and stream their changes",
	Long: `livedirs keeps an in-memory mirror of the given directories in sync
with the filesystem and streams every observed change as an edit event.
Edits carry an origin, so changes made through the daemon's own I/O API
are distinguishable from outside activity.

Directories may be given as arguments or listed in the config file.`,
	RunE:          runDaemon,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Config file path")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "Address for the edit-stream server (overrides config)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "Auth token required by the edit-stream server")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagToken != "" {
		cfg.AuthToken = flagToken
	}
	for _, arg := range args {
		absolute, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", arg, err)
		}
		cfg.Roots = append(cfg.Roots, absolute)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Level())
	logger.Info("starting", map[string]string{"config": cfg.String()})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serial := executor.NewSerial()
	defer serial.Close()

	dirs, err := live.New(ctx, live.Options{
		Executor: serial,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	go logErrors(dirs, logger)
	go logEdits(dirs.Model(), logger)

	for _, root := range cfg.Roots {
		if err := addRoot(dirs, serial, root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		logger.Info("watching", map[string]string{"root": root})
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Listen != "" {
		httpServer := &http.Server{
			Addr: cfg.Listen,
			Handler: server.New(server.Options{
				Model:     dirs.Model(),
				AuthToken: cfg.AuthToken,
				Logger:    logger,
			}).Routes(),
		}
		group.Go(func() error {
			logger.Info("serving", map[string]string{"listen": cfg.Listen})
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down", nil)
		select {
		case <-dirs.Dispose():
		case <-time.After(10 * time.Second):
			logger.Warn("watcher did not stop in time", nil)
		}
		return nil
	})

	return group.Wait()
}

// addRoot registers root on the client executor and waits for the
// initial scan.
func addRoot(dirs *live.LiveDirs, serial *executor.Serial, root string) error {
	done := make(chan error, 1)
	serial.Execute(func() {
		dirs.AddTopLevelDirectory(root).Then(func(_ struct{}, err error) {
			done <- err
		})
	})
	return <-done
}

func logErrors(dirs *live.LiveDirs, logger *logging.Logger) {
	failures, cancel := dirs.Errors().Subscribe()
	defer cancel()
	for err := range failures {
		logger.Error("watch error", map[string]string{"error": err.Error()})
	}
}

func logEdits(model *tree.Model, logger *logging.Logger) {
	edits, cancel := model.Updates().Subscribe()
	defer cancel()
	for edit := range edits {
		logger.Info("edit", map[string]string{
			"kind":   string(edit.Kind),
			"path":   edit.AbsolutePath(),
			"origin": fmt.Sprint(edit.Origin),
		})
	}
}
