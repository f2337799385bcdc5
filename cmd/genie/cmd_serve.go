package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/genie/internal/api"
	"github.com/user/genie/internal/gateway"
	"github.com/user/genie/internal/telegram"
)

var serveNoHTTP bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoHTTP, "no-http", false, "do not start the HTTP API")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and HTTP API frontends",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "genie.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" && (serveNoHTTP || cfg.HTTP.Listen == "") {
		return fmt.Errorf("nothing to serve: configure telegram.token or http.listen")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	gw := gateway.New(a.ctl, slog.Default())
	gw.Start(ctx)
	defer gw.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, a.ctl, a.registry, cfg.Telegram.AllowedChatID, slog.Default())
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		g.Go(func() error { return adapter.Start(gctx) })
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	if !serveNoHTTP && cfg.HTTP.Listen != "" {
		srv := api.NewServer(a.ctl, gw, a.registry, slog.Default())
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTP.Listen) })
	}

	// SIGHUP re-executes the binary so config changes take effect.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		select {
		case <-hup:
			slog.Info("received SIGHUP, restarting")
			return errRestart
		case <-gctx.Done():
			return nil
		}
	})

	slog.Info("genie serving",
		"data_dir", cfg.DataDir,
		"store", cfg.Store.Driver,
		"default_model", a.ctl.DefaultModel(),
		"http", cfg.HTTP.Listen,
		"telegram", cfg.Telegram.Token != "",
		"pid_file", pidFile,
	)

	err = g.Wait()
	if errors.Is(err, errRestart) {
		gw.Stop()
		a.Close()
		os.Remove(pidFile)
		return restart()
	}
	slog.Info("shutting down")
	return err
}

var errRestart = errors.New("restart requested")

func restart() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	return syscall.Exec(execPath, os.Args, os.Environ())
}
