package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewiresh/terminald/internal/applog"
	"github.com/codewiresh/terminald/internal/channel"
	"github.com/codewiresh/terminald/internal/config"
	"github.com/codewiresh/terminald/internal/layout"
	"github.com/codewiresh/terminald/internal/session"
	"github.com/codewiresh/terminald/internal/sessionstore"
)

var staticDirFlag string

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the terminald server",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&staticDirFlag, "static-dir", "./web", "Directory of static frontend assets to serve")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	closer, err := applog.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer closer.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	l := layout.New(cfg.DataDir)
	if err := os.MkdirAll(l.SessionsDir(), 0o755); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}
	if err := os.MkdirAll(l.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	watcher, err := config.NewWatcher(cfg.DataDir, cfg.CopilotPath)
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	defer watcher.Close()

	mgr := session.NewManager(l,
		sessionstore.NewIndexStore(l),
		sessionstore.NewMetaStore(l),
		sessionstore.NewTranscriptStore(l),
		session.ManagerConfig{
			MaxSessions:             cfg.MaxSessions,
			InitialCols:             cfg.InitialCols,
			InitialRows:             cfg.InitialRows,
			MinCols:                 cfg.MinCols,
			MaxCols:                 cfg.MaxCols,
			MinRows:                 cfg.MinRows,
			MaxRows:                 cfg.MaxRows,
			MaxInputCharsPerMessage: cfg.MaxInputCharsPerMessage,
			CopilotPath:             cfg.CopilotPath,
			MockPTY:                 cfg.MockPTY,
		},
	)

	chanServer := channel.NewServer(channel.Config{
		AllowNonLocalhost: cfg.AllowNonLocalhost,
		MaxMessageBytes:   cfg.WSMaxMessageBytes,
	}, mgr)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/ws", chanServer)
	mux.Handle("/", http.FileServer(http.Dir(staticDirFlag)))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "[terminald] shutting down...")
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		mgr.Shutdown()
	}()

	fmt.Fprintf(os.Stderr, "[terminald] listening on %s (data dir %s)\n", addr, cfg.DataDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
