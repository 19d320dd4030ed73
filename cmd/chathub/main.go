package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	httpadapter "github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/http"
	firestorestore "github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/storage/firestore"
	memstore "github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/storage/memory"
	pgstore "github.com/onrcanogul/mentor-app-mobile-sub000/internal/adapters/storage/postgres"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/relay"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chathub",
	Short: "Development hub for the mentor chat client",
	Long: `chathub serves the real-time chat hub (websockets and long polling) and
the REST message store the mentor chat client talks to.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default ./configs/chathub.yaml if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// .env is optional in every environment
	_ = godotenv.Load()

	cfg, err := config.LoadHub(cfgFile)
	if err != nil {
		return err
	}

	if _, err := observability.Setup(observability.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}
	logger := observability.Component("chathub")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: Memory, Firestore or Postgres
	var (
		store   domain.MessageStore
		closeFn = func() error { return nil }
	)
	switch cfg.StorageBackend {
	case "firestore":
		logger.Info("using firestore storage", "project", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return err
		}
		store, closeFn = fsStore, fsStore.Close

	case "postgres":
		logger.Info("using postgres storage")
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store, closeFn = pg, pg.Close

	default:
		logger.Info("using in-memory storage")
		store = memstore.NewMessageStore()
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	hub := relay.NewHub(store, relay.WithHistoryLimit(cfg.HistoryLimit))
	handler := httpadapter.NewServer(hub, httpadapter.OptionsFromConfig(cfg))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chathub listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
