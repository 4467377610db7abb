package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/lockbox/api"
	"github.com/jmcleod/lockbox/storage"
	bboltstorage "github.com/jmcleod/lockbox/storage/bbolt"
	pgstorage "github.com/jmcleod/lockbox/storage/postgres"
	"github.com/jmcleod/lockbox/vault"
)

var (
	port          int
	dataDir       string
	postgresDSN   string
	sessionTTL    time.Duration
	sweepInterval time.Duration
	sealSecret    string
	tlsCert       string
	tlsKey        string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the password-manager server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		var store storage.Store
		if postgresDSN != "" {
			pg, err := pgstorage.NewStoreFromDSN(cmd.Context(), postgresDSN)
			if err != nil {
				return fmt.Errorf("failed to open postgres storage: %w", err)
			}
			defer pg.Close()
			store = pg
		} else {
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			db, err := bboltstorage.NewStoreFromFile(dataDir+"/lockbox.db", nil)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer db.Close()
			store = db
		}

		sessionOpts := []vault.SessionOption{
			vault.WithTTL(sessionTTL),
			vault.WithSessionLogger(logger),
		}
		if sealSecret != "" {
			sessionOpts = append(sessionOpts, vault.WithSealSecret([]byte(sealSecret)))
		}
		sessions := vault.NewSessionManager(store, sessionOpts...)

		sweepCtx, stopSweeper := context.WithCancel(context.Background())
		defer stopSweeper()
		go sessions.RunSweeper(sweepCtx, sweepInterval)

		a := api.New(store, sessions, api.WithLogger(logger))
		go a.RunLimiterSweeper(sweepCtx, time.Minute)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := tlsCert != "" && tlsKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d...\n", port)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL DSN; when set, used instead of the embedded database")
	serverCmd.Flags().DurationVar(&sessionTTL, "session-ttl", vault.DefaultSessionTTL, "Absolute session lifetime")
	serverCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", vault.DefaultSweepInterval, "How often expired sessions are swept")
	serverCmd.Flags().StringVar(&sealSecret, "session-seal-secret", "", "Secret used to encrypt sessions at rest; plaintext sessions when empty")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
