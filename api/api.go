// Package api exposes the vault over REST: registration, login, session
// probing, credential CRUD, and master-password changes.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/lockbox/storage"
	"github.com/jmcleod/lockbox/vault"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	store       storage.Store
	sessions    *vault.SessionManager
	gate        *vault.AuthGate
	creds       *vault.CredentialStore
	rekeyer     *vault.Rekeyer
	rateLimiter *loginRateLimiter
	logger      *slog.Logger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request-level events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger.With("component", "api")
	}
}

// New creates a new API instance over the given store and session manager.
func New(store storage.Store, sessions *vault.SessionManager, opts ...Option) *API {
	creds := vault.NewCredentialStore(store)
	a := &API{
		store:       store,
		sessions:    sessions,
		gate:        vault.NewAuthGate(store, sessions),
		creds:       creds,
		rekeyer:     vault.NewRekeyer(store, creds, sessions),
		rateLimiter: newLoginRateLimiter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "api")
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.requestID)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.Get("/auth/session", a.SessionStatus)
	r.With(a.AuthMiddleware).Post("/auth/change-password", a.ChangePassword)

	r.Route("/passwords", func(r chi.Router) {
		r.Use(a.AuthMiddleware)
		r.Get("/", a.ListPasswords)
		r.Post("/", a.CreatePassword)
		r.Get("/{pid}", a.GetPassword)
		r.Put("/{pid}", a.UpdatePassword)
		r.Delete("/{pid}", a.DeletePassword)
		r.Post("/{pid}/rename", a.RenamePassword)
	})

	return r
}
