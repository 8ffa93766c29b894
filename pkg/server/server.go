package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/device"
	"github.com/solariscontrol/solaris/pkg/forecast"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

const authTokenCookie = "auth_token"

type contextKey string

const userContextKey contextKey = "user"

// tokenVerifier is a function that validates a Google or Apple ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server handles the HTTP API of the dashboard and the device. It ties the
// store, the device system, the forecast providers and the switch policy
// together.
type Server struct {
	storage   storage.Database
	device    device.System
	forecasts *forecast.Map
	metrics   *metrics.Metrics
	now       func() time.Time

	listenAddr     string
	dashboardProxy string
	dashboardDir   string
	httpServer     *http.Server

	updateSpecificEmail string
	adminEmails         []string
	oidcAudiences       map[string]string
	oidcVerifiers       map[string]tokenVerifier
	bypassAuth          bool
	encryptionKey       string
	release             string
	serverName          string

	// first delay before a closed switch watch is opened again
	watchRetry time.Duration

	// serializes optimize runs so two recommendations never interleave
	// their switch writes
	optimizeMu sync.Mutex
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, sys device.System, forecasts *forecast.Map, m *metrics.Metrics) *Server {
	srv := &Server{
		storage:    db,
		device:     sys,
		forecasts:  forecasts,
		metrics:    m,
		now:        time.Now,
		serverName: "solaris",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	dashboardProxy := lflag.String("dashboard-proxy", "", "Address of the dashboard dev server (e.g. http://localhost:5173)")
	dashboardDir := lflag.String("dashboard-dir", "", "Directory holding the built dashboard")
	updateSpecificEmail := lflag.String("update-specific-email", "", "email to validate for /api/update")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to change settings and switches")
	oidcAudiences := map[string]string{}
	lflag.JSON(&oidcAudiences, "oidc-audiences", oidcAudiences, "JSON map of provider (google/apple) to audience/client ID")
	encryptionKey := lflag.RequiredString("api-key-encryption-key", "Key for encrypting the device API key")
	release := lflag.String("release", "production", "Release environment (production or staging)")

	lflag.Do(func() {
		ctx := context.Background()
		srv.listenAddr = *listenAddr
		srv.dashboardProxy = *dashboardProxy
		srv.dashboardDir = *dashboardDir
		srv.updateSpecificEmail = *updateSpecificEmail
		srv.adminEmails = splitEmails(*adminEmails)
		if len(oidcAudiences) > 0 {
			srv.oidcAudiences = make(map[string]string, len(oidcAudiences))
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcAudiences))
			for n, a := range oidcAudiences {
				var issuer string
				switch n {
				case "google":
					issuer = "https://accounts.google.com"
				case "apple":
					issuer = "https://appleid.apple.com"
				default:
					log.Ctx(ctx).Error("unsupported oidc audience client", slog.String("client", n))
					os.Exit(1)
				}
				provider, err := oidc.NewProvider(ctx, issuer)
				if err != nil {
					log.Ctx(ctx).Error("failed to initialize OIDC provider", slog.String("client", n), slog.Any("error", err))
					os.Exit(1)
				}
				srv.oidcVerifiers[n] = provider.Verifier(&oidc.Config{ClientID: a}).Verify
				srv.oidcAudiences[n] = a
			}
		}
		srv.release = *release

		if len(*encryptionKey) != 32 {
			log.Ctx(ctx).Error("api-key-encryption-key must be 32 characters")
			os.Exit(1)
		}
		srv.encryptionKey = *encryptionKey

		if srv.dashboardProxy != "" && len(srv.oidcAudiences) == 0 && len(srv.adminEmails) == 0 {
			srv.bypassAuth = true
		}
		if len(srv.oidcAudiences) > 0 && len(srv.adminEmails) == 0 {
			log.Ctx(ctx).Warn("no admin-emails configured, signed in users cannot change switches or settings")
		}
	})

	return srv
}

func splitEmails(s string) []string {
	if s == "" {
		return nil
	}
	emails := strings.Split(s, ",")
	for i, email := range emails {
		emails[i] = strings.TrimSpace(email)
	}
	return emails
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		apiMux.Handle(pattern, s.metrics.WrapHandler(pattern, h))
	}
	route("POST /api/update", s.handleUpdate)
	route("POST /api/optimize", s.handleOptimize)
	route("GET /api/telemetry", s.handleLatestTelemetry)
	route("GET /api/history/telemetry", s.handleHistoryTelemetry)
	route("GET /api/history/decisions", s.handleHistoryDecisions)
	route("GET /api/switches", s.handleGetSwitches)
	route("POST /api/switches", s.handleSetSwitch)
	route("GET /api/forecast", s.handleForecast)
	route("GET /api/settings", s.handleGetSettings)
	route("POST /api/settings", s.handleUpdateSettings)
	route("GET /api/apikey", s.handleGetAPIKey)
	route("POST /api/apikey", s.handleRotateAPIKey)
	route("GET /api/auth/status", s.handleAuthStatus)
	route("POST /api/auth/login", s.handleLogin)
	route("POST /api/auth/logout", s.handleLogout)

	mux := http.NewServeMux()
	// the device authenticates with its API key instead of a user session
	mux.Handle("POST /api/data", s.metrics.WrapHandler("POST /api/data", http.HandlerFunc(s.handleData)))
	mux.Handle("/api/", s.authMiddleware(apiMux))

	// serve the dashboard, either from a directory or from the dev server
	if s.dashboardProxy != "" {
		u, err := url.Parse(s.dashboardProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dashboard-proxy url (%s): %w", s.dashboardProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	} else if s.dashboardDir != "" {
		dir := os.DirFS(s.dashboardDir)
		mux.Handle("/", s.dashboardHandler(dir, http.FileServer(http.FS(dir))))
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

func (s *Server) getUser(r *http.Request) types.User {
	if user, ok := r.Context().Value(userContextKey).(types.User); ok {
		return user
	}
	return types.User{}
}

// Run starts the HTTP server and the switch watcher and blocks until the
// context is canceled or an error occurs. It also handles graceful shutdown
// when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watchDone, err := s.watchSwitches(watchCtx)
	if err != nil {
		return fmt.Errorf("failed to watch switch states: %w", err)
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		cancelWatch()
		<-watchDone
		return nil
	case err := <-errChan:
		cancelWatch()
		<-watchDone
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// dashboardHandler serves index.html for paths that are not files so the
// dashboard can do its own routing.
func (s *Server) dashboardHandler(dir fs.FS, h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			f, err := dir.Open(strings.TrimPrefix(r.URL.Path, "/"))
			if err == nil {
				f.Close()
			} else if errors.Is(err, fs.ErrNotExist) {
				if strings.HasPrefix(r.URL.Path, "/.well-known/") {
					// we don't write JSON here because we don't know what file type is expected
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				r.URL.Path = "/"
			} else {
				log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to open file", slog.Any("error", err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}
		h.ServeHTTP(w, r)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// isAdmin reports whether the email may change settings and switches. Only
// the configured admin emails are admins.
func (s *Server) isAdmin(email string) bool {
	if email == "" {
		return false
	}
	for _, adminEmail := range s.adminEmails {
		if email == adminEmail {
			return true
		}
	}
	return false
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user := s.getUser(r)
	if !user.Admin {
		log.Ctx(r.Context()).WarnContext(r.Context(), "admin required", slog.String("email", user.Email))
		writeJSONError(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}
