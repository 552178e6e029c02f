package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"gymhub/internal/adapters/blob"
	"gymhub/internal/adapters/http/middleware"
	"gymhub/internal/adapters/metrics"
	"gymhub/internal/adapters/ratelimit"
	"gymhub/internal/adapters/realtime"
	accountStore "gymhub/internal/adapters/storage/account"
	broadcastStore "gymhub/internal/adapters/storage/broadcast"
	messageStore "gymhub/internal/adapters/storage/message"
	"gymhub/internal/application/orchestrators"
)

// Stores holds all storage dependencies.
type Stores struct {
	AccountStore   accountStore.Store
	MessageStore   messageStore.Store
	BroadcastStore broadcastStore.Store
	Blobs          blob.Store
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the middleware chain.
type Options struct {
	CSRFKey            []byte
	SecureCookies      bool
	RateLimitPerSecond float64
	RateLimitBurst     int
	SlowRequestMs      int
}

// Deps holds runtime collaborators of the HTTP layer.
type Deps struct {
	Stores   Stores
	Hub      *realtime.Hub
	Sessions *middleware.SessionStore
	// MessageLimiter throttles chat posts per account; nil disables it.
	MessageLimiter orchestrators.Limiter
	DB             Pinger
	Now            func() time.Time
	GenerateID     func() string
	// Socket overrides websocket keepalive timings, mainly for tests.
	Socket realtime.ConnOptions
}

type server struct {
	Deps
	secure   bool
	upgrader websocket.Upgrader
}

var validate = validator.New()

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// NewMux wires HTTP handlers for the app.
func NewMux(opts Options, deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GenerateID == nil {
		deps.GenerateID = generateID
	}
	if deps.Sessions == nil {
		deps.Sessions = middleware.NewSessionStore()
	}
	s := &server{
		Deps:   deps,
		secure: opts.SecureCookies,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	limiter := ratelimit.NewKeyed(rate.Limit(opts.RateLimitPerSecond), opts.RateLimitBurst)

	// Apply middleware: Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(opts.CSRFKey, opts.SecureCookies),
		middleware.Auth(deps.Sessions),
		middleware.RateLimit(limiter),
		middleware.Timing(metrics.Recorder{}, opts.SlowRequestMs),
	)
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/api/me", s.handleMe)

	mux.HandleFunc("/api/chat/messages", s.handleMessages)
	mux.HandleFunc("/api/broadcasts", s.handleCreateBroadcast)
	mux.HandleFunc("/api/broadcasts/active", s.handleActiveBroadcasts)
	mux.HandleFunc("/audio/{key}", s.handleAudio)

	mux.HandleFunc("/api/realtime/{topic}", s.handleRealtime)
	mux.HandleFunc("/api/presence/{topic}", s.handlePresence)

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// handleHealth handles GET /healthz
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.DB != nil {
		if err := s.DB.PingContext(r.Context()); err != nil {
			slog.Error("health_check_failed", "error", err.Error())
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeAndValidate decodes a JSON body and checks its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := strictDecode(r, v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err.Error())
	}
}

// requireStaff returns the session if the caller is an admin or coach.
func requireStaff(w http.ResponseWriter, r *http.Request) (middleware.Session, bool) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		slog.Warn("auth_denied", "path", r.URL.Path, "reason", "no session")
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return middleware.Session{}, false
	}
	if !sess.IsStaff() {
		slog.Warn("auth_denied", "path", r.URL.Path, "account_id", sess.AccountID, "role", sess.Role, "required", "staff")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return middleware.Session{}, false
	}
	return sess, true
}
