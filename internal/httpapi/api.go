package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/auth"
	"eventguard.org/internal/directory"
	"eventguard.org/internal/incident"
	"eventguard.org/internal/live"
	"eventguard.org/internal/media"
	"eventguard.org/internal/obs"
	"eventguard.org/internal/vision"
)

const maxUploadBytes = 20 << 20

// ReadyProbe reports readiness, pinging the database when one is
// configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the wired services for the HTTP layer.
type Config struct {
	Directory *directory.Service
	Alerts    alert.Ledger
	Incidents incident.Store
	Gateway   *live.Gateway
	Authn     *auth.Authenticator
	Vision    *vision.Client
	Media     *media.Store
	Ready     ReadyProbe
	Version   string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	directory  *directory.Service
	alerts     alert.Ledger
	incidents  incident.Store
	gateway    *live.Gateway
	authn      *auth.Authenticator
	vision     *vision.Client
	media      *media.Store
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		directory:  cfg.Directory,
		alerts:     cfg.Alerts,
		incidents:  cfg.Incidents,
		gateway:    cfg.Gateway,
		authn:      cfg.Authn,
		vision:     cfg.Vision,
		media:      cfg.Media,
		readyProbe: cfg.Ready,
		version:    cfg.Version,
		rateBurst:  50,
		ratePerSec: 25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// staff directory and sessions
	a.mux.HandleFunc("/api/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/google", a.handleGoogleSignIn)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)
	a.mux.HandleFunc("/api/auth/pending-users", a.handlePendingUsers)
	a.mux.HandleFunc("/api/auth/approve-user/", a.handleApproveUser)
	a.mux.HandleFunc("/api/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/api/auth/reset-password/", a.handleResetPassword)

	// alert history and attachments
	a.mux.HandleFunc("/api/alerts", a.handleAlerts)
	a.mux.HandleFunc("/api/alert-media-upload", a.handleMediaUpload)
	a.mux.HandleFunc("/api/analyze-image", a.handleAnalyzeImage)

	// incident log
	a.mux.HandleFunc("/api/incidents", a.handleIncidentsCollection)
	a.mux.HandleFunc("/api/incidents/", a.handleIncidentResource)

	// live socket
	if a.gateway != nil {
		a.mux.HandleFunc("/ws", a.gateway.HandleWS)
	}

	// stored uploads
	if a.media != nil {
		a.mux.HandleFunc("/uploads/", a.handleUploadedFile)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, maxUploadBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "eventguard-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "eventguard-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
