// Package httpapi is the HTTP presentation layer over the social registry.
// Handlers translate requests into Service calls and errors into status
// codes; no relationship rules live here.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"tribo.social/internal/obs"
	"tribo.social/internal/social"
)

// ReadyProbe checks an optional database handle for readiness.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires the route table to a social.Service.
type API struct {
	mux        *http.ServeMux
	svc        social.Service
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// APIOption configures the API.
type APIOption func(*API)

// WithRateLimit overrides the per-IP token bucket parameters.
func WithRateLimit(perSecond, burst int) APIOption {
	return func(a *API) {
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
		if burst > 0 {
			a.rateBurst = burst
		}
	}
}

// WithMaxBodyBytes overrides the request body size cap.
func WithMaxBodyBytes(n int64) APIOption {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

func New(svc social.Service, rp ReadyProbe, version string, opts ...APIOption) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
		rateBurst:  100,
		ratePerSec: 50,
		maxBody:    1 << 16,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/sessions", a.handleSessions)
	a.mux.HandleFunc("/v1/profile", a.handleProfile)
	a.mux.HandleFunc("/v1/friends", a.handleFriends)
	a.mux.HandleFunc("/v1/messages", a.handleMessages)
	a.mux.HandleFunc("/v1/messages/next", a.handleNextMessage)
	a.mux.HandleFunc("/v1/communities", a.handleCommunitiesCollection)
	a.mux.HandleFunc("/v1/communities/", a.handleCommunityResource)
	a.mux.HandleFunc("/v1/broadcasts/next", a.handleNextBroadcast)
	a.mux.HandleFunc("/v1/idols", a.handleIdols)
	a.mux.HandleFunc("/v1/crushes", a.handleCrushes)
	a.mux.HandleFunc("/v1/enemies", a.handleEnemies)
	a.mux.HandleFunc("/v1/system/reset", a.handleReset)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the route table.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = obs.Instrument(h)
	h = a.withSession(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tribo-api",
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
		"name":    "tribo-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
