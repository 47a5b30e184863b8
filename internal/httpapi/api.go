// Package httpapi exposes the identity core over HTTP: signup, login, token
// lifecycle, team management, and the audit feed.
package httpapi

import (
	"net/http"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/config"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/stream"
)

const maxBodyBytes = 1 << 20

// API holds the wired handlers for the service.
type API struct {
	svc     *auth.Service
	guard   *auth.Guard
	hub     *stream.Hub
	pinger  Pinger
	cfg     config.Config
	version string
}

// New wires the API from its collaborators.
func New(svc *auth.Service, guard *auth.Guard, hub *stream.Hub, pinger Pinger, cfg config.Config, version string) *API {
	return &API{
		svc:     svc,
		guard:   guard,
		hub:     hub,
		pinger:  pinger,
		cfg:     cfg,
		version: version,
	}
}

// Handler returns the fully assembled HTTP handler with the standard
// middleware chain applied.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.HandleFunc("/v1/info", a.handleInfo)
	mux.Handle("/metrics", obs.Handler())

	mux.HandleFunc("/auth/signup/admin", a.handleSignupAdmin)
	mux.HandleFunc("/auth/signup/user", a.handleSignupUser)
	mux.HandleFunc("/auth/login", a.handleLogin)
	mux.HandleFunc("/auth/refresh", a.handleRefresh)
	mux.HandleFunc("/auth/logout", a.handleLogout)
	mux.HandleFunc("/auth/me", a.handleMe)

	mux.HandleFunc("/team/invite-codes", a.handleInviteCodes)
	mux.HandleFunc("/team/members", a.handleMembers)
	mux.HandleFunc("/team/members/", a.handleMember)
	mux.HandleFunc("/team/audit-logs", a.handleAuditLogs)
	mux.HandleFunc("/team/audit-stream", a.handleAuditStream)

	var handler http.Handler = mux
	handler = a.withAuth(handler)
	handler = obs.Instrument(handler)
	handler = RateLimit(float64(a.cfg.RateLimitPerSecond), a.cfg.RateLimitBurst)(handler)
	handler = MaxBodyBytes(maxBodyBytes)(handler)
	handler = CORS(handler)
	handler = SecurityHeaders(handler)
	handler = LoggingJSON(handler)
	handler = RequestID(handler)
	return handler
}
