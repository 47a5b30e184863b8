package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
)

// Pinger is the readiness dependency, usually the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness based on database connectivity.
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.pinger != nil {
		if err := a.pinger.Ping(ctx); err != nil {
			obs.SetReady(false)
			writeError(w, r, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "zomi-portal-auth",
		"version": a.version,
	})
}
