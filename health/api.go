package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API serves liveness and readiness endpoints backed by probes.
// A nil probe always passes.
type API struct {
	Live  Probe
	Ready Probe
}

// NewAPI constructs a health API.
func NewAPI(live, ready Probe) *API {
	return &API{Live: live, Ready: ready}
}

// RegisterRoutes attaches /health, /health/live and /health/ready to r.
// The bare /health route aliases liveness so the default logging skip
// prefix covers all three.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/health", probeHandler(api.Live))
	r.Method(http.MethodGet, "/health/live", probeHandler(api.Live))
	r.Method(http.MethodGet, "/health/ready", probeHandler(api.Ready))
}

type status struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func probeHandler(p Probe) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(status{Status: "unavailable", Reason: err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status{Status: "ok"})
	})
}
