package audit

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/inventario-pricing/internal/obs"
)

// HTTPRecorder records requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// HTTPConfig customises the entry produced for a route.
type HTTPConfig struct {
	Action   string
	Resource string
	// ResourceIDHeader names a response header carrying the changed resource's id.
	ResourceIDHeader string
	// SkipFailures drops entries for responses with status >= 400.
	SkipFailures bool
	MetadataFunc func(r *http.Request, status int, header http.Header) map[string]any
}

// Middleware returns a chi-compatible middleware that records audit entries.
func (rec HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rec.Service == nil || !rec.Service.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			recorder := obs.NewStatusRecorder(w)
			next.ServeHTTP(recorder, r)

			status := recorder.Status()
			if cfg.SkipFailures && status >= http.StatusBadRequest {
				return
			}
			resourceID := ""
			if cfg.ResourceIDHeader != "" {
				resourceID = w.Header().Get(cfg.ResourceIDHeader)
			}
			var metadata []byte
			if cfg.MetadataFunc != nil {
				if payload := cfg.MetadataFunc(r, status, w.Header()); payload != nil {
					if data, err := json.Marshal(payload); err == nil {
						metadata = data
					}
				}
			}

			if err := rec.Service.Record(r.Context(), cfg.Action, cfg.Resource, resourceID, r, status, metadata); err != nil && rec.OnError != nil {
				rec.OnError(err)
			}
		})
	}
}
