package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/inventario-pricing/internal/common"
)

// ErrDisabled is returned by a Checker for a dependency that is not configured.
// Disabled dependencies do not fail readiness: the service runs on its fallbacks.
var ErrDisabled = errors.New("disabled")

const (
	statusOK       = "ok"
	statusDisabled = "disabled"
	statusDraining = "draining"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the process readiness flag. It is cleared when shutdown starts so
// load balancers stop routing traffic before the listener closes.
func SetReady(v bool) {
	ready.Store(v)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Probe checks one named dependency. Probes run with the database timeout.
type Probe func(ctx context.Context) error

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	// Probes are reported under their key next to "db" and "redis".
	Probes map[string]Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": statusDraining})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	dbStatus, dbOK := probe(h.Checker.PingDB(ctx, h.dbTimeout()))
	redisStatus, redisOK := probe(h.Checker.PingRedis(ctx, h.redisTimeout()))

	body := map[string]string{
		"db":    dbStatus,
		"redis": redisStatus,
	}
	allOK := dbOK && redisOK
	for name, p := range h.Probes {
		pctx, cancel := context.WithTimeout(ctx, h.dbTimeout())
		st, ok := probe(p(pctx))
		cancel()
		body[name] = st
		allOK = allOK && ok
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, body)
}

func probe(err error) (string, bool) {
	switch {
	case err == nil:
		return statusOK, true
	case errors.Is(err, ErrDisabled):
		return statusDisabled, true
	default:
		return err.Error(), false
	}
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
