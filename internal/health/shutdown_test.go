package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/inventario-pricing/internal/health"
)

type noopChecker struct{}

func (noopChecker) PingDB(context.Context, time.Duration) error    { return nil }
func (noopChecker) PingRedis(context.Context, time.Duration) error { return nil }

func TestReadinessDrainsAfterShutdown(t *testing.T) {
	handler := health.Handler{Checker: noopChecker{}}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(true)
	resp := httptest.NewRecorder()
	handler.Ready(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	health.SetReady(false)
	resp = httptest.NewRecorder()
	handler.Ready(resp, req)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.JSONEq(t, `{"status":"draining"}`, resp.Body.String())
}

func TestReadinessProbes(t *testing.T) {
	settingsErr := errors.New("settings unavailable")
	handler := health.Handler{
		Checker: noopChecker{},
		Probes: map[string]health.Probe{
			"settings": func(ctx context.Context) error {
				_, ok := ctx.Deadline()
				require.True(t, ok, "probes run with a deadline")
				return settingsErr
			},
		},
	}

	resp := httptest.NewRecorder()
	handler.Ready(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.JSONEq(t, `{"db":"ok","redis":"ok","settings":"settings unavailable"}`, resp.Body.String())

	settingsErr = nil
	resp = httptest.NewRecorder()
	handler.Ready(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"db":"ok","redis":"ok","settings":"ok"}`, resp.Body.String())
}
