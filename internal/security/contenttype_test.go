package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireJSON(t *testing.T) {
	handler := RequireJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{name: "json", method: http.MethodPost, contentType: "application/json", body: `{}`, want: http.StatusNoContent},
		{name: "json with charset", method: http.MethodPut, contentType: "application/json; charset=utf-8", body: `{}`, want: http.StatusNoContent},
		{name: "form", method: http.MethodPost, contentType: "application/x-www-form-urlencoded", body: "cost=1", want: http.StatusUnsupportedMediaType},
		{name: "missing type", method: http.MethodPost, body: `{}`, want: http.StatusUnsupportedMediaType},
		{name: "empty body", method: http.MethodPost, want: http.StatusNoContent},
		{name: "get", method: http.MethodGet, contentType: "text/plain", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/pricing/cart/totals", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnsupportedMediaType {
				require.Contains(t, rr.Body.String(), CodeUnsupportedMediaType)
			}
		})
	}
}
