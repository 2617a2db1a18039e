package security

import (
	"mime"
	"net/http"

	"github.com/noah-isme/inventario-pricing/internal/common"
)

// CodeUnsupportedMediaType is returned with 415 responses.
const CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"

// RequireJSON rejects write requests whose body is not declared as JSON.
// Requests without a body pass through so the handlers can report the missing payload.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			common.JSONError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType,
				"request body must be application/json", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
