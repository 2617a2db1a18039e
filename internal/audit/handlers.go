package audit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/noah-isme/inventario-pricing/internal/common"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler exposes the audit trail.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/settings/tax/audit?limit=&offset=.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	limit := atoiDefault(r.URL.Query().Get("limit"), defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := atoiDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.Store.List(r.Context(), limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	common.Data(w, http.StatusOK, entries)
}

func atoiDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
