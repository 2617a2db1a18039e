package settings

import (
	"context"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/inventario-pricing/internal/common"
	"github.com/noah-isme/inventario-pricing/internal/pricing"
)

// RevisionHeader carries the revision written by a successful update.
const RevisionHeader = "X-Settings-Revision"

type settingsService interface {
	Current(ctx context.Context) (TaxSettings, error)
	Update(ctx context.Context, in TaxSettings) (TaxSettings, error)
}

// Handler exposes the tax settings endpoints.
type Handler struct {
	Svc      settingsService
	Validate *validator.Validate
}

var defaultValidator = common.NewValidator()

// Request bounds mirror the NUMERIC(5,2) and NUMERIC(7,2) settings columns.
type rateRequest struct {
	Percentage string `json:"percentage" validate:"required,taxpercent,decscale=2"`
	Applies    bool   `json:"applies"`
}

type updateRequest struct {
	IVA           rateRequest `json:"iva"`
	ICE           rateRequest `json:"ice"`
	DefaultMargin string      `json:"defaultMargin" validate:"required,percent,decscale=2,decmax=99999.99"`
}

type rateView struct {
	Percentage string `json:"percentage"`
	Applies    bool   `json:"applies"`
}

type settingsView struct {
	IVA           rateView `json:"iva"`
	ICE           rateView `json:"ice"`
	DefaultMargin string   `json:"defaultMargin"`
	Revision      string   `json:"revision,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

func viewOf(s TaxSettings) settingsView {
	v := settingsView{
		IVA:           rateView{Percentage: pricing.FormatPercentage(s.IVA.Percentage), Applies: s.IVA.Applies},
		ICE:           rateView{Percentage: pricing.FormatPercentage(s.ICE.Percentage), Applies: s.ICE.Applies},
		DefaultMargin: pricing.FormatPercentage(s.DefaultMargin),
	}
	if s.Revision != uuid.Nil {
		v.Revision = s.Revision.String()
	}
	if !s.UpdatedAt.IsZero() {
		v.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// Get handles GET /api/v1/settings/tax.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settings service not configured", nil)
		return
	}
	current, err := h.Svc.Current(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, viewOf(current))
}

// Update handles PUT /api/v1/settings/tax.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settings service not configured", nil)
		return
	}
	var req updateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(h.validator(), req); err != nil {
		common.WriteError(w, err)
		return
	}
	in, err := req.toSettings()
	if err != nil {
		common.WriteError(w, common.BadRequest(err.Error(), err))
		return
	}
	saved, err := h.Svc.Update(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set(RevisionHeader, saved.Revision.String())
	common.Data(w, http.StatusOK, viewOf(saved))
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidator
}

func (req updateRequest) toSettings() (TaxSettings, error) {
	iva, err := pricing.ParseTaxPercentage(req.IVA.Percentage)
	if err != nil {
		return TaxSettings{}, err
	}
	ice, err := pricing.ParseTaxPercentage(req.ICE.Percentage)
	if err != nil {
		return TaxSettings{}, err
	}
	margin, err := pricing.ParsePercentage(req.DefaultMargin)
	if err != nil {
		return TaxSettings{}, err
	}
	return TaxSettings{
		IVA:           pricing.TaxRate{Percentage: iva, Applies: req.IVA.Applies},
		ICE:           pricing.TaxRate{Percentage: ice, Applies: req.ICE.Applies},
		DefaultMargin: margin,
	}, nil
}
