package quote

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/inventario-pricing/internal/common"
	"github.com/noah-isme/inventario-pricing/internal/obs"
	"github.com/noah-isme/inventario-pricing/internal/pricing"
)

const (
	opTaxBreakdown   = "tax_breakdown"
	opSuggestedPrice = "suggested_price"
	opProduct        = "product"
	opReceiptPreview = "receipt_preview"
	opReceiptApply   = "receipt_apply"
	opCartTotals     = "cart_totals"
)

// Handler serves the stateless pricing endpoints. Rates or margins omitted from a
// request are taken from the current tax settings.
type Handler struct {
	Settings settingsSource
	Validate *validator.Validate
	Logger   zerolog.Logger
}

var defaultValidator = common.NewValidator()

// Routes mounts the handlers under the router it is given.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tax-breakdown", h.TaxBreakdown)
	r.Post("/suggested-price", h.SuggestedPrice)
	r.Post("/product", h.Product)
	r.Post("/stock-receipt/preview", h.PreviewReceipt)
	r.Post("/stock-receipt/apply", h.ApplyReceipt)
	r.Post("/cart/totals", h.CartTotals)
}

// TaxBreakdown handles POST /api/v1/pricing/tax-breakdown.
func (h *Handler) TaxBreakdown(w http.ResponseWriter, r *http.Request) {
	var req taxBreakdownRequest
	if !h.bind(w, r, opTaxBreakdown, &req) {
		return
	}
	defaults := h.defaults(r)
	base, err := pricing.ParseMoney(req.BasePrice)
	if err != nil {
		h.fail(w, opTaxBreakdown, err)
		return
	}
	iva, err := req.IVA.toRate(defaults.iva)
	if err != nil {
		h.fail(w, opTaxBreakdown, err)
		return
	}
	ice, err := req.ICE.toRate(defaults.ice)
	if err != nil {
		h.fail(w, opTaxBreakdown, err)
		return
	}
	obs.ObservePricing(opTaxBreakdown, "ok")
	common.Data(w, http.StatusOK, map[string]any{
		"breakdown": viewBreakdown(pricing.ComputeTaxBreakdown(base, iva, ice)),
		"iva":       viewRate(iva),
		"ice":       viewRate(ice),
	})
}

// SuggestedPrice handles POST /api/v1/pricing/suggested-price.
func (h *Handler) SuggestedPrice(w http.ResponseWriter, r *http.Request) {
	var req suggestedPriceRequest
	if !h.bind(w, r, opSuggestedPrice, &req) {
		return
	}
	cost, err := pricing.ParseMoney(req.Cost)
	if err != nil {
		h.fail(w, opSuggestedPrice, err)
		return
	}
	margin, err := parseMargin(req.Margin, h.defaults(r))
	if err != nil {
		h.fail(w, opSuggestedPrice, err)
		return
	}
	obs.ObservePricing(opSuggestedPrice, "ok")
	common.Data(w, http.StatusOK, map[string]string{
		"cost":           pricing.FormatCost(cost),
		"margin":         pricing.FormatPercentage(margin),
		"suggestedPrice": pricing.FormatPrice(pricing.ComputeSuggestedPrice(cost, margin)),
	})
}

// Product handles POST /api/v1/pricing/product. It applies a field change to a product
// pricing snapshot and returns the snapshot the form should display next.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.bind(w, r, opProduct, &req) {
		return
	}
	current, err := req.State.toPricing(h.defaults(r))
	if err != nil {
		h.fail(w, opProduct, err)
		return
	}
	next, err := req.Change.apply(current)
	if err != nil {
		h.fail(w, opProduct, err)
		return
	}
	obs.ObservePricing(opProduct, "ok")
	common.Data(w, http.StatusOK, viewProduct(next))
}

// PreviewReceipt handles POST /api/v1/pricing/stock-receipt/preview.
func (h *Handler) PreviewReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.bind(w, r, opReceiptPreview, &req) {
		return
	}
	_, preview, err := h.preview(r, req)
	if err != nil {
		h.fail(w, opReceiptPreview, err)
		return
	}
	obs.ObservePricing(opReceiptPreview, "ok")
	common.Data(w, http.StatusOK, viewPreview(preview))
}

// ApplyReceipt handles POST /api/v1/pricing/stock-receipt/apply. Automatic-mode products
// need a decision; without one the response is 409 with the preview in the details.
func (h *Handler) ApplyReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.bind(w, r, opReceiptApply, &req) {
		return
	}
	product, preview, err := h.preview(r, req)
	if err != nil {
		h.fail(w, opReceiptApply, err)
		return
	}
	decision, err := pricing.ParseReceiptDecision(req.Decision)
	if err != nil {
		h.fail(w, opReceiptApply, err)
		return
	}
	next, err := pricing.ApplyReceipt(product, preview, decision)
	if errors.Is(err, pricing.ErrDecisionRequired) {
		obs.ObservePricing(opReceiptApply, "decision_required")
		common.JSONError(w, http.StatusConflict, common.CodeDecisionRequired,
			"choose apply_suggested or keep_current", viewPreview(preview))
		return
	}
	if err != nil {
		h.fail(w, opReceiptApply, err)
		return
	}
	obs.ObservePricing(opReceiptApply, "ok")
	obs.ObserveReceiptDecision(product.Mode.String(), decision.String())
	h.Logger.Debug().
		Str("mode", product.Mode.String()).
		Str("decision", decision.String()).
		Str("avg_cost", pricing.FormatCost(preview.NewAverageCost)).
		Str("sale_price", pricing.FormatPrice(next.SalePrice)).
		Msg("stock receipt applied")
	common.Data(w, http.StatusOK, receiptAppliedView{
		Product: viewProduct(next),
		Stock:   stockView{Stock: preview.NewStock, AverageCost: pricing.FormatCost(preview.NewAverageCost)},
	})
}

// CartTotals handles POST /api/v1/pricing/cart/totals.
func (h *Handler) CartTotals(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !h.bind(w, r, opCartTotals, &req) {
		return
	}
	lines := make([]pricing.CartLine, 0, len(req.Lines))
	for _, in := range req.Lines {
		price, err := pricing.ParseMoney(in.UnitPrice)
		if err != nil {
			h.fail(w, opCartTotals, err)
			return
		}
		discount, err := pricing.ParseMoney(in.LineDiscount)
		if err != nil {
			h.fail(w, opCartTotals, err)
			return
		}
		lines = append(lines, pricing.CartLine{
			Quantity:     in.Quantity,
			UnitPrice:    price,
			LineDiscount: discount,
			TaxApplies:   in.TaxApplies,
		})
	}
	global, err := pricing.ParseMoney(req.GlobalDiscount)
	if err != nil {
		h.fail(w, opCartTotals, err)
		return
	}
	var iva pricing.Percentage
	if req.IVAPercent != nil {
		iva, err = pricing.ParseTaxPercentage(*req.IVAPercent)
	} else {
		iva, err = h.defaults(r).ivaPercent()
	}
	if err != nil {
		h.fail(w, opCartTotals, err)
		return
	}
	totals := pricing.NewCart(lines, global).Totals(iva)
	obs.ObservePricing(opCartTotals, "ok")
	common.Data(w, http.StatusOK, viewCart(totals, iva))
}

func (h *Handler) preview(r *http.Request, req receiptRequest) (pricing.ProductPricing, pricing.ReceiptPreview, error) {
	product, err := req.Product.toPricing(h.defaults(r))
	if err != nil {
		return pricing.ProductPricing{}, pricing.ReceiptPreview{}, err
	}
	unitCost, err := pricing.ParseMoney(req.Receipt.UnitCost)
	if err != nil {
		return pricing.ProductPricing{}, pricing.ReceiptPreview{}, err
	}
	receipt := pricing.StockReceipt{Quantity: req.Receipt.Quantity, UnitCost: unitCost}
	return product, pricing.PreviewReceipt(product, req.CurrentStock, receipt), nil
}

// bind decodes and validates the body, writing the error response itself on failure.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	if err := common.DecodeJSON(r, dst); err != nil {
		obs.ObservePricing(op, "invalid")
		common.WriteError(w, err)
		return false
	}
	v := h.Validate
	if v == nil {
		v = defaultValidator
	}
	if err := common.Validate(v, dst); err != nil {
		obs.ObservePricing(op, "invalid")
		common.WriteError(w, err)
		return false
	}
	return true
}

// fail renders err. Settings lookups surface as AppErrors; anything else is a bad value.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if common.IsAppError(err) {
		obs.ObservePricing(op, "error")
		h.Logger.Error().Err(err).Str("operation", op).Msg("pricing computation failed")
		common.WriteError(w, err)
		return
	}
	obs.ObservePricing(op, "invalid")
	common.WriteError(w, common.BadRequest(err.Error(), err))
}

func (h *Handler) defaults(r *http.Request) *lazySettings {
	return &lazySettings{ctx: r.Context(), src: h.Settings}
}
