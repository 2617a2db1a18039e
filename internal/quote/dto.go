package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/inventario-pricing/internal/common"
	"github.com/noah-isme/inventario-pricing/internal/pricing"
	"github.com/noah-isme/inventario-pricing/internal/settings"
)

// Requests carry decimal values as strings exactly as the forms send them. They are
// validated, then parsed once into pricing types.

type rateInput struct {
	Percentage string `json:"percentage" validate:"taxpercent"`
	// Applies defaults to "percentage > 0" when omitted.
	Applies *bool `json:"applies"`
}

type taxBreakdownRequest struct {
	BasePrice string     `json:"basePrice" validate:"required,money"`
	IVA       *rateInput `json:"iva" validate:"omitempty"`
	ICE       *rateInput `json:"ice" validate:"omitempty"`
}

type suggestedPriceRequest struct {
	Cost   string  `json:"cost" validate:"required,money"`
	Margin *string `json:"margin" validate:"omitnil,percent"`
}

type productState struct {
	Cost      string     `json:"cost" validate:"money"`
	Margin    *string    `json:"margin" validate:"omitnil,percent"`
	SalePrice string     `json:"salePrice" validate:"money"`
	Mode      string     `json:"mode" validate:"omitempty,oneof=automatic manual"`
	IVA       *rateInput `json:"iva" validate:"omitempty"`
	ICE       *rateInput `json:"ice" validate:"omitempty"`
}

type productChange struct {
	Cost      *string `json:"cost" validate:"omitnil,money"`
	Margin    *string `json:"margin" validate:"omitnil,percent"`
	Mode      *string `json:"mode" validate:"omitnil,oneof=automatic manual"`
	SalePrice *string `json:"salePrice" validate:"omitnil,money"`
}

type productRequest struct {
	State  productState  `json:"state"`
	Change productChange `json:"change"`
}

type receiptInput struct {
	Quantity int64  `json:"quantity" validate:"gte=1"`
	UnitCost string `json:"unitCost" validate:"required,money"`
}

type receiptRequest struct {
	Product      productState `json:"product"`
	CurrentStock int64        `json:"currentStock" validate:"gte=0"`
	Receipt      receiptInput `json:"receipt"`
	Decision     string       `json:"decision" validate:"omitempty,oneof=apply_suggested keep_current"`
}

type cartLineInput struct {
	Quantity     int64  `json:"quantity" validate:"gte=1"`
	UnitPrice    string `json:"unitPrice" validate:"required,money"`
	LineDiscount string `json:"lineDiscount" validate:"money"`
	TaxApplies   bool   `json:"taxApplies"`
}

type cartRequest struct {
	Lines          []cartLineInput `json:"lines" validate:"dive"`
	GlobalDiscount string          `json:"globalDiscount" validate:"money"`
	IVAPercent     *string         `json:"ivaPercent" validate:"omitnil,taxpercent"`
}

// settingsSource is satisfied by *settings.Service.
type settingsSource interface {
	Current(ctx context.Context) (settings.TaxSettings, error)
}

// lazySettings loads tax settings at most once per request, and only when a request
// leaves a rate or margin unspecified.
type lazySettings struct {
	ctx    context.Context
	src    settingsSource
	loaded bool
	value  settings.TaxSettings
	err    error
}

func (l *lazySettings) get() (settings.TaxSettings, error) {
	if !l.loaded {
		l.loaded = true
		var err error
		if l.src == nil {
			err = errors.New("tax settings not configured")
		} else {
			l.value, err = l.src.Current(l.ctx)
		}
		if err != nil {
			l.err = common.NewAppError(common.CodeInternal, "tax settings unavailable", http.StatusInternalServerError, err)
		}
	}
	return l.value, l.err
}

func (in *rateInput) toRate(fallback func() (pricing.TaxRate, error)) (pricing.TaxRate, error) {
	if in == nil {
		return fallback()
	}
	p, err := pricing.ParseTaxPercentage(in.Percentage)
	if err != nil {
		return pricing.TaxRate{}, err
	}
	rate := pricing.NewTaxRate(p)
	if in.Applies != nil {
		rate.Applies = *in.Applies
	}
	return rate, nil
}

func (l *lazySettings) iva() (pricing.TaxRate, error) {
	s, err := l.get()
	return s.IVA, err
}

func (l *lazySettings) ice() (pricing.TaxRate, error) {
	s, err := l.get()
	return s.ICE, err
}

// ivaPercent is the cart-level IVA: the configured rate, or zero when IVA is switched off.
func (l *lazySettings) ivaPercent() (pricing.Percentage, error) {
	s, err := l.get()
	if err != nil {
		return pricing.Percentage{}, err
	}
	return s.IVA.Effective(), nil
}

func (st productState) toPricing(defaults *lazySettings) (pricing.ProductPricing, error) {
	var (
		out pricing.ProductPricing
		err error
	)
	if out.Cost, err = pricing.ParseMoney(st.Cost); err != nil {
		return out, fmt.Errorf("cost: %w", err)
	}
	if out.Margin, err = parseMargin(st.Margin, defaults); err != nil {
		return out, fmt.Errorf("margin: %w", err)
	}
	if out.SalePrice, err = pricing.ParseMoney(st.SalePrice); err != nil {
		return out, fmt.Errorf("salePrice: %w", err)
	}
	if out.Mode, err = pricing.ParsePricingMode(st.Mode); err != nil {
		return out, fmt.Errorf("mode: %w", err)
	}
	if out.IVA, err = st.IVA.toRate(defaults.iva); err != nil {
		return out, fmt.Errorf("iva: %w", err)
	}
	if out.ICE, err = st.ICE.toRate(defaults.ice); err != nil {
		return out, fmt.Errorf("ice: %w", err)
	}
	// An automatic snapshot always carries its derived price.
	return out.Recompute(), nil
}

func parseMargin(raw *string, defaults *lazySettings) (pricing.Percentage, error) {
	if raw != nil {
		return pricing.ParsePercentage(*raw)
	}
	s, err := defaults.get()
	return s.DefaultMargin, err
}

// apply runs the change through the library transitions in a fixed order:
// cost, margin, mode, then the hand-set price (which only sticks in manual mode).
func (c productChange) apply(p pricing.ProductPricing) (pricing.ProductPricing, error) {
	if c.Cost != nil {
		cost, err := pricing.ParseMoney(*c.Cost)
		if err != nil {
			return p, fmt.Errorf("cost: %w", err)
		}
		p = p.WithCost(cost)
	}
	if c.Margin != nil {
		margin, err := pricing.ParsePercentage(*c.Margin)
		if err != nil {
			return p, fmt.Errorf("margin: %w", err)
		}
		p = p.WithMargin(margin)
	}
	if c.Mode != nil {
		mode, err := pricing.ParsePricingMode(*c.Mode)
		if err != nil {
			return p, fmt.Errorf("mode: %w", err)
		}
		p = p.WithMode(mode)
	}
	if c.SalePrice != nil {
		price, err := pricing.ParseMoney(*c.SalePrice)
		if err != nil {
			return p, fmt.Errorf("salePrice: %w", err)
		}
		p = p.WithSalePrice(price)
	}
	return p, nil
}

// Views serialise money as strings: prices and totals with 2 decimals, unit costs with 4.

type rateView struct {
	Percentage string `json:"percentage"`
	Applies    bool   `json:"applies"`
}

type breakdownView struct {
	Base  string `json:"base"`
	IVA   string `json:"iva"`
	ICE   string `json:"ice"`
	Final string `json:"final"`
}

type productView struct {
	Cost           string        `json:"cost"`
	Margin         string        `json:"margin"`
	SalePrice      string        `json:"salePrice"`
	SuggestedPrice string        `json:"suggestedPrice"`
	Mode           string        `json:"mode"`
	IVA            rateView      `json:"iva"`
	ICE            rateView      `json:"ice"`
	Breakdown      breakdownView `json:"breakdown"`
}

type previewView struct {
	NewStock         int64  `json:"newStock"`
	NewAverageCost   string `json:"newAverageCost"`
	SuggestedPrice   string `json:"suggestedPrice"`
	CurrentSalePrice string `json:"currentSalePrice"`
	Mode             string `json:"mode"`
	RequiresDecision bool   `json:"requiresDecision"`
}

type stockView struct {
	Stock       int64  `json:"stock"`
	AverageCost string `json:"averageCost"`
}

type receiptAppliedView struct {
	Product productView `json:"product"`
	Stock   stockView   `json:"stock"`
}

type cartLineView struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
}

type cartView struct {
	Lines      []cartLineView `json:"lines"`
	Subtotal   string         `json:"subtotal"`
	TotalTax   string         `json:"totalTax"`
	Discount   string         `json:"discount"`
	Total      string         `json:"total"`
	IVAPercent string         `json:"ivaPercent"`
}

func viewRate(r pricing.TaxRate) rateView {
	return rateView{Percentage: pricing.FormatPercentage(r.Percentage), Applies: r.Applies}
}

func viewBreakdown(b pricing.TaxBreakdown) breakdownView {
	return breakdownView{
		Base:  pricing.FormatPrice(b.Base),
		IVA:   pricing.FormatPrice(b.IVA),
		ICE:   pricing.FormatPrice(b.ICE),
		Final: pricing.FormatPrice(b.Final),
	}
}

func viewProduct(p pricing.ProductPricing) productView {
	return productView{
		Cost:           pricing.FormatCost(p.Cost),
		Margin:         pricing.FormatMargin(p.Margin),
		SalePrice:      pricing.FormatPrice(p.SalePrice),
		SuggestedPrice: pricing.FormatPrice(p.Suggested()),
		Mode:           p.Mode.String(),
		IVA:            viewRate(p.IVA),
		ICE:            viewRate(p.ICE),
		Breakdown:      viewBreakdown(p.Breakdown()),
	}
}

func viewPreview(p pricing.ReceiptPreview) previewView {
	return previewView{
		NewStock:         p.NewStock,
		NewAverageCost:   pricing.FormatCost(p.NewAverageCost),
		SuggestedPrice:   pricing.FormatPrice(p.SuggestedPrice),
		CurrentSalePrice: pricing.FormatPrice(p.CurrentSalePrice),
		Mode:             p.Mode.String(),
		RequiresDecision: p.RequiresDecision,
	}
}

func viewCart(t pricing.CartTotals, iva pricing.Percentage) cartView {
	lines := make([]cartLineView, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, cartLineView{Subtotal: pricing.FormatPrice(l.Subtotal), Tax: pricing.FormatPrice(l.Tax)})
	}
	return cartView{
		Lines:      lines,
		Subtotal:   pricing.FormatPrice(t.Subtotal),
		TotalTax:   pricing.FormatPrice(t.TotalTax),
		Discount:   pricing.FormatPrice(t.Discount),
		Total:      pricing.FormatPrice(t.Total),
		IVAPercent: pricing.FormatPercentage(iva),
	}
}
