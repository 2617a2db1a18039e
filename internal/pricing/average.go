package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrDecisionRequired is returned when a receipt for an automatic-mode product is applied
// without the operator choosing between the suggested and the current sale price.
var ErrDecisionRequired = errors.New("pricing decision required")

// StockLevel is the on-hand quantity and its weighted average unit cost.
type StockLevel struct {
	Stock       int64
	AverageCost Money
}

// StockReceipt describes incoming stock for a single product.
type StockReceipt struct {
	Quantity int64
	UnitCost Money
}

// ComputeWeightedAverage blends the existing stock cost with an incoming receipt.
// The average is kept at four decimals. When the resulting stock is not positive the
// incoming cost is returned as the average.
func ComputeWeightedAverage(currentStock int64, currentAvgCost Money, incomingQty int64, incomingCost Money) StockLevel {
	if currentStock < 0 {
		currentStock = 0
	}
	newStock := currentStock + incomingQty
	if newStock <= 0 {
		return StockLevel{Stock: newStock, AverageCost: RoundCost(nonNegative(incomingCost))}
	}
	existing := decimal.NewFromInt(currentStock).Mul(nonNegative(currentAvgCost))
	incoming := decimal.NewFromInt(incomingQty).Mul(nonNegative(incomingCost))
	avg := existing.Add(incoming).Div(decimal.NewFromInt(newStock))
	return StockLevel{Stock: newStock, AverageCost: RoundCost(avg)}
}

// ReceiptPreview is what the stock-entry screen shows before committing a receipt.
type ReceiptPreview struct {
	NewStock         int64
	NewAverageCost   Money
	SuggestedPrice   Money
	CurrentSalePrice Money
	Mode             PricingMode
	// RequiresDecision is true in automatic mode: the operator must either apply
	// SuggestedPrice or keep CurrentSalePrice. In manual mode SuggestedPrice is informational.
	RequiresDecision bool
}

// PreviewReceipt computes the effect of receipt on product without committing anything.
func PreviewReceipt(product ProductPricing, currentStock int64, receipt StockReceipt) ReceiptPreview {
	level := ComputeWeightedAverage(currentStock, product.Cost, receipt.Quantity, receipt.UnitCost)
	return ReceiptPreview{
		NewStock:         level.Stock,
		NewAverageCost:   level.AverageCost,
		SuggestedPrice:   ComputeSuggestedPrice(level.AverageCost, product.Margin),
		CurrentSalePrice: product.SalePrice,
		Mode:             product.Mode,
		RequiresDecision: product.Mode == ModeAutomatic,
	}
}

// ReceiptDecision is the operator's answer to a receipt preview in automatic mode.
type ReceiptDecision int

const (
	// DecisionNone means no choice was made.
	DecisionNone ReceiptDecision = iota
	// DecisionApplySuggested replaces the sale price with the suggested one.
	DecisionApplySuggested
	// DecisionKeepCurrent keeps the current sale price.
	DecisionKeepCurrent
)

func (d ReceiptDecision) String() string {
	switch d {
	case DecisionApplySuggested:
		return "apply_suggested"
	case DecisionKeepCurrent:
		return "keep_current"
	default:
		return ""
	}
}

// ParseReceiptDecision maps wire names to decisions. Empty input is DecisionNone.
func ParseReceiptDecision(raw string) (ReceiptDecision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return DecisionNone, nil
	case "apply_suggested", "apply":
		return DecisionApplySuggested, nil
	case "keep_current", "keep":
		return DecisionKeepCurrent, nil
	default:
		return DecisionNone, fmt.Errorf("unknown receipt decision %q", raw)
	}
}

// ApplyReceipt commits a preview to the product pricing snapshot.
//
// Manual mode only updates the cost. Automatic mode needs a decision: applying the
// suggestion sets the new cost and recomputes the price, keeping the current price
// re-derives the margin from the kept price and the new cost.
func ApplyReceipt(product ProductPricing, preview ReceiptPreview, decision ReceiptDecision) (ProductPricing, error) {
	next := product
	next.Cost = preview.NewAverageCost
	if product.Mode == ModeManual {
		return next, nil
	}
	switch decision {
	case DecisionApplySuggested:
		return next.Recompute(), nil
	case DecisionKeepCurrent:
		if next.Cost.IsPositive() {
			next.Margin = deriveMargin(next.Cost, product.SalePrice)
		}
		next.SalePrice = product.SalePrice
		return next, nil
	default:
		return product, ErrDecisionRequired
	}
}
