package pricing

// ComputeSuggestedPrice returns cost * (1 + margin/100) rounded to two decimals.
// A zero result means no suggestion is possible (cost <= 0).
func ComputeSuggestedPrice(cost Money, marginPercent Percentage) Money {
	if !cost.IsPositive() {
		return zero
	}
	factor := one.Add(marginPercent.Div(hundred))
	return nonNegative(RoundPrice(cost.Mul(factor)))
}

// ProductPricing is an immutable snapshot of a product's pricing fields.
// In automatic mode SalePrice is a cache of cost and margin; in manual mode it is authoritative.
type ProductPricing struct {
	Cost      Money
	Margin    Percentage
	SalePrice Money
	Mode      PricingMode
	IVA       TaxRate
	ICE       TaxRate
}

// Recompute refreshes the sale price from cost and margin when the mode is automatic.
// A manual snapshot is returned unchanged.
func (p ProductPricing) Recompute() ProductPricing {
	if p.Mode != ModeAutomatic {
		return p
	}
	p.SalePrice = ComputeSuggestedPrice(p.Cost, p.Margin)
	return p
}

// WithCost replaces the cost and reapplies the propagation rule for the current mode.
func (p ProductPricing) WithCost(cost Money) ProductPricing {
	p.Cost = nonNegative(cost)
	return p.Recompute()
}

// WithMargin replaces the margin and reapplies the propagation rule for the current mode.
func (p ProductPricing) WithMargin(margin Percentage) ProductPricing {
	p.Margin = margin
	return p.Recompute()
}

// WithMode switches the pricing mode. Switching to automatic overwrites the sale price
// immediately; switching to manual freezes it at its last value.
func (p ProductPricing) WithMode(mode PricingMode) ProductPricing {
	p.Mode = mode
	return p.Recompute()
}

// WithSalePrice sets the sale price by hand. It only takes effect in manual mode.
func (p ProductPricing) WithSalePrice(price Money) ProductPricing {
	if p.Mode != ModeManual {
		return p
	}
	p.SalePrice = nonNegative(price)
	return p
}

// Suggested returns the suggested price for the current cost and margin regardless of mode.
func (p ProductPricing) Suggested() Money {
	return ComputeSuggestedPrice(p.Cost, p.Margin)
}

// Breakdown returns the tax breakdown of the current sale price.
func (p ProductPricing) Breakdown() TaxBreakdown {
	return ComputeTaxBreakdown(p.SalePrice, p.IVA, p.ICE)
}

// Consistent reports whether the snapshot honours the automatic-mode invariant.
func (p ProductPricing) Consistent() bool {
	if p.Mode != ModeAutomatic {
		return true
	}
	return p.SalePrice.Equal(p.Suggested())
}

// marginMaxScale bounds the precision of a derived margin.
const marginMaxScale int32 = 12

// deriveMargin returns the margin that turns cost into price. It uses four decimals
// when they reproduce price and adds decimals until ComputeSuggestedPrice(cost, margin)
// equals price again, which large costs need.
func deriveMargin(cost, price Money) Percentage {
	if !cost.IsPositive() {
		return zero
	}
	exact := price.Div(cost).Sub(one).Mul(hundred)
	for scale := CostScale; scale < marginMaxScale; scale++ {
		m := exact.Round(scale)
		if ComputeSuggestedPrice(cost, m).Equal(price) {
			return m
		}
	}
	return exact.Round(marginMaxScale)
}
