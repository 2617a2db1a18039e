package pricing

// TaxRate is a percentage paired with the flag that says whether it applies.
type TaxRate struct {
	Percentage Percentage `json:"percentage"`
	Applies    bool       `json:"applies"`
}

// NewTaxRate builds a rate that applies whenever its percentage is positive.
func NewTaxRate(p Percentage) TaxRate {
	return TaxRate{Percentage: p, Applies: p.IsPositive()}
}

// Effective returns the percentage used in computations: zero when the rate does not apply.
func (r TaxRate) Effective() Percentage {
	if !r.Applies || r.Percentage.IsNegative() {
		return zero
	}
	if r.Percentage.GreaterThan(hundred) {
		return hundred
	}
	return r.Percentage
}

// TaxBreakdown splits a tax-inclusive price into its components.
type TaxBreakdown struct {
	Base  Money
	IVA   Money
	ICE   Money
	Final Money
}

// ComputeTaxBreakdown applies IVA and ICE to basePrice. Each component is computed from
// the unrounded base and rounded once to two decimals; Final is the sum of the rounded
// components so Final == Base + IVA + ICE always holds.
func ComputeTaxBreakdown(basePrice Money, iva, ice TaxRate) TaxBreakdown {
	base := nonNegative(basePrice)
	ivaAmount := RoundPrice(base.Mul(iva.Effective()).Div(hundred))
	iceAmount := RoundPrice(base.Mul(ice.Effective()).Div(hundred))
	roundedBase := RoundPrice(base)
	return TaxBreakdown{
		Base:  roundedBase,
		IVA:   ivaAmount,
		ICE:   iceAmount,
		Final: roundedBase.Add(ivaAmount).Add(iceAmount),
	}
}

// lineTax is the per-line tax rule shared with cart totals: untaxed lines contribute zero.
func lineTax(amount Money, applies bool, ivaPercent Percentage) Money {
	return amount.Mul(TaxRate{Percentage: ivaPercent, Applies: applies}.Effective()).Div(hundred)
}
