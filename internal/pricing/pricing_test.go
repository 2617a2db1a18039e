package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(t, want).Equal(got), "expected %s got %s", want, got.String())
}

func TestComputeTaxBreakdownRoundsOnce(t *testing.T) {
	iva := TaxRate{Percentage: dec(t, "15"), Applies: true}
	ice := TaxRate{Percentage: dec(t, "0"), Applies: true}
	got := ComputeTaxBreakdown(dec(t, "1.25"), iva, ice)
	requireDec(t, "1.25", got.Base)
	requireDec(t, "0.19", got.IVA)
	requireDec(t, "0", got.ICE)
	requireDec(t, "1.44", got.Final)
}

func TestComputeTaxBreakdownIgnoresRatesThatDoNotApply(t *testing.T) {
	for _, base := range []string{"0", "0.01", "9.99", "1234.5678"} {
		got := ComputeTaxBreakdown(dec(t, base),
			TaxRate{Percentage: dec(t, "15"), Applies: false},
			TaxRate{Percentage: dec(t, "30"), Applies: false})
		requireDec(t, dec(t, base).Round(2).String(), got.Final)
		requireDec(t, "0", got.IVA)
		requireDec(t, "0", got.ICE)
	}
}

func TestComputeTaxBreakdownFinalIsSumOfParts(t *testing.T) {
	iva := TaxRate{Percentage: dec(t, "12.5"), Applies: true}
	ice := TaxRate{Percentage: dec(t, "12.5"), Applies: true}
	got := ComputeTaxBreakdown(dec(t, "1"), iva, ice)
	requireDec(t, "0.13", got.IVA)
	requireDec(t, "0.13", got.ICE)
	require.True(t, got.Final.Equal(got.Base.Add(got.IVA).Add(got.ICE)))
}

func TestComputeTaxBreakdownRoundsEachTaxSeparately(t *testing.T) {
	// 0.005 + 0.005 would round to 0.01 as one sum; each tax rounds up on its own
	rate := TaxRate{Percentage: dec(t, "5"), Applies: true}
	got := ComputeTaxBreakdown(dec(t, "0.10"), rate, rate)
	requireDec(t, "0.01", got.IVA)
	requireDec(t, "0.01", got.ICE)
	requireDec(t, "0.12", got.Final)
}

func TestComputeTaxBreakdownClampsNegativeBase(t *testing.T) {
	got := ComputeTaxBreakdown(dec(t, "-10"), NewTaxRate(dec(t, "15")), TaxRate{})
	requireDec(t, "0", got.Final)
}

func TestComputeSuggestedPrice(t *testing.T) {
	requireDec(t, "0", ComputeSuggestedPrice(dec(t, "0"), dec(t, "30")))
	requireDec(t, "0", ComputeSuggestedPrice(dec(t, "-3"), dec(t, "30")))
	requireDec(t, "1.04", ComputeSuggestedPrice(dec(t, "0.80"), dec(t, "30")))

	first := ComputeSuggestedPrice(dec(t, "2.6667"), dec(t, "25"))
	second := ComputeSuggestedPrice(dec(t, "2.6667"), dec(t, "25"))
	require.True(t, first.Equal(second))
	requireDec(t, "3.33", first)
}

func TestProductPricingPropagation(t *testing.T) {
	p := ProductPricing{Cost: dec(t, "0.80"), Margin: dec(t, "30"), Mode: ModeAutomatic}.Recompute()
	requireDec(t, "1.04", p.SalePrice)

	p = p.WithCost(dec(t, "1.00"))
	requireDec(t, "1.30", p.SalePrice)
	p = p.WithMargin(dec(t, "50"))
	requireDec(t, "1.50", p.SalePrice)
	require.True(t, p.Consistent())

	// automatic mode ignores hand-set prices
	p = p.WithSalePrice(dec(t, "9.99"))
	requireDec(t, "1.50", p.SalePrice)

	manual := p.WithMode(ModeManual)
	requireDec(t, "1.50", manual.SalePrice)
	manual = manual.WithCost(dec(t, "2.00")).WithMargin(dec(t, "10"))
	requireDec(t, "1.50", manual.SalePrice)
	manual = manual.WithSalePrice(dec(t, "2.75"))
	requireDec(t, "2.75", manual.SalePrice)
	require.True(t, manual.Consistent())

	back := manual.WithMode(ModeAutomatic)
	requireDec(t, "2.20", back.SalePrice)
}

func TestProductPricingBreakdown(t *testing.T) {
	p := ProductPricing{
		Cost:   dec(t, "1"),
		Margin: dec(t, "25"),
		Mode:   ModeAutomatic,
		IVA:    NewTaxRate(dec(t, "15")),
	}.Recompute()
	b := p.Breakdown()
	requireDec(t, "1.25", b.Base)
	requireDec(t, "1.44", b.Final)
}

func TestComputeWeightedAverage(t *testing.T) {
	got := ComputeWeightedAverage(100, dec(t, "2.50"), 50, dec(t, "3.00"))
	require.Equal(t, int64(150), got.Stock)
	requireDec(t, "2.6667", got.AverageCost)
	require.Equal(t, "2.6667", FormatCost(got.AverageCost))
	require.Equal(t, "2.67", FormatPrice(got.AverageCost))

	fresh := ComputeWeightedAverage(0, dec(t, "0"), 50, dec(t, "3.00"))
	require.Equal(t, int64(50), fresh.Stock)
	requireDec(t, "3", fresh.AverageCost)

	empty := ComputeWeightedAverage(0, dec(t, "5"), 0, dec(t, "4.25"))
	require.Equal(t, int64(0), empty.Stock)
	requireDec(t, "4.25", empty.AverageCost)
}

func TestPreviewAndApplyReceiptAutomatic(t *testing.T) {
	product := ProductPricing{Cost: dec(t, "2.50"), Margin: dec(t, "20"), Mode: ModeAutomatic}.Recompute()
	requireDec(t, "3.00", product.SalePrice)

	preview := PreviewReceipt(product, 100, StockReceipt{Quantity: 50, UnitCost: dec(t, "3.00")})
	require.True(t, preview.RequiresDecision)
	require.Equal(t, int64(150), preview.NewStock)
	requireDec(t, "2.6667", preview.NewAverageCost)
	requireDec(t, "3.20", preview.SuggestedPrice)
	requireDec(t, "3.00", preview.CurrentSalePrice)

	_, err := ApplyReceipt(product, preview, DecisionNone)
	require.ErrorIs(t, err, ErrDecisionRequired)

	applied, err := ApplyReceipt(product, preview, DecisionApplySuggested)
	require.NoError(t, err)
	requireDec(t, "2.6667", applied.Cost)
	requireDec(t, "3.20", applied.SalePrice)
	require.True(t, applied.Consistent())

	kept, err := ApplyReceipt(product, preview, DecisionKeepCurrent)
	require.NoError(t, err)
	requireDec(t, "2.6667", kept.Cost)
	requireDec(t, "3.00", kept.SalePrice)
	requireDec(t, "12.4986", kept.Margin)
	require.True(t, kept.Consistent())
}

func TestKeepCurrentHoldsPriceForLargeCosts(t *testing.T) {
	cases := []struct {
		cost, price, unitCost string
		qty                   int64
	}{
		{cost: "45000", price: "49999.99", unitCost: "38888.8888", qty: 1},
		{cost: "40000", price: "49999.99", unitCost: "30000", qty: 3},
		{cost: "123456.7891", price: "150000.01", unitCost: "99999.9999", qty: 7},
	}
	for _, tc := range cases {
		product := ProductPricing{Cost: dec(t, tc.cost), SalePrice: dec(t, tc.price), Mode: ModeAutomatic}
		product.Margin = deriveMargin(product.Cost, product.SalePrice)
		require.True(t, product.Consistent(), tc.cost)

		preview := PreviewReceipt(product, 1, StockReceipt{Quantity: tc.qty, UnitCost: dec(t, tc.unitCost)})
		kept, err := ApplyReceipt(product, preview, DecisionKeepCurrent)
		require.NoError(t, err)
		requireDec(t, tc.price, kept.SalePrice)
		require.Truef(t, kept.Consistent(), "cost=%s margin=%s suggested=%s", kept.Cost, kept.Margin, kept.Suggested())

		// a later recompute, as a round trip through the API does, keeps the price
		requireDec(t, tc.price, kept.Recompute().SalePrice)
		parsed, err := ParsePercentage(FormatMargin(kept.Margin))
		require.NoError(t, err)
		requireDec(t, tc.price, ComputeSuggestedPrice(kept.Cost, parsed))
	}
}

func TestFormatMargin(t *testing.T) {
	require.Equal(t, "30.00", FormatMargin(dec(t, "30")))
	require.Equal(t, "12.4986", FormatMargin(dec(t, "12.4986")))
	require.Equal(t, "12.49998", FormatMargin(dec(t, "12.49998")))
}

func TestPreviewAndApplyReceiptManual(t *testing.T) {
	product := ProductPricing{Cost: dec(t, "2.50"), Margin: dec(t, "20"), SalePrice: dec(t, "4.00"), Mode: ModeManual}
	preview := PreviewReceipt(product, 100, StockReceipt{Quantity: 50, UnitCost: dec(t, "3.00")})
	require.False(t, preview.RequiresDecision)
	requireDec(t, "3.20", preview.SuggestedPrice)

	applied, err := ApplyReceipt(product, preview, DecisionApplySuggested)
	require.NoError(t, err)
	requireDec(t, "2.6667", applied.Cost)
	requireDec(t, "4.00", applied.SalePrice)
	requireDec(t, "20", applied.Margin)
}

func TestComputeCartTotals(t *testing.T) {
	lines := []CartLine{{Quantity: 2, UnitPrice: dec(t, "1.25"), TaxApplies: true}}
	got := ComputeCartTotals(lines, decimal.Zero, dec(t, "15"))
	requireDec(t, "2.50", got.Subtotal)
	requireDec(t, "0.38", got.TotalTax)
	requireDec(t, "2.88", got.Total)
	require.Len(t, got.Lines, 1)
	requireDec(t, "0.38", got.Lines[0].Tax)
}

func TestComputeCartTotalsSumsRoundedLines(t *testing.T) {
	lines := []CartLine{
		{Quantity: 2, UnitPrice: dec(t, "1.25"), TaxApplies: true},
		{Quantity: 2, UnitPrice: dec(t, "1.25"), TaxApplies: true},
	}
	got := ComputeCartTotals(lines, decimal.Zero, dec(t, "15"))
	require.Len(t, got.Lines, 2)
	requireDec(t, "0.38", got.Lines[0].Tax)
	requireDec(t, "0.38", got.Lines[1].Tax)
	requireDec(t, "0.76", got.TotalTax)
	requireDec(t, "5.00", got.Subtotal)
	requireDec(t, "5.76", got.Total)
}

func TestComputeCartTotalsMixedTaxability(t *testing.T) {
	lines := []CartLine{
		{Quantity: 3, UnitPrice: dec(t, "2.00"), LineDiscount: dec(t, "1.00"), TaxApplies: true},
		{Quantity: 1, UnitPrice: dec(t, "4.50"), TaxApplies: false},
	}
	got := ComputeCartTotals(lines, dec(t, "0.50"), dec(t, "15"))
	requireDec(t, "9.50", got.Subtotal)
	requireDec(t, "0.75", got.TotalTax)
	requireDec(t, "0.50", got.Discount)
	requireDec(t, "9.75", got.Total)
}

func TestComputeCartTotalsClamps(t *testing.T) {
	lines := []CartLine{
		{Quantity: 1, UnitPrice: dec(t, "5"), LineDiscount: dec(t, "8"), TaxApplies: true},
		{Quantity: 2, UnitPrice: dec(t, "1"), TaxApplies: true},
	}
	got := ComputeCartTotals(lines, decimal.Zero, dec(t, "10"))
	requireDec(t, "0", got.Lines[0].Subtotal)
	requireDec(t, "2", got.Subtotal)
	requireDec(t, "2.20", got.Total)

	over := ComputeCartTotals(lines, dec(t, "100"), dec(t, "10"))
	requireDec(t, "0", over.Total)
	requireDec(t, "2.20", over.Discount)

	emptyCart := ComputeCartTotals(nil, dec(t, "3"), dec(t, "15"))
	requireDec(t, "0", emptyCart.Total)
}

func TestCartMutationsRederiveTotals(t *testing.T) {
	iva := dec(t, "15")
	cart := NewCart(nil, decimal.Zero).
		AddLine(CartLine{Quantity: 1, UnitPrice: dec(t, "1.25"), TaxApplies: true}).
		AddLine(CartLine{Quantity: 1, UnitPrice: dec(t, "10"), TaxApplies: false})
	requireDec(t, "11.44", cart.Totals(iva).Total)

	updated := cart.SetQuantity(0, 2)
	requireDec(t, "12.88", updated.Totals(iva).Total)
	requireDec(t, "11.44", cart.Totals(iva).Total)

	updated = updated.SetLineDiscount(1, dec(t, "2")).SetGlobalDiscount(dec(t, "0.88"))
	requireDec(t, "10.00", updated.Totals(iva).Total)

	removed := updated.RemoveLine(1).RemoveLine(7)
	require.Len(t, removed.Lines(), 1)
	requireDec(t, "2.00", removed.Totals(iva).Total)
}

func TestParseBoundaryValues(t *testing.T) {
	m, err := ParseMoney(" 1,25 ")
	require.NoError(t, err)
	requireDec(t, "1.25", m)

	m, err = ParseMoney("")
	require.NoError(t, err)
	require.True(t, m.IsZero())

	_, err = ParseMoney("-1")
	require.ErrorIs(t, err, ErrNegativeAmount)
	_, err = ParseMoney("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)

	p, err := ParsePercentage("15%")
	require.NoError(t, err)
	requireDec(t, "15", p)
	_, err = ParseTaxPercentage("101")
	require.ErrorIs(t, err, ErrPercentageRange)

	margin, err := ParsePercentage("150")
	require.NoError(t, err)
	requireDec(t, "150", margin)

	require.Equal(t, "15.00", FormatPercentage(p))
	require.Equal(t, "3.0000", FormatCost(dec(t, "3")))
}

func TestPricingModeJSON(t *testing.T) {
	raw, err := json.Marshal(ModeManual)
	require.NoError(t, err)
	require.JSONEq(t, `"manual"`, string(raw))

	var m PricingMode
	require.NoError(t, json.Unmarshal([]byte(`"AUTOMATIC"`), &m))
	require.Equal(t, ModeAutomatic, m)
	require.NoError(t, json.Unmarshal([]byte(`1`), &m))
	require.Equal(t, ModeManual, m)
	require.Error(t, json.Unmarshal([]byte(`"fixed"`), &m))

	d, err := ParseReceiptDecision("keep")
	require.NoError(t, err)
	require.Equal(t, DecisionKeepCurrent, d)
	_, err = ParseReceiptDecision("maybe")
	require.Error(t, err)
}
