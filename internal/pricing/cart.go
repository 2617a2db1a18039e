package pricing

import "github.com/shopspring/decimal"

// CartLine is a single POS line. Quantity bounds against available stock are enforced by the caller.
type CartLine struct {
	Quantity     int64
	UnitPrice    Money
	LineDiscount Money
	TaxApplies   bool
}

// LineTotals holds the computed figures of one cart line.
type LineTotals struct {
	Subtotal Money
	Tax      Money
}

// CartTotals aggregates computed cart components.
type CartTotals struct {
	Lines    []LineTotals
	Subtotal Money
	TotalTax Money
	// Discount is the part of the global discount that was absorbed by the cart.
	Discount Money
	Total    Money
}

// ComputeCartTotals derives subtotal, tax and total from scratch. It never rejects input:
// negative line amounts and totals are clamped to zero.
func ComputeCartTotals(lines []CartLine, globalDiscount Money, ivaPercent Percentage) CartTotals {
	out := CartTotals{Lines: make([]LineTotals, 0, len(lines))}
	subtotal := zero
	tax := zero
	for _, line := range lines {
		qty := line.Quantity
		if qty < 0 {
			qty = 0
		}
		gross := decimal.NewFromInt(qty).Mul(nonNegative(line.UnitPrice))
		lineSubtotal := nonNegative(gross.Sub(nonNegative(line.LineDiscount)))
		lt := LineTotals{
			Subtotal: RoundPrice(lineSubtotal),
			Tax:      RoundPrice(lineTax(lineSubtotal, line.TaxApplies, ivaPercent)),
		}
		subtotal = subtotal.Add(lt.Subtotal)
		tax = tax.Add(lt.Tax)
		out.Lines = append(out.Lines, lt)
	}
	// totals are sums of the rounded line figures so a receipt adds up
	out.Subtotal = subtotal
	out.TotalTax = tax
	gross := out.Subtotal.Add(out.TotalTax)
	discount := RoundPrice(nonNegative(globalDiscount))
	if discount.GreaterThan(gross) {
		discount = gross
	}
	out.Discount = discount
	out.Total = gross.Sub(discount)
	return out
}

// Cart is an immutable POS cart. Every mutation returns a new Cart; totals are always
// re-derived from the full line list.
type Cart struct {
	lines          []CartLine
	globalDiscount Money
}

// NewCart builds a cart from lines and a global discount.
func NewCart(lines []CartLine, globalDiscount Money) Cart {
	return Cart{lines: append([]CartLine(nil), lines...), globalDiscount: nonNegative(globalDiscount)}
}

// Lines returns a copy of the cart lines.
func (c Cart) Lines() []CartLine {
	return append([]CartLine(nil), c.lines...)
}

// GlobalDiscount returns the cart-level discount.
func (c Cart) GlobalDiscount() Money {
	return c.globalDiscount
}

// AddLine appends a line.
func (c Cart) AddLine(line CartLine) Cart {
	lines := append(c.Lines(), line)
	return Cart{lines: lines, globalDiscount: c.globalDiscount}
}

// RemoveLine drops the line at index i. Out-of-range indexes leave the cart unchanged.
func (c Cart) RemoveLine(i int) Cart {
	if i < 0 || i >= len(c.lines) {
		return c
	}
	lines := make([]CartLine, 0, len(c.lines)-1)
	lines = append(lines, c.lines[:i]...)
	lines = append(lines, c.lines[i+1:]...)
	return Cart{lines: lines, globalDiscount: c.globalDiscount}
}

// SetQuantity changes the quantity of line i.
func (c Cart) SetQuantity(i int, qty int64) Cart {
	return c.updateLine(i, func(l *CartLine) { l.Quantity = qty })
}

// SetLineDiscount changes the discount of line i.
func (c Cart) SetLineDiscount(i int, discount Money) Cart {
	return c.updateLine(i, func(l *CartLine) { l.LineDiscount = nonNegative(discount) })
}

// SetGlobalDiscount replaces the cart-level discount.
func (c Cart) SetGlobalDiscount(discount Money) Cart {
	return Cart{lines: c.Lines(), globalDiscount: nonNegative(discount)}
}

// Totals computes the cart totals with the given IVA percentage.
func (c Cart) Totals(ivaPercent Percentage) CartTotals {
	return ComputeCartTotals(c.lines, c.globalDiscount, ivaPercent)
}

func (c Cart) updateLine(i int, fn func(*CartLine)) Cart {
	if i < 0 || i >= len(c.lines) {
		return c
	}
	lines := c.Lines()
	fn(&lines[i])
	return Cart{lines: lines, globalDiscount: c.globalDiscount}
}
