package settings

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/inventario-pricing/internal/pricing"
)

// ErrNotFound is returned by a Store that has no settings row yet.
var ErrNotFound = errors.New("tax settings not found")

// TaxSettings are the system-wide tax defaults edited from the settings screen.
type TaxSettings struct {
	IVA           pricing.TaxRate    `json:"iva"`
	ICE           pricing.TaxRate    `json:"ice"`
	DefaultMargin pricing.Percentage `json:"defaultMargin"`
	Revision      uuid.UUID          `json:"revision"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Defaults builds settings from configured percentages. Rates apply when positive.
func Defaults(ivaPercent, icePercent, margin pricing.Percentage) TaxSettings {
	return TaxSettings{
		IVA:           pricing.NewTaxRate(ivaPercent),
		ICE:           pricing.NewTaxRate(icePercent),
		DefaultMargin: margin,
	}
}
