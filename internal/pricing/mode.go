package pricing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PricingMode selects whether the sale price is derived from cost and margin or fixed by hand.
type PricingMode int

const (
	// ModeAutomatic derives the sale price as cost * (1 + margin/100).
	ModeAutomatic PricingMode = iota
	// ModeManual keeps the sale price as an independent input.
	ModeManual
)

func (m PricingMode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	default:
		return "automatic"
	}
}

// ParsePricingMode accepts the wire names, case-insensitively. Empty input means automatic.
func ParsePricingMode(raw string) (PricingMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "automatic", "auto", "automatico":
		return ModeAutomatic, nil
	case "manual":
		return ModeManual, nil
	default:
		return ModeAutomatic, fmt.Errorf("unknown pricing mode %q", raw)
	}
}

// MarshalJSON renders the mode by name.
func (m PricingMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either the mode name or its numeric value.
func (m *PricingMode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		if i != int(ModeAutomatic) && i != int(ModeManual) {
			return fmt.Errorf("unknown pricing mode %d", i)
		}
		*m = PricingMode(i)
		return nil
	}
	parsed, err := ParsePricingMode(str)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
