package utils

import (
	"math"
	"os"
	"strconv"
)

// DefaultTaxRate is the flat VAT rate applied to taxable campaign checkouts.
const DefaultTaxRate = 0.16

// TaxRate returns the configured flat tax rate (TAX_RATE env, default 16%).
func TaxRate() float64 {
	if s := os.Getenv("TAX_RATE"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 && v < 1 {
			return v
		}
	}
	return DefaultTaxRate
}

// ComputeTax returns the rounded flat tax on a subtotal in base currency units.
func ComputeTax(subtotal int64, rate float64) int64 {
	return int64(math.Round(float64(subtotal) * rate))
}

// ToMinorUnits converts a base-unit amount to the gateway's minor units
// (KES -> cents, x100).
func ToMinorUnits(amount int64) int64 {
	return amount * 100
}

// FromMinorUnits converts a gateway minor-unit amount back to base units.
func FromMinorUnits(minor int64) int64 {
	return minor / 100
}
