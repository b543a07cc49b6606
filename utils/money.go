package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money rounds a decimal half-up to two places and returns it as float64
// for storage and JSON.
func Money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// FormatCurrency memformat angka dengan pemisah ribuan dan 2 desimal
// Example: 15000.5 -> "15.000,50"
func FormatCurrency(amount float64) string {
	formatted := decimal.NewFromFloat(amount).StringFixed(2)

	negative := strings.HasPrefix(formatted, "-")
	formatted = strings.TrimPrefix(formatted, "-")

	parts := strings.Split(formatted, ".")
	integerPart := parts[0]
	decimalPart := parts[1]

	// Tambahkan pemisah ribuan
	var result []string
	for i := len(integerPart); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		result = append([]string{integerPart[start:i]}, result...)
	}

	out := strings.Join(result, ".") + "," + decimalPart
	if negative {
		out = "-" + out
	}
	return out
}
