package payment

import (
	"math"
	"strconv"
	"strings"
)

// MinorUnits converts a currency amount into the integer minor-unit
// encoding the providers expect. The encoding follows the legacy
// convention byte for byte: a fractional amount is rendered with two
// decimals and the point dropped (12.50 -> 1250), an integral amount
// gets two zero digits appended (100 -> 10000).
func MinorUnits(amount float64) int64 {
	var s string
	if amount == math.Trunc(amount) {
		s = strconv.FormatFloat(amount, 'f', 0, 64) + "00"
	} else {
		s = strings.Replace(strconv.FormatFloat(amount, 'f', 2, 64), ".", "", 1)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SanitizeStoredAmount strips separators from an amount string read
// back from storage so it can be submitted on the confirmation call.
// "1 250.00" becomes "125000".
func SanitizeStoredAmount(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
