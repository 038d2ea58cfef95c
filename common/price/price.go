package price

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

const currencyMarker = "zł"

// freeTokens are matched against the cleaned, lower-cased price string.
var freeTokens = []string{"darm", "free", "bezpłatn", "gratis"}

// Normalize converts an optional raw price into a comparable value. An absent price is treated the
// same way as an unparseable one and yields 0.
func Normalize(raw *string) float64 {
	if raw == nil {
		return 0
	}
	return Parse(*raw)
}

// Parse never fails: empty, free and garbled prices all yield 0, which lets them pass any price
// ceiling.
func Parse(raw string) float64 {
	if raw == "" {
		return 0
	}

	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(raw))
	clean = strings.ReplaceAll(clean, currencyMarker, "")
	clean = strings.ReplaceAll(clean, ",", ".")

	for _, token := range freeTokens {
		if strings.Contains(clean, token) {
			return 0
		}
	}

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}

	return value
}
