package stormrisk

import (
	"strings"

	"github.com/shopspring/decimal"
)

var damageUnits = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
}

// ParseDamage converts a storm-event damage string such as "2.5K" or "1.2M"
// to dollars. Blank or unparseable values are 0.
func ParseDamage(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := decimal.NewFromInt(1)
	if unit, ok := damageUnits[strings.ToUpper(s[len(s)-1:])[0]]; ok {
		mult = unit
		s = strings.TrimSpace(s[:len(s)-1])
		if s == "" {
			return 0
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Mul(mult).Float64()
	return f
}
