package domain

import (
	"fmt"
	"strings"
)

// FormatMoney formats an amount as "$X,XXX.XX"
func FormatMoney(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	s := fmt.Sprintf("%.2f", amount)
	dot := len(s) - 3
	whole, cents := s[:dot], s[dot:]

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	if negative {
		return "-$" + b.String() + cents
	}
	return "$" + b.String() + cents
}

// FormatAmount formats an optional amount, blank when unset
func FormatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatMoney(*v)
}

// MedicareClass maps a medicare status to a display class
func MedicareClass(s MedicareStatus) string {
	switch s {
	case MedicareYes:
		return "covered"
	case MedicareNo:
		return "not-covered"
	case MedicareReview, MedicareDiscretion:
		return "review"
	default:
		return "pending"
	}
}
