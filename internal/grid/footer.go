package grid

import (
	"math"
	"strconv"
	"strings"

	"github.com/andy/billgrid/internal/domain"
)

// Totals are the running footer sums over persisted rows
type Totals struct {
	Charge      float64
	Paid        float64
	ThirdParty  float64
	PatientResp float64
	Adjustments float64
	Lines       int
}

// Footer sums the financial columns of every persisted row. Placeholder
// rows never contribute.
func Footer(rows []domain.LineItem) Totals {
	var t Totals
	for _, r := range rows {
		if r.IsSentinel() {
			continue
		}
		t.Lines++
		t.Charge += Coerce(domain.FieldCharge.Spec().Get(&r.Fields))
		t.Paid += Coerce(domain.FieldApprovedAmount.Spec().Get(&r.Fields))
		t.ThirdParty += Coerce(domain.FieldThirdParty.Spec().Get(&r.Fields))
		t.PatientResp += Coerce(domain.FieldPatientResp.Spec().Get(&r.Fields))
	}
	t.Charge = RoundHalfUp(t.Charge, 2)
	t.Paid = RoundHalfUp(t.Paid, 2)
	t.ThirdParty = RoundHalfUp(t.ThirdParty, 2)
	t.PatientResp = RoundHalfUp(t.PatientResp, 2)
	t.Adjustments = RoundHalfUp(t.Charge-t.Paid, 2)
	return t
}

// SumValues adds loosely typed values with Coerce
func SumValues(values []any) float64 {
	var sum float64
	for _, v := range values {
		sum += Coerce(v)
	}
	return sum
}

// Coerce turns any cell value into a number. Missing values, unparsable
// strings, NaN and unknown types all count as zero.
func Coerce(v any) float64 {
	var n float64
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		n = t
	case *float64:
		if t == nil {
			return 0
		}
		n = *t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int8:
		n = float64(t)
	case int16:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case uint:
		n = float64(t)
	case uint32:
		n = float64(t)
	case uint64:
		n = float64(t)
	case string:
		n = parseLeadingFloat(t)
	case []byte:
		n = parseLeadingFloat(string(t))
	default:
		return 0
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// parseLeadingFloat reads the longest numeric prefix of s, matching the
// permissive parsing that legacy text columns were written with.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		if n, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return n
		}
		end--
	}
	return 0
}
