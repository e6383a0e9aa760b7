package domain

import (
	"strconv"
	"strings"
)

// Severity of a validation finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one unit of validation output tied to one or more lines
type Finding struct {
	RuleID        string
	RuleName      string
	Severity      Severity
	Message       string
	AffectedLines []int
}

// ValidationResult is the categorized output of a validation pass
type ValidationResult struct {
	BCNLevel            []Finding
	ChargeLevel         []Finding
	LineItem            []Finding
	RelationalIntegrity []Finding
	Warnings            []Finding

	CanProceed  bool
	PassedRules []string

	TotalCharge   float64
	TotalApproved float64
}

// Categories returns the four severity-mixed finding lists
func (r ValidationResult) Categories() [][]Finding {
	return [][]Finding{r.BCNLevel, r.ChargeLevel, r.LineItem, r.RelationalIntegrity}
}

// ParseAffectedLines splits a comma separated list of line numbers,
// skipping anything that is not a positive integer.
func ParseAffectedLines(s string) []int {
	out := make([]int, 0)
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// FormatAffectedLines is the inverse of ParseAffectedLines
func FormatAffectedLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, n := range lines {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
