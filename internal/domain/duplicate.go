package domain

import (
	"fmt"
	"math"
	"strings"
)

// DuplicateStatus flags a line item that may already be billed elsewhere
type DuplicateStatus string

const (
	DuplicateNone      DuplicateStatus = ""
	DuplicatePotential DuplicateStatus = "Potential"
	DuplicateExact     DuplicateStatus = "Exact"
)

// Label returns the display label, empty for DuplicateNone
func (s DuplicateStatus) Label() string {
	switch s {
	case DuplicatePotential:
		return "Potential Duplicate"
	case DuplicateExact:
		return "Exact Duplicate"
	}
	return ""
}

// DuplicateMatch is a line item on another bill with the same procedure
// code and service start date
type DuplicateMatch struct {
	LineID     string
	BillID     string
	BillNumber string
	LineNumber int
	Charge     *float64
}

func (m DuplicateMatch) String() string {
	return fmt.Sprintf("%s line %d", m.BillNumber, m.LineNumber)
}

// ClassifyDuplicate grades a row against its matches. A match with the
// same charge makes it exact; a row without a charge is never exact.
func ClassifyDuplicate(charge *float64, matches []DuplicateMatch) DuplicateStatus {
	if len(matches) == 0 {
		return DuplicateNone
	}
	if charge != nil {
		for _, m := range matches {
			if m.Charge != nil && sameCents(*charge, *m.Charge) {
				return DuplicateExact
			}
		}
	}
	return DuplicatePotential
}

func sameCents(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

// DuplicateSummary counts the flagged rows of one bill
type DuplicateSummary struct {
	TotalLineItems int
	Exact          int
	Potential      int
}

// Summarize counts the duplicate flags of the persisted rows
func Summarize(rows []LineItem) DuplicateSummary {
	var s DuplicateSummary
	for _, r := range rows {
		if r.IsSentinel() {
			continue
		}
		s.TotalLineItems++
		switch r.Duplicate {
		case DuplicateExact:
			s.Exact++
		case DuplicatePotential:
			s.Potential++
		}
	}
	return s
}

// HasWarnings reports whether any row is flagged
func (s DuplicateSummary) HasWarnings() bool {
	return s.Exact+s.Potential > 0
}

// Message is the one-line summary shown with the bill
func (s DuplicateSummary) Message() string {
	if !s.HasWarnings() {
		return fmt.Sprintf("No duplicates found across %d line item(s)", s.TotalLineItems)
	}
	parts := make([]string, 0, 2)
	if s.Exact > 0 {
		parts = append(parts, plural(s.Exact, "exact match", "exact matches"))
	}
	if s.Potential > 0 {
		parts = append(parts, plural(s.Potential, "potential match", "potential matches"))
	}
	return fmt.Sprintf("%s in %d line item(s)", strings.Join(parts, " and "), s.TotalLineItems)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
