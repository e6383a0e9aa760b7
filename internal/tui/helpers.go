package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billgrid/internal/domain"
)

// truncateStr truncates a string to the specified length with ellipsis
func truncateStr(s string, maxLen int) string {
	if lipgloss.Width(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// fit pads or truncates s to exactly width cells
func fit(s string, width int) string {
	s = truncateStr(s, width)
	if pad := width - lipgloss.Width(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

// fitRight is fit with the text aligned right
func fitRight(s string, width int) string {
	s = truncateStr(s, width)
	if pad := width - lipgloss.Width(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// describeMatches lists the first few matches and counts the rest
func describeMatches(matches []domain.DuplicateMatch) string {
	const shown = 3
	parts := make([]string, 0, shown+1)
	for i, m := range matches {
		if i == shown {
			parts = append(parts, fmt.Sprintf("%d more", len(matches)-shown))
			break
		}
		parts = append(parts, m.String())
	}
	return strings.Join(parts, ", ")
}
