package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/andy/billgrid/internal/domain"
)

// ValidationMarkdown renders a validation result as a markdown report
func ValidationMarkdown(bill *domain.Bill, res domain.ValidationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Validation: %s\n\n", bill.Number)
	fmt.Fprintf(&b, "**Stage:** %s  \n", bill.Stage.Label())
	fmt.Fprintf(&b, "**Total charge:** %s  \n", domain.FormatMoney(res.TotalCharge))
	fmt.Fprintf(&b, "**Total approved:** %s\n\n", domain.FormatMoney(res.TotalApproved))

	if res.CanProceed {
		b.WriteString("> Bill can proceed to adjudication.\n\n")
	} else {
		b.WriteString("> Bill has errors that block adjudication.\n\n")
	}

	sections := []struct {
		title    string
		findings []domain.Finding
	}{
		{"Bill level", res.BCNLevel},
		{"Charge level", res.ChargeLevel},
		{"Line items", res.LineItem},
		{"Relational integrity", res.RelationalIntegrity},
		{"Warnings", res.Warnings},
	}
	for _, s := range sections {
		if len(s.findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", s.title)
		b.WriteString("| Severity | Rule | Lines | Message |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, f := range s.findings {
			lines := domain.FormatAffectedLines(f.AffectedLines)
			if lines == "" {
				lines = "-"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Severity, f.RuleName, lines, escapeCell(f.Message))
		}
		b.WriteString("\n")
	}

	if len(res.PassedRules) > 0 {
		b.WriteString("## Passed\n\n")
		for _, r := range res.PassedRules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	return b.String()
}

var (
	rendererMu sync.Mutex
	renderers  = map[string]*glamour.TermRenderer{}
)

// RenderMarkdown renders md for the terminal with a fixed style. Renderers
// are cached per style and width.
func RenderMarkdown(md, style string, width int) (string, error) {
	if width < 20 {
		width = 20
	}
	if style == "" {
		style = "dark"
	}
	key := fmt.Sprintf("%s:%d", style, width)

	rendererMu.Lock()
	r, ok := renderers[key]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			rendererMu.Unlock()
			return "", fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		renderers[key] = r
	}
	rendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
