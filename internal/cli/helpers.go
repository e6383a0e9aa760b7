package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/grid"
)

// noticePrinter prints controller notices and remembers the failures so a
// command can exit non-zero
type noticePrinter struct {
	quiet  bool
	failed []string
}

func (p *noticePrinter) Notify(n grid.Notice) {
	if n.Level == grid.NoticeError {
		p.failed = append(p.failed, n.Message)
	}
	if p.quiet && n.Level == grid.NoticeSuccess {
		return
	}
	symbol := "•"
	switch n.Level {
	case grid.NoticeSuccess:
		symbol = "✓"
	case grid.NoticeWarning:
		symbol = "!"
	case grid.NoticeError:
		symbol = "✗"
	}
	fmt.Printf("%s %s\n", symbol, n.Message)
}

func (p *noticePrinter) err() error {
	if len(p.failed) == 0 {
		return nil
	}
	return errors.New(strings.Join(p.failed, "; "))
}

// openGrid resolves a bill and returns a loaded controller for it
func openGrid(ctx context.Context, ref string, notices *noticePrinter) (*domain.Bill, *grid.Controller, error) {
	bill, err := appInstance.BillService.ResolveBill(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve bill: %w", err)
	}

	c, err := appInstance.NewGrid(ctx, bill.ID, notices)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open grid: %w", err)
	}
	c.Drive(c.Load())
	if err := notices.err(); err != nil {
		c.Close()
		return nil, nil, err
	}
	return bill, c, nil
}

// resolveLine finds a persisted row by id or line number
func resolveLine(c *grid.Controller, ref string) (domain.LineItem, error) {
	for _, r := range c.Rows() {
		if r.IsSentinel() {
			continue
		}
		if r.ID == ref || fmt.Sprint(r.LineNumber) == ref {
			return r, nil
		}
	}
	return domain.LineItem{}, fmt.Errorf("line %q not found", ref)
}

// parseAssignments turns field=value arguments into ordered pairs
func parseAssignments(args []string) ([]domain.Field, []string, error) {
	fields := make([]domain.Field, 0, len(args))
	values := make([]string, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		f, err := domain.ParseField(name)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, f)
		values = append(values, value)
	}
	return fields, values, nil
}

func printFooter(t grid.Totals) {
	fmt.Printf("\nLines: %d  Charge: %s  Paid: %s  Adjustments: %s  Third party: %s  Patient: %s\n",
		t.Lines,
		domain.FormatMoney(t.Charge),
		domain.FormatMoney(t.Paid),
		domain.FormatMoney(t.Adjustments),
		domain.FormatMoney(t.ThirdParty),
		domain.FormatMoney(t.PatientResp),
	)
}

func confirmPrompt(message string) bool {
	fmt.Printf("%s [y/N] ", message)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
