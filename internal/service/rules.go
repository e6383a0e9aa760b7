package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/repository"
)

// Rule identifiers
const (
	RuleAccountRequired    = "account_required"
	RulePaidAmountRequired = "paid_amount_required"
	RuleHighValueLineItem  = "high_value_line_item"
	RuleDuplicateProcedure = "duplicate_procedures"
	RuleLargeTotalBill     = "large_total_bill"
)

// RuleConfig holds the thresholds of the built-in rules
type RuleConfig struct {
	HighValueThreshold  float64
	LargeTotalThreshold float64
}

// DefaultRuleConfig returns the stock thresholds
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{HighValueThreshold: 5000, LargeTotalThreshold: 10000}
}

// RulesValidator evaluates the built-in billing rules against a bill's
// persisted line items
type RulesValidator struct {
	bills  repository.BillRepository
	lines  repository.LineItemRepository
	cfg    RuleConfig
	logger *zap.Logger
}

// NewRulesValidator creates a validator over the bill and line repositories
func NewRulesValidator(bills repository.BillRepository, lines repository.LineItemRepository, cfg RuleConfig, logger *zap.Logger) *RulesValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RulesValidator{bills: bills, lines: lines, cfg: cfg, logger: logger.Named("rules")}
}

// Validate loads the bill and runs every rule
func (v *RulesValidator) Validate(ctx context.Context, billID string) (domain.ValidationResult, error) {
	bill, err := v.bills.GetByID(ctx, billID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("failed to load bill: %w", err)
	}
	items, err := v.lines.ListByBill(ctx, billID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("failed to load line items: %w", err)
	}

	res := Evaluate(bill.Stage, items, v.cfg)
	v.logger.Debug("bill validated",
		zap.String("bill_id", billID),
		zap.Bool("can_proceed", res.CanProceed),
		zap.Int("passed", len(res.PassedRules)),
	)
	return res, nil
}

// Evaluate runs the rules over items without touching storage
func Evaluate(stage domain.Stage, items []domain.LineItem, cfg RuleConfig) domain.ValidationResult {
	res := domain.ValidationResult{
		BCNLevel:            make([]domain.Finding, 0),
		ChargeLevel:         make([]domain.Finding, 0),
		LineItem:            make([]domain.Finding, 0),
		RelationalIntegrity: make([]domain.Finding, 0),
		Warnings:            make([]domain.Finding, 0),
	}

	failed := make(map[string]bool)
	add := func(list *[]domain.Finding, f domain.Finding) {
		*list = append(*list, f)
		failed[f.RuleID] = true
	}

	missingAccount := make([]int, 0)
	missingPaid := make([]int, 0)
	for _, item := range items {
		f := item.Fields
		if strings.TrimSpace(f.Account) == "" {
			missingAccount = append(missingAccount, item.LineNumber)
		}
		if stage == domain.StageBillReview && (f.ApprovedAmount == nil || *f.ApprovedAmount == 0) {
			missingPaid = append(missingPaid, item.LineNumber)
		}
		if f.Charge != nil && *f.Charge > cfg.HighValueThreshold {
			add(&res.ChargeLevel, domain.Finding{
				RuleID:        RuleHighValueLineItem,
				RuleName:      "High value line item",
				Severity:      domain.SeverityWarning,
				Message:       fmt.Sprintf("Line %d charge %s exceeds %s", item.LineNumber, domain.FormatMoney(*f.Charge), domain.FormatMoney(cfg.HighValueThreshold)),
				AffectedLines: []int{item.LineNumber},
			})
		}

		res.TotalCharge += value(f.Charge)
		res.TotalApproved += value(f.ApprovedAmount) + value(f.ThirdParty) + value(f.PatientResp) + value(f.OtherInsPaid)
	}

	if len(missingAccount) > 0 {
		add(&res.LineItem, domain.Finding{
			RuleID:        RuleAccountRequired,
			RuleName:      "Account required",
			Severity:      domain.SeverityError,
			Message:       "Account is required on every line item",
			AffectedLines: missingAccount,
		})
	}
	if len(missingPaid) > 0 {
		add(&res.LineItem, domain.Finding{
			RuleID:        RulePaidAmountRequired,
			RuleName:      "Paid amount required",
			Severity:      domain.SeverityError,
			Message:       "Approved amount is required during bill review",
			AffectedLines: missingPaid,
		})
	}

	for _, group := range duplicateProcedures(items) {
		add(&res.RelationalIntegrity, domain.Finding{
			RuleID:        RuleDuplicateProcedure,
			RuleName:      "Duplicate procedures",
			Severity:      domain.SeverityWarning,
			Message:       fmt.Sprintf("Lines %s bill the same procedure and charge", domain.FormatAffectedLines(group)),
			AffectedLines: group,
		})
	}

	if res.TotalCharge > cfg.LargeTotalThreshold {
		add(&res.Warnings, domain.Finding{
			RuleID:   RuleLargeTotalBill,
			RuleName: "Large total bill",
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("Total charge %s exceeds %s", domain.FormatMoney(res.TotalCharge), domain.FormatMoney(cfg.LargeTotalThreshold)),
		})
	}

	res.PassedRules = make([]string, 0)
	for _, id := range []string{RuleAccountRequired, RulePaidAmountRequired, RuleHighValueLineItem, RuleDuplicateProcedure, RuleLargeTotalBill} {
		if !failed[id] {
			res.PassedRules = append(res.PassedRules, id)
		}
	}

	res.CanProceed = true
	for _, cat := range res.Categories() {
		for _, f := range cat {
			if f.Severity == domain.SeverityError {
				res.CanProceed = false
			}
		}
	}

	return res
}

// duplicateProcedures groups line numbers sharing procedure code and charge
func duplicateProcedures(items []domain.LineItem) [][]int {
	type key struct {
		code   string
		charge float64
	}
	groups := make(map[key][]int)
	order := make([]key, 0)
	for _, item := range items {
		code := strings.TrimSpace(item.Fields.ProcedureCode)
		if code == "" || item.Fields.Charge == nil {
			continue
		}
		k := key{code: code, charge: *item.Fields.Charge}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item.LineNumber)
	}

	out := make([][]int, 0)
	for _, k := range order {
		if lines := groups[k]; len(lines) > 1 {
			sort.Ints(lines)
			out = append(out, lines)
		}
	}
	return out
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
