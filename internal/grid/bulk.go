package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andy/billgrid/internal/domain"
)

var (
	ErrInvalidScope     = errors.New("invalid bulk scope")
	ErrNotPaymentField  = errors.New("field does not accept payment operations")
	ErrInvalidPercent   = errors.New("percentage must be between 0 and 100")
	ErrNegativeAmount   = errors.New("fixed amount cannot be negative")
	ErrNoTargets        = errors.New("no rows to update")
	ErrInvalidOperation = errors.New("invalid payment operation")
)

// ScopeKind selects which rows a bulk operation targets
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeBlank
	ScopeFollowing
)

// Scope is a bulk targeting rule. Count is only used by ScopeFollowing and
// includes the anchor row.
type Scope struct {
	Kind  ScopeKind
	Count int
}

// All targets every persisted row
func All() Scope { return Scope{Kind: ScopeAll} }

// Blank targets rows whose field is empty
func Blank() Scope { return Scope{Kind: ScopeBlank} }

// Following targets the anchor row and the next n-1 rows
func Following(n int) Scope { return Scope{Kind: ScopeFollowing, Count: n} }

// ParseScope accepts all, blank or following (with a count)
func ParseScope(s string, count int) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "allrows", "all-rows":
		return All(), nil
	case "blank", "blankrows", "blank-rows":
		return Blank(), nil
	case "following", "followingrows", "following-rows", "next":
		return Following(count), nil
	}
	return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeAll:
		return "all rows"
	case ScopeBlank:
		return "blank rows"
	case ScopeFollowing:
		return fmt.Sprintf("%d following rows", s.Count)
	}
	return "unknown scope"
}

func (s Scope) validate(limit int) error {
	switch s.Kind {
	case ScopeAll, ScopeBlank:
		return nil
	case ScopeFollowing:
		if s.Count < 1 {
			return fmt.Errorf("%w: row count must be at least 1", ErrInvalidScope)
		}
		if limit > 0 && s.Count > limit {
			return fmt.Errorf("%w: maximum %d rows allowed", ErrInvalidScope, limit)
		}
		return nil
	}
	return ErrInvalidScope
}

// PaymentKind is the payment calculation family
type PaymentKind int

const (
	PaymentPercentage PaymentKind = iota
	PaymentFixedAmount
)

// PaymentOp computes a payment value per row
type PaymentOp struct {
	Kind  PaymentKind
	Value float64
}

// Percentage pays p percent of each row's charge
func Percentage(p float64) PaymentOp { return PaymentOp{Kind: PaymentPercentage, Value: p} }

// FixedAmount pays the same amount on each row
func FixedAmount(a float64) PaymentOp { return PaymentOp{Kind: PaymentFixedAmount, Value: a} }

// Validate enforces the allowed ranges
func (o PaymentOp) Validate() error {
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return ErrInvalidOperation
	}
	switch o.Kind {
	case PaymentPercentage:
		if o.Value < 0 || o.Value > 100 {
			return ErrInvalidPercent
		}
	case PaymentFixedAmount:
		if o.Value < 0 {
			return ErrNegativeAmount
		}
	default:
		return ErrInvalidOperation
	}
	return nil
}

// Apply returns the new value for a row with the given charge
func (o PaymentOp) Apply(charge float64) float64 {
	if o.Kind == PaymentPercentage {
		return RoundHalfUp(charge*o.Value/100, 2)
	}
	return RoundHalfUp(o.Value, 2)
}

func (o PaymentOp) String() string {
	if o.Kind == PaymentPercentage {
		return strconv.FormatFloat(o.Value, 'f', -1, 64) + "%"
	}
	return domain.FormatMoney(o.Value)
}

// RoundHalfUp rounds to the given decimal places with halves going away
// from zero. Input is fixed to 9 decimals first, so 1.005 rounds to 1.01.
func RoundHalfUp(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	fixed, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 9, 64), 64)
	if err != nil {
		fixed = v
	}
	scale := math.Pow(10, float64(places))
	scaled, err := strconv.ParseFloat(strconv.FormatFloat(fixed*scale, 'f', 6, 64), 64)
	if err != nil {
		scaled = fixed * scale
	}
	if scaled < 0 {
		return -math.Floor(-scaled+0.5) / scale
	}
	return math.Floor(scaled+0.5) / scale
}

// Targets resolves the persisted rows a scope selects. blank decides
// whether a row counts as empty for ScopeBlank.
func Targets(rows []domain.LineItem, scope Scope, anchorID string, blank func(domain.LineItem) bool) []domain.LineItem {
	persisted := make([]domain.LineItem, 0, len(rows))
	for _, r := range rows {
		if !r.IsSentinel() {
			persisted = append(persisted, r)
		}
	}

	switch scope.Kind {
	case ScopeAll:
		return persisted
	case ScopeBlank:
		out := make([]domain.LineItem, 0)
		for _, r := range persisted {
			if blank(r) {
				out = append(out, r)
			}
		}
		return out
	case ScopeFollowing:
		for i, r := range persisted {
			if r.ID == anchorID {
				end := min(i+scope.Count, len(persisted))
				return persisted[i:end]
			}
		}
	}
	return nil
}

// PlanAssignment builds the batch that writes value into field on every
// targeted row. Nothing is mutated; the caller decides what to do with the
// patches.
func PlanAssignment(rows []domain.LineItem, field domain.Field, value any, scope Scope, anchorID string, partial bool) ([]domain.Patch, error) {
	if !field.Valid() {
		return nil, domain.ErrUnknownField
	}
	spec := field.Spec()
	if err := spec.Validate(value); err != nil {
		return nil, err
	}
	targets := Targets(rows, scope, anchorID, func(r domain.LineItem) bool {
		return spec.Blank(&r.Fields)
	})
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	patches := make([]domain.Patch, 0, len(targets))
	for _, r := range targets {
		values := r.Fields
		if err := spec.Set(&values, value); err != nil {
			return nil, err
		}
		patches = append(patches, newPatch(r.ID, values, partial, field))
	}
	return patches, nil
}

// PlanPayment builds the batch for a percentage or fixed-amount payment
// operation. A row is blank for payment purposes when its current value
// coerces to zero.
func PlanPayment(rows []domain.LineItem, field domain.Field, op PaymentOp, scope Scope, anchorID string, partial bool) ([]domain.Patch, error) {
	if !field.IsPayment() {
		return nil, fmt.Errorf("%w: %s", ErrNotPaymentField, field)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	spec := field.Spec()
	targets := Targets(rows, scope, anchorID, func(r domain.LineItem) bool {
		return Coerce(spec.Get(&r.Fields)) == 0
	})
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	patches := make([]domain.Patch, 0, len(targets))
	for _, r := range targets {
		values := r.Fields
		charge := Coerce(domain.FieldCharge.Spec().Get(&r.Fields))
		if err := spec.Set(&values, op.Apply(charge)); err != nil {
			return nil, err
		}
		patches = append(patches, newPatch(r.ID, values, partial, field))
	}
	return patches, nil
}

func newPatch(id string, values domain.LineFields, partial bool, touched ...domain.Field) domain.Patch {
	fields := domain.AllFields
	if partial {
		fields = touched
	}
	return domain.Patch{ID: id, Fields: fields, Values: values}
}
