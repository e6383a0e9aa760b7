package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage is the workflow stage of a bill. The grid is editable in every
// stage except Adjudicated.
type Stage string

const (
	StageKeying      Stage = "keying"
	StageBillReview  Stage = "billReview"
	StageQuoteView   Stage = "quote"
	StageAdjudicated Stage = "adjudicated"
)

// SelectableStages are the stages a user may pick by hand
var SelectableStages = []Stage{StageKeying, StageBillReview, StageQuoteView}

// ParseStage accepts either the stored value or the display label
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keying":
		return StageKeying, nil
	case "billreview", "bill review", "bill-review", "review":
		return StageBillReview, nil
	case "quote", "quote view", "quoteview", "quote-view":
		return StageQuoteView, nil
	case "adjudicated":
		return StageAdjudicated, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Label returns the display label for the stage
func (s Stage) Label() string {
	switch s {
	case StageKeying:
		return "Keying"
	case StageBillReview:
		return "Bill Review"
	case StageQuoteView:
		return "Quote View"
	case StageAdjudicated:
		return "Adjudicated"
	default:
		return string(s)
	}
}

// IsReadOnly reports whether line items are locked in this stage
func (s Stage) IsReadOnly() bool {
	return s == StageAdjudicated
}

// IsSelectable reports whether a user may switch to this stage directly
func (s Stage) IsSelectable() bool {
	for _, st := range SelectableStages {
		if st == s {
			return true
		}
	}
	return false
}

// Bill is the parent document that owns a sequence of line items
type Bill struct {
	ID        string
	Number    string
	Stage     Stage
	CreatedAt time.Time
	UpdatedAt time.Time

	// Populated by the repository when requested
	LineCount   int
	TotalCharge float64
}

// NewBill creates a bill in the Keying stage
func NewBill(number string) *Bill {
	now := time.Now()
	return &Bill{
		Number:    number,
		Stage:     StageKeying,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanEdit returns true if line items on the bill may be modified
func (b *Bill) CanEdit() bool {
	return !b.Stage.IsReadOnly()
}

// Validate returns an error if the bill is invalid
func (b *Bill) Validate() error {
	if strings.TrimSpace(b.Number) == "" {
		return errors.New("bill number is required")
	}
	if _, err := ParseStage(string(b.Stage)); err != nil {
		return err
	}
	return nil
}
