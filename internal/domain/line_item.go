package domain

import (
	"strings"
	"time"
)

// Reserved row identities that are never persisted
const (
	DraftID   = "DRAFT"
	PendingID = "PENDING"
)

// IsSentinelID reports whether id is one of the reserved placeholder ids
func IsSentinelID(id string) bool {
	return id == DraftID || id == PendingID
}

// ValidationStatus is the per-row outcome of the last validation pass
type ValidationStatus string

const (
	StatusValid   ValidationStatus = "valid"
	StatusWarning ValidationStatus = "warning"
	StatusError   ValidationStatus = "error"
)

// MedicareStatus records the reviewer's Medicare coverage call for a line
type MedicareStatus string

const (
	MedicareDiscretion MedicareStatus = "Discretion"
	MedicareNo         MedicareStatus = "No"
	MedicareReview     MedicareStatus = "Review"
	MedicareTBD        MedicareStatus = "TBD"
	MedicareYes        MedicareStatus = "Yes"
)

// MedicareStatuses lists the accepted values in display order
var MedicareStatuses = []MedicareStatus{MedicareDiscretion, MedicareNo, MedicareReview, MedicareTBD, MedicareYes}

// LineFields is the persisted payload of a line item. Amounts are pointers
// so an empty cell stays distinguishable from zero.
type LineFields struct {
	ServiceStartDate string
	ServiceEndDate   string
	RevenueCode      string
	PlaceOfService   string
	ProcedureCode    string
	Modifier         string
	RemarkCode1      string
	RemarkCode2      string
	RemarkCode3      string
	RemarkCode4      string
	Quantity         *float64
	Description      string
	Charge           *float64
	OtherInsAllowed  *float64
	OtherInsPaid     *float64
	ApprovedAmount   *float64
	ThirdParty       *float64
	PatientResp      *float64
	Account          string
	MedicareStatus   MedicareStatus
}

// RowValidation is the display state produced by the validation mapper
type RowValidation struct {
	Status   ValidationStatus
	Errors   []Finding
	Warnings []Finding
}

// Computed holds render-only projections. It is never sent to persistence.
type Computed struct {
	StartDate     string
	EndDate       string
	Charge        string
	Approved      string
	ThirdParty    string
	PatientResp   string
	Tooltip       string
	MedicareClass string
	Duplicate     string
}

// LineItem is one billable service entry in the grid
type LineItem struct {
	ID         string
	BillID     string
	LineNumber int
	Fields     LineFields
	IsDraft    bool
	Selected   bool
	Computed   Computed
	Validation RowValidation
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Set on load from matching lines on other bills
	Duplicate DuplicateStatus
	Matches   []DuplicateMatch

	// ticket distinguishes concurrent pending rows that share PendingID
	ticket uint64
}

// NewDraft returns an empty draft row for the given bill
func NewDraft(billID string) LineItem {
	return LineItem{
		ID:         DraftID,
		BillID:     billID,
		IsDraft:    true,
		Fields:     LineFields{MedicareStatus: MedicareTBD},
		Validation: RowValidation{Status: StatusValid},
	}
}

// NewPending returns a transient row holding a captured draft snapshot
func NewPending(billID string, fields LineFields, ticket uint64) LineItem {
	return LineItem{
		ID:         PendingID,
		BillID:     billID,
		Fields:     fields,
		Validation: RowValidation{Status: StatusValid},
		ticket:     ticket,
	}
}

// Ticket returns the promotion ticket of a pending row, zero otherwise
func (li LineItem) Ticket() uint64 {
	return li.ticket
}

// IsSentinel reports whether the row is a draft or pending placeholder
func (li LineItem) IsSentinel() bool {
	return li.IsDraft || IsSentinelID(li.ID)
}

// IsPending reports whether the row is mid-creation
func (li LineItem) IsPending() bool {
	return li.ID == PendingID
}

// HasAnyData reports whether any meaningful field carries a value
func (f LineFields) HasAnyData() bool {
	for _, field := range DataFields {
		if !field.Spec().Blank(&f) {
			return true
		}
	}
	return false
}

// Patch is one record in a batch update. Values always carries the complete
// record; Fields names the columns the store should write. A positive
// LineNumber moves the row.
type Patch struct {
	ID         string
	Fields     []Field
	Values     LineFields
	LineNumber int
	Reason     string
}

// Touches reports whether the patch writes the given field
func (p Patch) Touches(f Field) bool {
	for _, pf := range p.Fields {
		if pf == f {
			return true
		}
	}
	return false
}

func isBlankString(s string) bool {
	return strings.TrimSpace(s) == ""
}
