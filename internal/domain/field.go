package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field is the closed set of editable line item fields
type Field int

const (
	FieldServiceStartDate Field = iota
	FieldServiceEndDate
	FieldRevenueCode
	FieldPlaceOfService
	FieldProcedureCode
	FieldModifier
	FieldRemarkCode1
	FieldRemarkCode2
	FieldRemarkCode3
	FieldRemarkCode4
	FieldQuantity
	FieldDescription
	FieldCharge
	FieldOtherInsAllowed
	FieldOtherInsPaid
	FieldApprovedAmount
	FieldThirdParty
	FieldPatientResp
	FieldAccount
	FieldMedicareStatus

	fieldCount
)

// Kind groups fields by value representation
type Kind int

const (
	KindDate Kind = iota
	KindCode
	KindText
	KindQuantity
	KindCurrency
	KindAccount
	KindStatus
)

// Code type namespaces used by the code catalogue
const (
	CodeTypeRevenue    = "RevenueCodes"
	CodeTypePOS        = "POS"
	CodeTypeHCPCS      = "HCPCS"
	CodeTypeNDC        = "NDC Products"
	CodeTypeCPTRVU     = "CPT RVU"
	CodeTypeBillRemark = "BillRemarkCodes"
	CodeTypeModifier   = "Modifiers"
)

// Description cache namespaces
const (
	NamespacePOS       = "PlaceOfService"
	NamespaceProcedure = "Procedure"
	NamespaceRemark    = "Remark"
	NamespaceRevenue   = "Revenue"
	NamespaceModifier  = "Modifier"
)

const (
	maxCodeLength       = 32
	maxFreeTextLength   = 255
	dateLayoutISO       = "2006-01-02"
	dateLayoutUS        = "01/02/2006"
	invalidValueMessage = "invalid value for %s: %w"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrWrongType    = errors.New("unsupported value type")
	ErrNegative     = errors.New("value cannot be negative")
	ErrNotFinite    = errors.New("value must be a finite number")
	ErrTooLong      = errors.New("value is too long")
	ErrBadDate      = errors.New("date must be YYYY-MM-DD or MM/DD/YYYY")
	ErrBadStatus    = errors.New("unknown medicare status")
)

// FieldSpec is one row of the field dispatch table
type FieldSpec struct {
	Field     Field
	Name      string
	Column    string
	Label     string
	Kind      Kind
	CodeTypes []string
	Namespace string
	// AllowCustom allows codes that are not in the catalogue
	AllowCustom bool

	str func(*LineFields) *string
	amt func(*LineFields) **float64
}

var fieldSpecs [fieldCount]FieldSpec

func strField(f Field, name, label string, kind Kind, ref func(*LineFields) *string) {
	fieldSpecs[f] = FieldSpec{Field: f, Name: name, Column: name, Label: label, Kind: kind, str: ref}
}

func amtField(f Field, name, label string, kind Kind, ref func(*LineFields) **float64) {
	fieldSpecs[f] = FieldSpec{Field: f, Name: name, Column: name, Label: label, Kind: kind, amt: ref}
}

func init() {
	strField(FieldServiceStartDate, "service_start_date", "Service Start", KindDate, func(l *LineFields) *string { return &l.ServiceStartDate })
	strField(FieldServiceEndDate, "service_end_date", "Service End", KindDate, func(l *LineFields) *string { return &l.ServiceEndDate })
	strField(FieldRevenueCode, "revenue_code", "Revenue Code", KindCode, func(l *LineFields) *string { return &l.RevenueCode })
	strField(FieldPlaceOfService, "place_of_service", "Place of Service", KindCode, func(l *LineFields) *string { return &l.PlaceOfService })
	strField(FieldProcedureCode, "procedure_code", "CPT/HCPCS/NDC", KindCode, func(l *LineFields) *string { return &l.ProcedureCode })
	strField(FieldModifier, "modifier", "Modifier", KindCode, func(l *LineFields) *string { return &l.Modifier })
	strField(FieldRemarkCode1, "remark_code_1", "Remark Code 1", KindCode, func(l *LineFields) *string { return &l.RemarkCode1 })
	strField(FieldRemarkCode2, "remark_code_2", "Remark Code 2", KindCode, func(l *LineFields) *string { return &l.RemarkCode2 })
	strField(FieldRemarkCode3, "remark_code_3", "Remark Code 3", KindCode, func(l *LineFields) *string { return &l.RemarkCode3 })
	strField(FieldRemarkCode4, "remark_code_4", "Remark Code 4", KindCode, func(l *LineFields) *string { return &l.RemarkCode4 })
	amtField(FieldQuantity, "quantity", "Qty", KindQuantity, func(l *LineFields) **float64 { return &l.Quantity })
	strField(FieldDescription, "description", "Description", KindText, func(l *LineFields) *string { return &l.Description })
	amtField(FieldCharge, "charge", "Charge", KindCurrency, func(l *LineFields) **float64 { return &l.Charge })
	amtField(FieldOtherInsAllowed, "other_ins_allowed", "Other Ins Allowed", KindCurrency, func(l *LineFields) **float64 { return &l.OtherInsAllowed })
	amtField(FieldOtherInsPaid, "other_ins_paid", "Other Ins Paid", KindCurrency, func(l *LineFields) **float64 { return &l.OtherInsPaid })
	amtField(FieldApprovedAmount, "approved_amount", "Approved", KindCurrency, func(l *LineFields) **float64 { return &l.ApprovedAmount })
	amtField(FieldThirdParty, "third_party", "3rd Party", KindCurrency, func(l *LineFields) **float64 { return &l.ThirdParty })
	amtField(FieldPatientResp, "patient_responsibility", "Patient Resp", KindCurrency, func(l *LineFields) **float64 { return &l.PatientResp })
	strField(FieldAccount, "account", "Account", KindAccount, func(l *LineFields) *string { return &l.Account })
	strField(FieldMedicareStatus, "medicare_status", "Medicare", KindStatus, func(l *LineFields) *string {
		return (*string)(&l.MedicareStatus)
	})

	code := func(f Field, ns string, custom bool, types ...string) {
		fieldSpecs[f].CodeTypes = types
		fieldSpecs[f].Namespace = ns
		fieldSpecs[f].AllowCustom = custom
	}
	code(FieldRevenueCode, NamespaceRevenue, false, CodeTypeRevenue)
	code(FieldPlaceOfService, NamespacePOS, false, CodeTypePOS)
	code(FieldProcedureCode, NamespaceProcedure, true, CodeTypeHCPCS, CodeTypeNDC, CodeTypeCPTRVU)
	code(FieldModifier, NamespaceModifier, false, CodeTypeModifier)
	for _, f := range []Field{FieldRemarkCode1, FieldRemarkCode2, FieldRemarkCode3, FieldRemarkCode4} {
		code(f, NamespaceRemark, false, CodeTypeBillRemark)
	}
}

// AllFields lists every field in display order
var AllFields = func() []Field {
	out := make([]Field, 0, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		out = append(out, f)
	}
	return out
}()

// DataFields are the fields whose content makes a draft row worth saving
var DataFields = func() []Field {
	out := make([]Field, 0, fieldCount)
	for _, f := range AllFields {
		if f != FieldMedicareStatus {
			out = append(out, f)
		}
	}
	return out
}()

// CodeFields are the fields backed by the code catalogue
var CodeFields = []Field{
	FieldRevenueCode, FieldPlaceOfService, FieldProcedureCode, FieldModifier,
	FieldRemarkCode1, FieldRemarkCode2, FieldRemarkCode3, FieldRemarkCode4,
}

// PaymentFields accept percentage and fixed-amount bulk assignment
var PaymentFields = []Field{FieldApprovedAmount, FieldThirdParty, FieldPatientResp}

// Spec returns the dispatch table entry for f
func (f Field) Spec() FieldSpec {
	if f < 0 || f >= fieldCount {
		return FieldSpec{Field: f, Name: "unknown"}
	}
	return fieldSpecs[f]
}

// String returns the field name
func (f Field) String() string {
	return f.Spec().Name
}

// Valid reports whether f is a member of the closed field set
func (f Field) Valid() bool {
	return f >= 0 && f < fieldCount
}

// IsCode reports whether the field is backed by the code catalogue
func (f Field) IsCode() bool {
	return f.Spec().Kind == KindCode
}

// IsPayment reports whether the field accepts payment bulk operations
func (f Field) IsPayment() bool {
	for _, p := range PaymentFields {
		if p == f {
			return true
		}
	}
	return false
}

var fieldAliases = map[string]Field{
	"start":      FieldServiceStartDate,
	"end":        FieldServiceEndDate,
	"revenue":    FieldRevenueCode,
	"pos":        FieldPlaceOfService,
	"cpt":        FieldProcedureCode,
	"hcpcs":      FieldProcedureCode,
	"procedure":  FieldProcedureCode,
	"remark1":    FieldRemarkCode1,
	"remark2":    FieldRemarkCode2,
	"remark3":    FieldRemarkCode3,
	"remark4":    FieldRemarkCode4,
	"qty":        FieldQuantity,
	"approved":   FieldApprovedAmount,
	"paid":       FieldApprovedAmount,
	"thirdparty": FieldThirdParty,
	"patient":    FieldPatientResp,
	"medicare":   FieldMedicareStatus,
}

// ParseField resolves a field by name or short alias
func ParseField(name string) (Field, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for _, f := range AllFields {
		if fieldSpecs[f].Name == n {
			return f, nil
		}
	}
	if f, ok := fieldAliases[strings.ReplaceAll(n, "_", "")]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Get returns the field value: string for text kinds, float64 or nil for
// numeric kinds. The result is comparable with ==.
func (s FieldSpec) Get(l *LineFields) any {
	switch {
	case s.str != nil:
		return *s.str(l)
	case s.amt != nil:
		p := *s.amt(l)
		if p == nil {
			return nil
		}
		return *p
	}
	return nil
}

// Set validates v and writes it into l. Numeric fields always receive a
// freshly allocated pointer so copies of l never alias.
func (s FieldSpec) Set(l *LineFields, v any) error {
	norm, err := s.Normalize(v)
	if err != nil {
		return err
	}
	switch {
	case s.str != nil:
		*s.str(l) = norm.(string)
	case s.amt != nil:
		if norm == nil {
			*s.amt(l) = nil
			return nil
		}
		n := norm.(float64)
		*s.amt(l) = &n
	default:
		return fmt.Errorf("%w: %d", ErrUnknownField, s.Field)
	}
	return nil
}

// Validate reports whether v is acceptable for the field
func (s FieldSpec) Validate(v any) error {
	_, err := s.Normalize(v)
	return err
}

// Normalize converts v into the canonical representation returned by Get
func (s FieldSpec) Normalize(v any) (any, error) {
	if s.str == nil && s.amt == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, s.Field)
	}
	if s.amt != nil {
		n, err := ParseAmount(v)
		if err != nil {
			return nil, fmt.Errorf(invalidValueMessage, s.Name, err)
		}
		if n == nil {
			return nil, nil
		}
		if s.Kind == KindQuantity && *n < 0 {
			return nil, fmt.Errorf(invalidValueMessage, s.Name, ErrNegative)
		}
		return *n, nil
	}

	str, err := toText(v)
	if err != nil {
		return nil, fmt.Errorf(invalidValueMessage, s.Name, err)
	}
	str = strings.TrimSpace(str)
	switch s.Kind {
	case KindDate:
		if str != "" && !isDate(str) {
			return nil, fmt.Errorf(invalidValueMessage, s.Name, ErrBadDate)
		}
	case KindCode:
		if len(str) > maxCodeLength {
			return nil, fmt.Errorf(invalidValueMessage, s.Name, ErrTooLong)
		}
	case KindText, KindAccount:
		if len(str) > maxFreeTextLength {
			return nil, fmt.Errorf(invalidValueMessage, s.Name, ErrTooLong)
		}
	case KindStatus:
		if str == "" {
			return string(MedicareTBD), nil
		}
		for _, st := range MedicareStatuses {
			if strings.EqualFold(string(st), str) {
				return string(st), nil
			}
		}
		return nil, fmt.Errorf(invalidValueMessage, s.Name, ErrBadStatus)
	}
	return str, nil
}

// Blank reports whether the field is empty: nil, or an empty/whitespace
// string. Numeric zero is not blank.
func (s FieldSpec) Blank(l *LineFields) bool {
	switch v := s.Get(l).(type) {
	case nil:
		return true
	case string:
		return isBlankString(v)
	default:
		return false
	}
}

// Format renders the field value as plain text
func (s FieldSpec) Format(l *LineFields) string {
	switch v := s.Get(l).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if s.Kind == KindQuantity {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return ""
}

// ParseAmount converts loosely typed input into an amount. Empty input is
// nil; currency symbols and thousands separators are ignored.
func ParseAmount(v any) (*float64, error) {
	var n float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *float64:
		if t == nil {
			return nil, nil
		}
		n = *t
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case []byte:
		return ParseAmount(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		s = strings.NewReplacer("$", "", ",", "").Replace(s)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", t)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("%w: %T", ErrWrongType, v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrNotFinite
	}
	return &n, nil
}

// Amount is a convenience for building amount pointers
func Amount(v float64) *float64 {
	return &v
}

func toText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case MedicareStatus:
		return string(t), nil
	case []byte:
		return string(t), nil
	case fmt.Stringer:
		return t.String(), nil
	case int, int64, float64:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("%w: %T", ErrWrongType, v)
}

func isDate(s string) bool {
	if _, err := time.Parse(dateLayoutISO, s); err == nil {
		return true
	}
	_, err := time.Parse(dateLayoutUS, s)
	return err == nil
}

// FormatDate renders an ISO date as MM/DD/YYYY; values already containing a
// slash, and values it cannot parse, are returned unchanged.
func FormatDate(s string) string {
	if s == "" || strings.Contains(s, "/") {
		return s
	}
	t, err := time.Parse(dateLayoutISO, s)
	if err != nil {
		return s
	}
	return t.Format(dateLayoutUS)
}
