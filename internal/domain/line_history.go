package domain

import "time"

// LineHistory records one persisted field change on a line item
type LineHistory struct {
	ID           int64
	LineItemID   string
	FieldName    string
	OldValue     string
	NewValue     string
	ChangeReason string
	ChangedAt    time.Time
}

// NewLineHistory creates a history record for a field change
func NewLineHistory(lineItemID, fieldName, oldValue, newValue, reason string) *LineHistory {
	return &LineHistory{
		LineItemID:   lineItemID,
		FieldName:    fieldName,
		OldValue:     oldValue,
		NewValue:     newValue,
		ChangeReason: reason,
		ChangedAt:    time.Now(),
	}
}
