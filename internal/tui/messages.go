package tui

import "github.com/andy/billgrid/internal/domain"

// SwitchScreenMsg requests a screen change
type SwitchScreenMsg struct {
	Screen Screen
}

// RefreshDataMsg requests data refresh
type RefreshDataMsg struct{}

// ErrorMsg carries error information
type ErrorMsg struct {
	Err error
}

// OpenBillMsg opens a bill in the grid screen
type OpenBillMsg struct {
	Bill *domain.Bill
}

// OpenImportFormMsg tells the codes screen to open the import form
type OpenImportFormMsg struct{}

// firstRunCheckMsg reports whether the code catalogue has any entries
type firstRunCheckMsg struct {
	hasCodes bool
}
