package grid

import (
	"errors"
	"fmt"
	"slices"

	"github.com/andy/billgrid/internal/domain"
)

var (
	ErrRowNotFound = errors.New("row not found")
	ErrSentinelRow = errors.New("operation not allowed on a placeholder row")
)

// Store owns the ordered row collection and the selection set. Rows are
// held by value; every mutation bumps Version so observers can detect
// change without comparing contents.
type Store struct {
	billID    string
	rows      []domain.LineItem
	index     map[string]int
	selection map[string]struct{}
	version   uint64
	derive    func(*domain.LineItem)
}

// NewStore creates a store holding only an empty draft row
func NewStore(billID string) *Store {
	s := &Store{
		billID:    billID,
		index:     make(map[string]int),
		selection: make(map[string]struct{}),
		derive:    func(*domain.LineItem) {},
	}
	s.rows = []domain.LineItem{domain.NewDraft(billID)}
	s.reindex()
	return s
}

// SetDeriver installs the function that recomputes render-only fields
// whenever a row is written.
func (s *Store) SetDeriver(fn func(*domain.LineItem)) {
	if fn == nil {
		fn = func(*domain.LineItem) {}
	}
	s.derive = fn
	s.Rederive()
}

// Version returns the mutation counter
func (s *Store) Version() uint64 {
	return s.version
}

// BillID returns the parent bill of the collection
func (s *Store) BillID() string {
	return s.billID
}

// Len returns the number of rows including placeholders
func (s *Store) Len() int {
	return len(s.rows)
}

// Rows returns a snapshot of the collection in display order
func (s *Store) Rows() []domain.LineItem {
	return slices.Clone(s.rows)
}

// Real returns the persisted rows in display order
func (s *Store) Real() []domain.LineItem {
	out := make([]domain.LineItem, 0, len(s.rows))
	for _, r := range s.rows {
		if !r.IsSentinel() {
			out = append(out, r)
		}
	}
	return out
}

// Get returns a row by id. The draft is addressable by DraftID; pending
// rows are not addressable by id.
func (s *Store) Get(id string) (domain.LineItem, bool) {
	i, ok := s.index[id]
	if !ok {
		return domain.LineItem{}, false
	}
	return s.rows[i], true
}

// Draft returns the current draft row
func (s *Store) Draft() (domain.LineItem, bool) {
	return s.Get(domain.DraftID)
}

// Pending returns the rows currently being created
func (s *Store) Pending() []domain.LineItem {
	out := make([]domain.LineItem, 0)
	for _, r := range s.rows {
		if r.IsPending() {
			out = append(out, r)
		}
	}
	return out
}

// ReplaceAll installs a freshly loaded batch. Selection is re-applied by
// id, rows still being created are kept ahead of the draft, and the draft
// is preserved (or created when none exists).
func (s *Store) ReplaceAll(records []domain.LineItem) {
	s.ReplaceAllKeeping(records, nil)
}

// ReplaceAllKeeping is ReplaceAll, except the cells named in keep hold on
// to their local values. Unconfirmed edits survive a reload this way.
func (s *Store) ReplaceAllKeeping(records []domain.LineItem, keep map[string][]domain.Field) {
	draft, hasDraft := s.Draft()
	pending := s.Pending()

	next := make([]domain.LineItem, 0, len(records)+len(pending)+1)
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.IsSentinel() {
			if rec.IsDraft && !hasDraft {
				draft, hasDraft = rec, true
			}
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		if fields := keep[rec.ID]; len(fields) > 0 {
			if i, ok := s.index[rec.ID]; ok {
				local := s.rows[i].Fields
				for _, f := range fields {
					spec := f.Spec()
					_ = spec.Set(&rec.Fields, spec.Get(&local))
				}
			}
		}
		_, rec.Selected = s.selection[rec.ID]
		if rec.Validation.Status == "" {
			rec.Validation = domain.RowValidation{Status: domain.StatusValid}
		}
		next = append(next, rec)
	}
	next = append(next, pending...)
	if !hasDraft {
		draft = domain.NewDraft(s.billID)
	}
	draft.ID = domain.DraftID
	draft.IsDraft = true
	next = append(next, draft)

	for id := range s.selection {
		if _, ok := seen[id]; !ok {
			delete(s.selection, id)
		}
	}

	for i := range next {
		s.derive(&next[i])
	}
	s.rows = next
	s.reindex()
	s.bump()
}

// UpdateField writes one field on a row and returns the previous value
// for rollback.
func (s *Store) UpdateField(id string, f domain.Field, v any) (any, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	spec := f.Spec()
	row := s.rows[i]
	prev := spec.Get(&row.Fields)
	if err := spec.Set(&row.Fields, v); err != nil {
		return nil, err
	}
	s.put(i, row)
	return prev, nil
}

// SetFields replaces the whole field record of a row
func (s *Store) SetFields(id string, fields domain.LineFields) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	row := s.rows[i]
	row.Fields = fields
	s.put(i, row)
	return nil
}

// Select adds or removes a persisted row from the selection. Placeholder
// rows are ignored.
func (s *Store) Select(id string, on bool) bool {
	i, ok := s.index[id]
	if !ok || s.rows[i].IsSentinel() {
		return false
	}
	if on {
		s.selection[id] = struct{}{}
	} else {
		delete(s.selection, id)
	}
	row := s.rows[i]
	if row.Selected == on {
		return true
	}
	row.Selected = on
	s.put(i, row)
	return true
}

// SelectAll toggles every persisted row. A collection without persisted
// rows is left untouched.
func (s *Store) SelectAll(on bool) {
	changed := false
	for i, r := range s.rows {
		if r.IsSentinel() {
			continue
		}
		if on {
			s.selection[r.ID] = struct{}{}
		} else {
			delete(s.selection, r.ID)
		}
		if r.Selected != on {
			r.Selected = on
			s.rows[i] = r
			changed = true
		}
	}
	if changed {
		s.bump()
	}
}

// ClearSelection empties the selection set
func (s *Store) ClearSelection() {
	s.SelectAll(false)
	clear(s.selection)
}

// SelectedIDs returns selected ids in display order
func (s *Store) SelectedIDs() []string {
	out := make([]string, 0, len(s.selection))
	for _, r := range s.rows {
		if _, ok := s.selection[r.ID]; ok && !r.IsSentinel() {
			out = append(out, r.ID)
		}
	}
	return out
}

// IsSelected reports selection membership
func (s *Store) IsSelected(id string) bool {
	_, ok := s.selection[id]
	return ok
}

// ReplaceDraft swaps the draft row for d, keeping it last
func (s *Store) ReplaceDraft(d domain.LineItem) {
	d.ID = domain.DraftID
	d.IsDraft = true
	d.BillID = s.billID
	s.derive(&d)
	i, ok := s.index[domain.DraftID]
	if !ok {
		s.rows = append(s.rows, d)
		s.reindex()
		s.bump()
		return
	}
	s.rows[i] = d
	s.bump()
}

// InsertBeforeDraft places row immediately ahead of the draft
func (s *Store) InsertBeforeDraft(row domain.LineItem) {
	s.derive(&row)
	i, ok := s.index[domain.DraftID]
	if !ok {
		i = len(s.rows)
	}
	s.rows = slices.Insert(s.rows, i, row)
	s.reindex()
	s.bump()
}

// ReplacePending swaps the pending row holding ticket for rec. It reports
// false when no such pending row exists.
func (s *Store) ReplacePending(ticket uint64, rec domain.LineItem) bool {
	for i, r := range s.rows {
		if r.IsPending() && r.Ticket() == ticket {
			if _, exists := s.index[rec.ID]; exists {
				// a reload already brought the record in
				s.rows = slices.Delete(s.rows, i, i+1)
			} else {
				rec.Selected = false
				s.derive(&rec)
				s.rows[i] = rec
			}
			s.reindex()
			s.bump()
			return true
		}
	}
	return false
}

// RemovePending drops the pending row holding ticket
func (s *Store) RemovePending(ticket uint64) (domain.LineItem, bool) {
	for i, r := range s.rows {
		if r.IsPending() && r.Ticket() == ticket {
			s.rows = slices.Delete(s.rows, i, i+1)
			s.reindex()
			s.bump()
			return r, true
		}
	}
	return domain.LineItem{}, false
}

// Remove drops persisted rows by id
func (s *Store) Remove(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !domain.IsSentinelID(id) {
			drop[id] = struct{}{}
		}
	}
	before := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(r domain.LineItem) bool {
		_, ok := drop[r.ID]
		return ok
	})
	for id := range drop {
		delete(s.selection, id)
	}
	removed := before - len(s.rows)
	if removed > 0 {
		s.reindex()
		s.bump()
	}
	return removed
}

// ApplyValidation writes validation display state onto every row
func (s *Store) ApplyValidation(statuses map[int]domain.RowValidation) {
	s.rows = ApplyStatusMap(s.rows, statuses)
	s.bump()
}

// Rederive recomputes render-only fields on every row
func (s *Store) Rederive() {
	for i := range s.rows {
		s.derive(&s.rows[i])
	}
	s.bump()
}

func (s *Store) put(i int, row domain.LineItem) {
	s.derive(&row)
	s.rows[i] = row
	s.bump()
}

func (s *Store) bump() {
	s.version++
}

func (s *Store) reindex() {
	clear(s.index)
	for i, r := range s.rows {
		if r.IsPending() {
			continue
		}
		s.index[r.ID] = i
	}
}
