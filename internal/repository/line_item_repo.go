package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/andy/billgrid/internal/db"
	"github.com/andy/billgrid/internal/domain"
)

// LineItemRepo is a SQLite implementation of LineItemRepository
type LineItemRepo struct {
	db *db.DB
}

// NewLineItemRepo creates a new LineItemRepo
func NewLineItemRepo(database *db.DB) *LineItemRepo {
	return &LineItemRepo{db: database}
}

// fieldColumns lists the field columns in domain.AllFields order
var fieldColumns = func() []string {
	cols := make([]string, len(domain.AllFields))
	for i, f := range domain.AllFields {
		cols[i] = f.Spec().Column
	}
	return cols
}()

var lineItemSelect = `
	SELECT id, bill_id, line_number, ` + strings.Join(fieldColumns, ", ") + `, created_at, updated_at
	FROM bill_line_items
`

// ListByBill retrieves a bill's line items ordered by line number
func (r *LineItemRepo) ListByBill(ctx context.Context, billID string) ([]domain.LineItem, error) {
	return listLineItems(ctx, r.db, billID)
}

func listLineItems(ctx context.Context, q querier, billID string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, lineItemSelect+" WHERE bill_id = ? ORDER BY line_number, created_at", billID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line items: %w", err)
	}

	return items, nil
}

// GetByID retrieves a line item by ID
func (r *LineItemRepo) GetByID(ctx context.Context, id string) (*domain.LineItem, error) {
	return getLineItem(ctx, r.db, id)
}

func getLineItem(ctx context.Context, q querier, id string) (*domain.LineItem, error) {
	item, err := scanLineItem(q.QueryRowContext(ctx, lineItemSelect+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("line item %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

// Create inserts a new line item at the end of its bill
func (r *LineItemRepo) Create(ctx context.Context, item *domain.LineItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkWritable(ctx, tx, item.BillID); err != nil {
		return err
	}

	next, err := nextLineNumber(ctx, tx, item.BillID)
	if err != nil {
		return err
	}

	item.ID = uuid.NewString()
	item.LineNumber = next
	item.IsDraft = false
	if item.Fields.MedicareStatus == "" {
		item.Fields.MedicareStatus = domain.MedicareTBD
	}

	if err := insertLineItem(ctx, tx, item); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ApplyPatches writes the listed columns of each patch and creates an audit
// record for every value that changed
func (r *LineItemRepo) ApplyPatches(ctx context.Context, billID string, patches []domain.Patch) error {
	if len(patches) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkWritable(ctx, tx, billID); err != nil {
		return err
	}

	now := formatTime()
	for _, p := range patches {
		old, err := getLineItem(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if old.BillID != billID {
			return fmt.Errorf("line item %s: %w", p.ID, ErrNotFound)
		}

		sets := make([]string, 0, len(p.Fields)+2)
		args := make([]any, 0, len(p.Fields)+3)
		for _, f := range p.Fields {
			spec := f.Spec()
			sets = append(sets, spec.Column+" = ?")
			args = append(args, spec.Get(&p.Values))
		}
		if p.LineNumber > 0 {
			sets = append(sets, "line_number = ?")
			args = append(args, p.LineNumber)
		}
		if len(sets) == 0 {
			continue
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, now, p.ID, billID)

		query := "UPDATE bill_line_items SET " + strings.Join(sets, ", ") + " WHERE id = ? AND bill_id = ?"
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update line item %s: %w", p.ID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("line item %s: %w", p.ID, ErrNotFound)
		}

		if err := createAuditRecords(ctx, tx, old, p, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindMatches returns, per line item of billID, the lines on other bills
// with the same procedure code and service start date. Lines missing
// either value never match.
func (r *LineItemRepo) FindMatches(ctx context.Context, billID string) (map[string][]domain.DuplicateMatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, o.id, o.bill_id, b.bill_number, o.line_number, o.charge
		FROM bill_line_items l
		JOIN bill_line_items o
			ON o.procedure_code = l.procedure_code
			AND o.service_start_date = l.service_start_date
			AND o.bill_id <> l.bill_id
		JOIN bills b ON b.id = o.bill_id
		WHERE l.bill_id = ? AND l.procedure_code <> '' AND l.service_start_date <> ''
		ORDER BY l.line_number, b.bill_number, o.line_number
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate matches: %w", err)
	}
	defer rows.Close()

	matches := make(map[string][]domain.DuplicateMatch)
	for rows.Next() {
		var lineID string
		var m domain.DuplicateMatch
		var charge sql.NullFloat64
		if err := rows.Scan(&lineID, &m.LineID, &m.BillID, &m.BillNumber, &m.LineNumber, &charge); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate match: %w", err)
		}
		if charge.Valid {
			m.Charge = domain.Amount(charge.Float64)
		}
		matches[lineID] = append(matches[lineID], m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate matches: %w", err)
	}

	return matches, nil
}

// Delete removes line items. Remaining rows keep their line numbers.
func (r *LineItemRepo) Delete(ctx context.Context, billID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkWritable(ctx, tx, billID); err != nil {
		return err
	}

	query := "DELETE FROM bill_line_items WHERE bill_id = ? AND id IN (" + placeholders(len(ids)) + ")"
	args := append([]any{billID}, stringArgs(ids)...)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete line items: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("line items %s: %w", strings.Join(ids, ", "), ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Duplicate appends counts[id] copies of each source row, in source line order
func (r *LineItemRepo) Duplicate(ctx context.Context, billID string, counts map[string]int) (int, error) {
	if len(counts) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkWritable(ctx, tx, billID); err != nil {
		return 0, err
	}

	sources := make([]*domain.LineItem, 0, len(counts))
	for id, n := range counts {
		if n <= 0 {
			continue
		}
		src, err := getLineItem(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		if src.BillID != billID {
			return 0, fmt.Errorf("line item %s: %w", id, ErrNotFound)
		}
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].LineNumber < sources[j].LineNumber })

	next, err := nextLineNumber(ctx, tx, billID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, src := range sources {
		for range counts[src.ID] {
			dup := domain.LineItem{
				ID:         uuid.NewString(),
				BillID:     billID,
				LineNumber: next,
				Fields:     src.Fields,
			}
			if err := insertLineItem(ctx, tx, &dup); err != nil {
				return 0, err
			}
			next++
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return created, nil
}

// GetHistory retrieves the audit trail for a line item
func (r *LineItemRepo) GetHistory(ctx context.Context, lineItemID string) ([]*domain.LineHistory, error) {
	query := `
		SELECT id, line_item_id, field_name, old_value, new_value, change_reason, changed_at
		FROM line_item_history
		WHERE line_item_id = ?
		ORDER BY changed_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, lineItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get line item history: %w", err)
	}
	defer rows.Close()

	history := make([]*domain.LineHistory, 0)
	for rows.Next() {
		h := &domain.LineHistory{}
		var oldValue, newValue, reason sql.NullString
		var changedAt string

		err := rows.Scan(&h.ID, &h.LineItemID, &h.FieldName, &oldValue, &newValue, &reason, &changedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.OldValue, h.NewValue, h.ChangeReason = oldValue.String, newValue.String, reason.String

		if h.ChangedAt, err = parseStoredTime(changedAt); err != nil {
			return nil, fmt.Errorf("failed to parse changed_at: %w", err)
		}

		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return history, nil
}

func checkWritable(ctx context.Context, q querier, billID string) error {
	stage, err := billStage(ctx, q, billID)
	if err != nil {
		return err
	}
	if domain.Stage(stage).IsReadOnly() {
		return fmt.Errorf("bill %s: %w", billID, ErrBillLocked)
	}
	return nil
}

func nextLineNumber(ctx context.Context, q querier, billID string) (int, error) {
	var maxLine int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(line_number), 0) FROM bill_line_items WHERE bill_id = ?", billID,
	).Scan(&maxLine)
	if err != nil {
		return 0, fmt.Errorf("failed to get next line number: %w", err)
	}
	return maxLine + 1, nil
}

func insertLineItem(ctx context.Context, q querier, item *domain.LineItem) error {
	now := formatTime()
	query := `
		INSERT INTO bill_line_items (id, bill_id, line_number, ` + strings.Join(fieldColumns, ", ") + `, created_at, updated_at)
		VALUES (` + placeholders(len(fieldColumns)+5) + `)
	`

	args := make([]any, 0, len(fieldColumns)+5)
	args = append(args, item.ID, item.BillID, item.LineNumber)
	for _, f := range domain.AllFields {
		args = append(args, f.Spec().Get(&item.Fields))
	}
	args = append(args, now, now)

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create line item: %w", err)
	}

	item.CreatedAt, _ = parseTime(now)
	item.UpdatedAt = item.CreatedAt
	return nil
}

// createAuditRecords writes one history row per changed field of the patch
func createAuditRecords(ctx context.Context, tx *sql.Tx, old *domain.LineItem, p domain.Patch, changedAt string) error {
	query := `
		INSERT INTO line_item_history (line_item_id, bill_id, field_name, old_value, new_value, change_reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for _, f := range p.Fields {
		spec := f.Spec()
		oldVal, newVal := spec.Format(&old.Fields), spec.Format(&p.Values)
		if oldVal == newVal {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, p.ID, old.BillID, spec.Column, oldVal, newVal, p.Reason, changedAt); err != nil {
			return fmt.Errorf("failed to audit %s change: %w", spec.Column, err)
		}
	}

	return nil
}

func scanLineItem(row rowScanner) (*domain.LineItem, error) {
	item := &domain.LineItem{}
	var createdAt, updatedAt string

	texts := make([]string, len(domain.AllFields))
	amounts := make([]sql.NullFloat64, len(domain.AllFields))

	dest := make([]any, 0, len(domain.AllFields)+5)
	dest = append(dest, &item.ID, &item.BillID, &item.LineNumber)
	for i, f := range domain.AllFields {
		if isAmountKind(f.Spec().Kind) {
			dest = append(dest, &amounts[i])
		} else {
			dest = append(dest, &texts[i])
		}
	}
	dest = append(dest, &createdAt, &updatedAt)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan line item: %w", err)
	}

	for i, f := range domain.AllFields {
		spec := f.Spec()
		var v any = texts[i]
		if isAmountKind(spec.Kind) {
			v = nil
			if amounts[i].Valid {
				v = amounts[i].Float64
			}
		}
		if err := spec.Set(&item.Fields, v); err != nil {
			return nil, fmt.Errorf("failed to read %s of line item %s: %w", spec.Column, item.ID, err)
		}
	}

	var err error
	if item.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if item.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	item.Validation = domain.RowValidation{Status: domain.StatusValid}

	return item, nil
}

func isAmountKind(k domain.Kind) bool {
	return k == domain.KindQuantity || k == domain.KindCurrency
}
