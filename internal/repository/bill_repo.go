package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andy/billgrid/internal/db"
	"github.com/andy/billgrid/internal/domain"
)

// BillRepo is a SQLite implementation of BillRepository
type BillRepo struct {
	db *db.DB
}

// NewBillRepo creates a new BillRepo
func NewBillRepo(database *db.DB) *BillRepo {
	return &BillRepo{db: database}
}

const billColumns = `
	b.id, b.bill_number, b.stage, b.created_at, b.updated_at,
	(SELECT COUNT(*) FROM bill_line_items li WHERE li.bill_id = b.id),
	(SELECT COALESCE(SUM(li.charge), 0) FROM bill_line_items li WHERE li.bill_id = b.id)
`

// Create inserts a new bill into the database
func (r *BillRepo) Create(ctx context.Context, bill *domain.Bill) error {
	if err := bill.Validate(); err != nil {
		return fmt.Errorf("invalid bill: %w", err)
	}
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}

	query := `
		INSERT INTO bills (id, bill_number, stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		bill.ID,
		bill.Number,
		string(bill.Stage),
		bill.CreatedAt.Format(timeLayout),
		bill.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", err)
	}

	return nil
}

// GetByID retrieves a bill by ID
func (r *BillRepo) GetByID(ctx context.Context, id string) (*domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills b WHERE b.id = ?`
	return r.getOne(ctx, query, id)
}

// GetByNumber retrieves a bill by its bill number
func (r *BillRepo) GetByNumber(ctx context.Context, number string) (*domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills b WHERE b.bill_number = ?`
	return r.getOne(ctx, query, number)
}

func (r *BillRepo) getOne(ctx context.Context, query string, arg any) (*domain.Bill, error) {
	bill, err := scanBill(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bill %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return bill, nil
}

// List retrieves bills, optionally filtered by stage
func (r *BillRepo) List(ctx context.Context, stage *domain.Stage) ([]*domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills b WHERE 1=1`
	args := make([]any, 0)

	if stage != nil {
		query += " AND b.stage = ?"
		args = append(args, string(*stage))
	}

	query += " ORDER BY b.created_at DESC, b.bill_number DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	bills := make([]*domain.Bill, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bills: %w", err)
	}

	return bills, nil
}

// SetStage moves a bill to a new workflow stage
func (r *BillRepo) SetStage(ctx context.Context, id string, stage domain.Stage) error {
	if _, err := domain.ParseStage(string(stage)); err != nil {
		return fmt.Errorf("invalid stage: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE bills SET stage = ?, updated_at = ? WHERE id = ?",
		string(stage), formatTime(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill stage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a bill together with its line items and history
func (r *BillRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM bills WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetNextBillNumber generates the next bill number in format "PREFIX-YEAR-SEQUENCE"
func (r *BillRepo) GetNextBillNumber(ctx context.Context, prefix string, year int) (string, error) {
	query := `
		SELECT bill_number
		FROM bills
		WHERE bill_number LIKE ?
		ORDER BY bill_number DESC
		LIMIT 1
	`

	pattern := fmt.Sprintf("%s-%d-%%", prefix, year)
	var lastNumber string

	err := r.db.QueryRowContext(ctx, query, pattern).Scan(&lastNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Sprintf("%s-%d-001", prefix, year), nil
		}
		return "", fmt.Errorf("failed to get last bill number: %w", err)
	}

	// Format: PREFIX-YEAR-SEQUENCE (e.g., "BILL-2026-005")
	var lastYear, lastSeq int
	if _, err := fmt.Sscanf(lastNumber, prefix+"-%d-%d", &lastYear, &lastSeq); err != nil {
		return fmt.Sprintf("%s-%d-001", prefix, year), nil
	}

	return fmt.Sprintf("%s-%d-%03d", prefix, year, lastSeq+1), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	bill := &domain.Bill{}
	var stage, createdAt, updatedAt string

	err := row.Scan(
		&bill.ID,
		&bill.Number,
		&stage,
		&createdAt,
		&updatedAt,
		&bill.LineCount,
		&bill.TotalCharge,
	)
	if err != nil {
		return nil, err
	}

	bill.Stage = domain.Stage(stage)
	if bill.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if bill.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return bill, nil
}

// parseStoredTime accepts RFC3339 and SQLite's datetime('now') format
func parseStoredTime(s string) (time.Time, error) {
	if t, err := parseTime(s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateTime, s)
}
