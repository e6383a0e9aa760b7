package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/andy/billgrid/internal/db"
	"github.com/andy/billgrid/internal/domain"
)

// CodeRepo is a SQLite implementation of CodeRepository
type CodeRepo struct {
	db *db.DB
}

// NewCodeRepo creates a new CodeRepo
func NewCodeRepo(database *db.DB) *CodeRepo {
	return &CodeRepo{db: database}
}

// Search matches codes by prefix or descriptions by substring. Exact code
// matches sort first, then prefix matches.
func (r *CodeRepo) Search(ctx context.Context, term string, codeTypes []string, limit int) ([]domain.CodeMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []domain.CodeMatch{}, nil
	}

	prefix := escapeLike(term) + "%"
	contains := "%" + escapeLike(term) + "%"

	query := `
		SELECT id, code_type, code_name, description
		FROM codes
		WHERE (code_name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')
	`
	args := []any{prefix, contains}

	if len(codeTypes) > 0 {
		query += " AND code_type IN (" + placeholders(len(codeTypes)) + ")"
		args = append(args, stringArgs(codeTypes)...)
	}

	query += `
		ORDER BY CASE
			WHEN code_name = ? THEN 0
			WHEN code_name LIKE ? ESCAPE '\' THEN 1
			ELSE 2
		END, code_name
	`
	args = append(args, term, prefix)

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search codes: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.CodeMatch, 0)
	for rows.Next() {
		var m domain.CodeMatch
		if err := rows.Scan(&m.CodeID, &m.CodeType, &m.CodeName, &m.Description); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating codes: %w", err)
	}

	return matches, nil
}

// Describe returns the catalogue entry for an exact code, or nil
func (r *CodeRepo) Describe(ctx context.Context, code string, codeTypes []string) (*domain.CodeMatch, error) {
	query := `
		SELECT id, code_type, code_name, description
		FROM codes
		WHERE code_name = ?
	`
	args := []any{strings.TrimSpace(code)}

	if len(codeTypes) > 0 {
		query += " AND code_type IN (" + placeholders(len(codeTypes)) + ")"
		args = append(args, stringArgs(codeTypes)...)
	}
	query += " ORDER BY code_type LIMIT 1"

	var m domain.CodeMatch
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&m.CodeID, &m.CodeType, &m.CodeName, &m.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe code: %w", err)
	}

	return &m, nil
}

// Upsert inserts codes or refreshes their descriptions
func (r *CodeRepo) Upsert(ctx context.Context, codes []domain.CodeMatch) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO codes (id, code_type, code_name, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (code_type, code_name) DO UPDATE SET description = excluded.description
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, c := range codes {
		codeType, name := strings.TrimSpace(c.CodeType), strings.TrimSpace(c.CodeName)
		if codeType == "" || name == "" {
			continue
		}
		id := c.CodeID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, codeType, name, strings.TrimSpace(c.Description)); err != nil {
			return 0, fmt.Errorf("failed to upsert code %s/%s: %w", codeType, name, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return n, nil
}

// Count returns the number of catalogue entries
func (r *CodeRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM codes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count codes: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
