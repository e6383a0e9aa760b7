package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/repository"
)

// CodeService searches, describes and imports catalogue codes
type CodeService interface {
	Search(ctx context.Context, term string, codeTypes []string, limit int) ([]domain.CodeMatch, error)
	Describe(ctx context.Context, code string, codeTypes []string) (*domain.CodeMatch, error)
	// Import loads every sheet of an xlsx workbook whose header row is
	// Type | Code | Description
	Import(ctx context.Context, path string) (int, error)
	Count(ctx context.Context) (int, error)
}

type codeService struct {
	codeRepo repository.CodeRepository
	logger   *zap.Logger
}

// NewCodeService creates a new code service
func NewCodeService(codeRepo repository.CodeRepository, logger *zap.Logger) CodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &codeService{codeRepo: codeRepo, logger: logger.Named("codes")}
}

func (s *codeService) Search(ctx context.Context, term string, codeTypes []string, limit int) ([]domain.CodeMatch, error) {
	return s.codeRepo.Search(ctx, term, codeTypes, limit)
}

func (s *codeService) Describe(ctx context.Context, code string, codeTypes []string) (*domain.CodeMatch, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	return s.codeRepo.Describe(ctx, code, codeTypes)
}

func (s *codeService) Count(ctx context.Context) (int, error) {
	return s.codeRepo.Count(ctx)
}

func (s *codeService) Import(ctx context.Context, path string) (int, error) {
	codes, err := ReadCodeWorkbook(path)
	if err != nil {
		return 0, err
	}

	n, err := s.codeRepo.Upsert(ctx, codes)
	if err != nil {
		return 0, err
	}

	s.logger.Info("codes imported", zap.String("path", path), zap.Int("count", n))
	return n, nil
}

// ReadCodeWorkbook parses catalogue rows from every sheet of an xlsx file.
// Sheets without the expected header are skipped.
func ReadCodeWorkbook(path string) ([]domain.CodeMatch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	codes := make([]domain.CodeMatch, 0)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 || !isCodeHeader(rows[0]) {
			continue
		}

		for _, row := range rows[1:] {
			if len(row) < 2 {
				continue
			}
			m := domain.CodeMatch{
				CodeType: strings.TrimSpace(row[0]),
				CodeName: strings.TrimSpace(row[1]),
			}
			if len(row) > 2 {
				m.Description = strings.TrimSpace(row[2])
			}
			if m.CodeType == "" || m.CodeName == "" {
				continue
			}
			codes = append(codes, m)
		}
	}

	if len(codes) == 0 {
		return nil, fmt.Errorf("no codes found in %s: expected a Type | Code | Description header", path)
	}
	return codes, nil
}

func isCodeHeader(row []string) bool {
	if len(row) < 2 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(row[0]), "type") &&
		strings.EqualFold(strings.TrimSpace(row[1]), "code")
}
