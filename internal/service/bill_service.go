package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/repository"
)

var (
	ErrBillLocked       = errors.New("bill is adjudicated and cannot be changed")
	ErrCannotAdjudicate = errors.New("bill has validation errors and cannot be adjudicated")
	ErrBillNotFound     = errors.New("bill not found")
)

// DefaultBillPrefix is used for generated bill numbers
const DefaultBillPrefix = "BILL"

// BillService manages bills and their workflow stage
type BillService interface {
	// CreateBill creates a bill with an auto-generated number
	CreateBill(ctx context.Context, prefix string) (*domain.Bill, error)

	// GetBill retrieves a bill by ID
	GetBill(ctx context.Context, id string) (*domain.Bill, error)

	// ResolveBill finds a bill by ID or bill number
	ResolveBill(ctx context.Context, ref string) (*domain.Bill, error)

	// ListBills lists bills, optionally filtered by stage
	ListBills(ctx context.Context, stage *domain.Stage) ([]*domain.Bill, error)

	// Stage returns the bill's current stage
	Stage(ctx context.Context, billID string) (domain.Stage, error)

	// SetStage moves an editable bill to any stage
	SetStage(ctx context.Context, billID string, stage domain.Stage) error

	// Adjudicate validates the bill and locks it when no errors remain
	Adjudicate(ctx context.Context, billID string) (domain.ValidationResult, error)

	// DeleteBill removes an editable bill and its line items
	DeleteBill(ctx context.Context, billID string) error
}

// Validator is the rule engine used before adjudication
type Validator interface {
	Validate(ctx context.Context, billID string) (domain.ValidationResult, error)
}

type billService struct {
	billRepo  repository.BillRepository
	validator Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewBillService creates a new bill service
func NewBillService(billRepo repository.BillRepository, validator Validator, logger *zap.Logger) BillService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &billService{
		billRepo:  billRepo,
		validator: validator,
		logger:    logger.Named("bills"),
		now:       time.Now,
	}
}

func (s *billService) CreateBill(ctx context.Context, prefix string) (*domain.Bill, error) {
	if prefix == "" {
		prefix = DefaultBillPrefix
	}

	number, err := s.billRepo.GetNextBillNumber(ctx, prefix, s.now().Year())
	if err != nil {
		return nil, fmt.Errorf("failed to generate bill number: %w", err)
	}

	bill := domain.NewBill(number)
	if err := s.billRepo.Create(ctx, bill); err != nil {
		return nil, err
	}

	s.logger.Info("bill created", zap.String("bill_id", bill.ID), zap.String("number", bill.Number))
	return bill, nil
}

func (s *billService) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	bill, err := s.billRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return bill, nil
}

func (s *billService) ResolveBill(ctx context.Context, ref string) (*domain.Bill, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrBillNotFound)
	}
	if _, err := uuid.Parse(ref); err == nil {
		return s.GetBill(ctx, ref)
	}
	bill, err := s.billRepo.GetByNumber(ctx, strings.ToUpper(ref))
	if err != nil {
		return nil, notFound(err)
	}
	return bill, nil
}

func (s *billService) ListBills(ctx context.Context, stage *domain.Stage) ([]*domain.Bill, error) {
	return s.billRepo.List(ctx, stage)
}

func (s *billService) Stage(ctx context.Context, billID string) (domain.Stage, error) {
	bill, err := s.GetBill(ctx, billID)
	if err != nil {
		return "", err
	}
	return bill.Stage, nil
}

func (s *billService) SetStage(ctx context.Context, billID string, stage domain.Stage) error {
	bill, err := s.GetBill(ctx, billID)
	if err != nil {
		return err
	}
	if !bill.CanEdit() {
		return domain.NewSaveError("set stage", domain.KindReadOnly, billID, ErrBillLocked)
	}
	if bill.Stage == stage {
		return nil
	}

	if err := s.billRepo.SetStage(ctx, billID, stage); err != nil {
		return err
	}

	s.logger.Info("bill stage changed",
		zap.String("bill_id", billID),
		zap.String("from", string(bill.Stage)),
		zap.String("to", string(stage)),
	)
	return nil
}

func (s *billService) Adjudicate(ctx context.Context, billID string) (domain.ValidationResult, error) {
	if s.validator == nil {
		return domain.ValidationResult{}, errors.New("no validator configured")
	}

	res, err := s.validator.Validate(ctx, billID)
	if err != nil {
		return res, fmt.Errorf("failed to validate bill: %w", err)
	}
	if !res.CanProceed {
		return res, ErrCannotAdjudicate
	}

	return res, s.SetStage(ctx, billID, domain.StageAdjudicated)
}

func (s *billService) DeleteBill(ctx context.Context, billID string) error {
	bill, err := s.GetBill(ctx, billID)
	if err != nil {
		return err
	}
	if !bill.CanEdit() {
		return ErrBillLocked
	}
	return s.billRepo.Delete(ctx, billID)
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrBillNotFound, err)
	}
	return err
}
