package application

import (
	"context"
	"fmt"
	"strings"

	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"
)

const (
	maxTitleLen    = 200
	maxCurrencyLen = 10
)

type CreateReceiptInput struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (in CreateReceiptInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrBadRequest)
	case len(in.Title) > maxTitleLen:
		return fmt.Errorf("%w: title must be at most %d characters", ErrBadRequest, maxTitleLen)
	case in.Amount <= 0:
		return fmt.Errorf("%w: amount must be greater than 0", ErrBadRequest)
	case strings.TrimSpace(in.Currency) == "":
		return fmt.Errorf("%w: currency is required", ErrBadRequest)
	case len(in.Currency) > maxCurrencyLen:
		return fmt.Errorf("%w: currency must be at most %d characters", ErrBadRequest, maxCurrencyLen)
	}
	return nil
}

type ReceiptService struct {
	receipts ReceiptRepo
	idem     *idempotency.Coordinator
	clock    Clock
	idgen    IDGen
}

type Option func(*ReceiptService)

func WithClock(c Clock) Option { return func(s *ReceiptService) { s.clock = c } }
func WithIDGen(g IDGen) Option { return func(s *ReceiptService) { s.idgen = g } }

func NewReceiptService(receipts ReceiptRepo, idem *idempotency.Coordinator, opts ...Option) *ReceiptService {
	s := &ReceiptService{
		receipts: receipts,
		idem:     idem,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	return s
}

// CreateReceipt validates in and creates the receipt at most once per key.
// Callers retrying with the same key get the originally created receipt.
func (s *ReceiptService) CreateReceipt(ctx context.Context, in CreateReceiptInput, idemKey *string) (domain.Receipt, error) {
	if err := in.Validate(); err != nil {
		return domain.Receipt{}, err
	}
	return idempotency.Execute(ctx, s.idem, idemKey, func(ctx context.Context) (domain.Receipt, error) {
		r := domain.Receipt{
			ID:        s.idgen.NewID(),
			Title:     in.Title,
			Amount:    in.Amount,
			Currency:  in.Currency,
			Status:    domain.ReceiptStatusDraft,
			CreatedAt: s.clock.Now(),
		}
		if err := s.receipts.Create(ctx, r); err != nil {
			return domain.Receipt{}, fmt.Errorf("create receipt: %w", err)
		}
		return r, nil
	})
}

func (s *ReceiptService) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	return s.receipts.GetByID(ctx, id)
}
