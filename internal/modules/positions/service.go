package positions

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/events"
	"github.com/rs/zerolog"
)

// Service exposes position reads and the admin flag transitions that stand in
// for the contract-signing and approval collaborators.
type Service struct {
	repo   *Repository
	events *events.Manager
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a position service. eventManager may be nil.
func NewService(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventManager,
		now:    time.Now,
		log:    log.With().Str("service", "positions").Logger(),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns one position or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID) (*Position, error) {
	pos, err := s.repo.GetByKey(ctx, investorID, productID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("position %s/%s: %w", investorID, productID, domain.ErrNotFound)
	}
	return pos, nil
}

// ListByInvestor returns every position held by an investor.
func (s *Service) ListByInvestor(ctx context.Context, investorID domain.InvestorID) ([]Position, error) {
	return s.repo.ListByInvestor(ctx, investorID)
}

// MarkContractSigned records the outcome of contract e-signature.
func (s *Service) MarkContractSigned(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, signed bool) error {
	if err := s.repo.SetContractSigned(ctx, investorID, productID, signed, s.now()); err != nil {
		return err
	}
	s.flagChanged(ctx, investorID, productID, "contract_signed", signed)
	return nil
}

// MarkApproved records the admin approval decision.
func (s *Service) MarkApproved(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, approved bool) error {
	if err := s.repo.SetApproved(ctx, investorID, productID, approved, s.now()); err != nil {
		return err
	}
	s.flagChanged(ctx, investorID, productID, "approved", approved)
	return nil
}

func (s *Service) flagChanged(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, flag string, value bool) {
	s.log.Info().
		Str("investor_id", investorID.String()).
		Str("product_id", productID.String()).
		Str("flag", flag).
		Bool("value", value).
		Msg("Position flag changed")

	s.events.Emit(ctx, "positions", &events.PositionFlagChangedData{
		InvestorID: investorID.String(),
		ProductID:  productID.String(),
		Flag:       flag,
		Value:      value,
	})
}
