package consolidation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/yieldfund/internal/database"
	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/events"
	"github.com/aristath/yieldfund/internal/metrics"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/rates"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Config tunes the service.
type Config struct {
	Workers     int   // investors consolidated in parallel
	AmountScale int32 // decimal places kept for seeded income
}

// Service consolidates purchase batches. Each investor is one transaction:
// a failure leaves that investor's positions untouched and does not stop
// the rest of the batch.
type Service struct {
	repo    *positions.Repository
	catalog *rates.Catalog
	events  *events.Manager
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a consolidation service.
func NewService(repo *positions.Repository, catalog *rates.Catalog, eventManager *events.Manager, m *metrics.Metrics, cfg Config, log zerolog.Logger) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		events:  eventManager,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("service", "consolidation").Logger(),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type validEntry struct {
	PurchaseEntry
	investor domain.InvestorID
	product  domain.ProductID
	rule     rates.Rule
}

type investorBatch struct {
	investor domain.InvestorID
	products []domain.ProductID
	entries  map[domain.ProductID][]validEntry
}

// Import consolidates entries. The returned error is non-nil only when the
// whole batch could not run (e.g. context cancelled before any work).
func (s *Service) Import(ctx context.Context, entries []PurchaseEntry) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := s.now()
	result := &ImportResult{BatchID: uuid.NewString()}

	batches, invalid := s.group(entries)
	result.Invalid = invalid
	result.Investors = make([]InvestorResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			result.Investors[i] = s.consolidateInvestor(gctx, batch, result.BatchID, start)
			return nil
		})
	}
	_ = g.Wait()

	failed := result.Failed()
	s.metrics.IncConsolidation(len(batches)-failed, failed)
	s.events.Emit(ctx, "consolidation", &events.ConsolidationCompletedData{
		BatchID:   result.BatchID,
		Investors: len(batches),
		Failed:    failed,
		Invalid:   len(invalid),
	})

	s.log.Info().
		Str("batch_id", result.BatchID).
		Int("entries", len(entries)).
		Int("investors", len(batches)).
		Int("failed", failed).
		Int("invalid", len(invalid)).
		Dur("duration", s.now().Sub(start)).
		Msg("Purchase import consolidated")

	return result, nil
}

// group validates entries and buckets them by investor, then product.
// Output order follows first appearance in the input.
func (s *Service) group(entries []PurchaseEntry) ([]*investorBatch, []InvalidEntry) {
	var (
		batches []*investorBatch
		invalid []InvalidEntry
		index   = make(map[domain.InvestorID]*investorBatch)
	)

	for i, e := range entries {
		v, reason := s.validate(e)
		if reason != "" {
			invalid = append(invalid, InvalidEntry{Index: i, InvestorID: e.InvestorID, ProductID: e.ProductID, Reason: reason})
			s.log.Warn().Int("index", i).Str("investor_id", e.InvestorID).Str("product_id", e.ProductID).
				Str("reason", reason).Msg("Skipping invalid purchase entry")
			continue
		}

		b, ok := index[v.investor]
		if !ok {
			b = &investorBatch{investor: v.investor, entries: make(map[domain.ProductID][]validEntry)}
			index[v.investor] = b
			batches = append(batches, b)
		}
		if _, seen := b.entries[v.product]; !seen {
			b.products = append(b.products, v.product)
		}
		b.entries[v.product] = append(b.entries[v.product], v)
	}
	return batches, invalid
}

func (s *Service) validate(e PurchaseEntry) (validEntry, string) {
	investor, err := domain.ParseInvestorID(e.InvestorID)
	if err != nil {
		return validEntry{}, err.Error()
	}
	product, err := domain.ParseProductID(e.ProductID)
	if err != nil {
		return validEntry{}, err.Error()
	}
	rule, ok := s.catalog.Rule(product)
	if !ok {
		return validEntry{}, fmt.Sprintf("%v: %s", domain.ErrUnknownProduct, product)
	}
	if e.Principal.IsNegative() {
		return validEntry{}, "principal must not be negative"
	}
	if e.Units < 0 {
		return validEntry{}, "units must not be negative"
	}
	if e.PurchaseDate.IsZero() {
		return validEntry{}, "purchase date is required"
	}
	return validEntry{PurchaseEntry: e, investor: investor, product: product, rule: rule}, ""
}

func (s *Service) consolidateInvestor(ctx context.Context, batch *investorBatch, batchID string, now time.Time) InvestorResult {
	res := InvestorResult{InvestorID: batch.investor.String()}

	var summaries []PositionSummary
	err := database.WithTransaction(ctx, s.repo.DB(), func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		summaries = summaries[:0]
		for _, product := range batch.products {
			summary, err := s.mergeProduct(ctx, repo, batch.investor, product, batch.entries[product], batchID, now)
			if err != nil {
				return err
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		res.Error = err.Error()
		s.log.Error().Err(err).Str("investor_id", res.InvestorID).Msg("Consolidation failed for investor")
		return res
	}

	sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].ProductID < summaries[j].ProductID })
	res.Success = true
	res.Positions = summaries
	return res
}

// mergeProduct writes one (investor, product) position. Principal and units
// are replaced by the batch totals; seeded income is only computed when the
// position is new, so re-running a batch reproduces the same row.
func (s *Service) mergeProduct(ctx context.Context, repo *positions.Repository, investor domain.InvestorID, product domain.ProductID, entries []validEntry, batchID string, now time.Time) (PositionSummary, error) {
	principal := decimal.Zero
	var units int64
	signed, approved := false, false
	for _, e := range entries {
		principal = principal.Add(e.Principal)
		units += e.Units
		signed = signed || e.ContractSigned
		approved = approved || e.Approved
	}

	summary := PositionSummary{
		ProductID: product.String(),
		Principal: principal,
		Units:     units,
		Entries:   len(entries),
	}

	existing, err := repo.GetByKey(ctx, investor, product)
	if err != nil {
		return summary, err
	}

	if existing == nil {
		pos := &positions.Position{
			InvestorID:     investor,
			ProductID:      product,
			Principal:      principal,
			Units:          units,
			AccruedIncome:  s.seedIncome(entries, now),
			ContractSigned: signed,
			Approved:       approved,
			ImportBatchID:  batchID,
		}
		if err := repo.Insert(ctx, pos, now); err != nil {
			return summary, err
		}
		summary.AccruedIncome = pos.AccruedIncome
		summary.Created = true
		return summary, nil
	}

	if err := repo.UpdateHoldings(ctx, existing.ID, principal, units, batchID, now); err != nil {
		return summary, err
	}
	// Flags are only raised by imports; lowering them is an admin action.
	if signed && !existing.ContractSigned {
		if err := repo.SetContractSigned(ctx, investor, product, true, now); err != nil {
			return summary, err
		}
	}
	if approved && !existing.Approved {
		if err := repo.SetApproved(ctx, investor, product, true, now); err != nil {
			return summary, err
		}
	}
	summary.AccruedIncome = existing.AccruedIncome
	return summary, nil
}

// seedIncome sums, per entry, the product rule applied for the whole days
// elapsed since that entry's purchase date.
func (s *Service) seedIncome(entries []validEntry, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		days := domain.WholeDays(e.PurchaseDate, now)
		total = total.Add(e.rule.ForDays(e.Principal, e.Units, days))
	}
	return total.Round(s.cfg.AmountScale)
}
