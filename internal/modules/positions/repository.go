package positions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/yieldfund/internal/database"
	"github.com/aristath/yieldfund/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const positionColumns = `id, investor_id, product_id, principal, units, accrued_income, reserved_amount,
	last_accrual_at, contract_signed, approved, import_batch_id, created_at, updated_at`

// Repository handles position persistence in fund.db.
//
// Balance mutations (Reserve, Release, Debit, SetAccrued) must run on a
// repository bound to the transaction that read the position, see WithTx.
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new position repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

// WithTx returns a copy of the repository whose queries run inside tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: r.db, q: tx, log: r.log}
}

// DB returns the connection used to open transactions.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// GetByKey returns the position for an investor and product, or nil if absent.
func (r *Repository) GetByKey(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID) (*Position, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE investor_id = ? AND product_id = ?`,
		string(investorID), string(productID))
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s/%s: %w", investorID, productID, err)
	}
	return pos, nil
}

// GetByID returns a position by row id, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Position, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %d: %w", id, err)
	}
	return pos, nil
}

// ListByInvestor returns all positions of an investor ordered by product.
func (r *Repository) ListByInvestor(ctx context.Context, investorID domain.InvestorID) ([]Position, error) {
	return r.list(ctx, `SELECT `+positionColumns+` FROM positions WHERE investor_id = ? ORDER BY product_id`, string(investorID))
}

// ListAccrualCandidates returns signed and approved positions ordered by id.
// Rate rules are applied by the caller.
func (r *Repository) ListAccrualCandidates(ctx context.Context) ([]Position, error) {
	return r.list(ctx, `SELECT `+positionColumns+` FROM positions WHERE contract_signed = 1 AND approved = 1 ORDER BY id`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Position, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, *pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return out, nil
}

// Insert creates a position and sets its ID and timestamps.
func (r *Repository) Insert(ctx context.Context, pos *Position, now time.Time) error {
	if pos.AccruedIncome.IsNegative() {
		return fmt.Errorf("accrued income must not be negative: %s", pos.AccruedIncome)
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO positions (investor_id, product_id, principal, units, accrued_income, reserved_amount,
			last_accrual_at, contract_signed, approved, import_batch_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '0', ?, ?, ?, ?, ?, ?)
	`, string(pos.InvestorID), string(pos.ProductID), pos.Principal.String(), pos.Units, pos.AccruedIncome.String(),
		nullUnix(pos.LastAccrualAt), pos.ContractSigned, pos.Approved, nullString(pos.ImportBatchID),
		now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert position %s/%s: %w", pos.InvestorID, pos.ProductID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	pos.ID = id
	pos.ReservedAmount = decimal.Zero
	pos.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	pos.UpdatedAt = pos.CreatedAt
	return nil
}

// UpdateHoldings replaces principal and units. Accrued income is untouched.
func (r *Repository) UpdateHoldings(ctx context.Context, id int64, principal decimal.Decimal, units int64, batchID string, now time.Time) error {
	return r.execOne(ctx, "update holdings", `
		UPDATE positions SET principal = ?, units = ?, import_batch_id = ?, updated_at = ? WHERE id = ?
	`, principal.String(), units, nullString(batchID), now.Unix(), id)
}

// SetAccrued stores a new accrued income and accrual timestamp, guarded so a
// row already accrued at or after periodStart is left untouched.
// Returns false when the guard rejected the write.
func (r *Repository) SetAccrued(ctx context.Context, id int64, accrued decimal.Decimal, accruedAt, periodStart time.Time) (bool, error) {
	if accrued.IsNegative() {
		return false, fmt.Errorf("accrued income must not be negative: %s", accrued)
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE positions SET accrued_income = ?, last_accrual_at = ?, updated_at = ?
		WHERE id = ? AND (last_accrual_at IS NULL OR last_accrual_at < ?)
	`, accrued.String(), accruedAt.Unix(), accruedAt.Unix(), id, periodStart.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to apply accrual to position %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// Reserve holds amount of the position's available income for a pending withdrawal.
func (r *Repository) Reserve(ctx context.Context, pos *Position, amount decimal.Decimal, now time.Time) error {
	if amount.GreaterThan(pos.Available()) {
		return fmt.Errorf("reserve %s on position %d (available %s): %w", amount, pos.ID, pos.Available(), domain.ErrInsufficientBalance)
	}
	reserved := pos.ReservedAmount.Add(amount)
	if err := r.setBalances(ctx, pos.ID, pos.AccruedIncome, reserved, now); err != nil {
		return err
	}
	pos.ReservedAmount = reserved
	return nil
}

// Release returns a reservation to the available balance.
func (r *Repository) Release(ctx context.Context, pos *Position, amount decimal.Decimal, now time.Time) error {
	reserved := pos.ReservedAmount.Sub(amount)
	if reserved.IsNegative() {
		r.log.Warn().
			Int64("position_id", pos.ID).
			Str("reserved", pos.ReservedAmount.String()).
			Str("release", amount.String()).
			Msg("Releasing more than reserved, clamping to zero")
		reserved = decimal.Zero
	}
	if err := r.setBalances(ctx, pos.ID, pos.AccruedIncome, reserved, now); err != nil {
		return err
	}
	pos.ReservedAmount = reserved
	return nil
}

// Debit removes amount from accrued income and releases the matching
// reservation. Fails with domain.ErrInsufficientBalance rather than truncating.
func (r *Repository) Debit(ctx context.Context, pos *Position, amount decimal.Decimal, now time.Time) error {
	if amount.GreaterThan(pos.AccruedIncome) {
		return fmt.Errorf("debit %s on position %d (accrued %s): %w", amount, pos.ID, pos.AccruedIncome, domain.ErrInsufficientBalance)
	}
	accrued := pos.AccruedIncome.Sub(amount)
	reserved := pos.ReservedAmount.Sub(amount)
	if reserved.IsNegative() {
		reserved = decimal.Zero
	}
	if reserved.GreaterThan(accrued) {
		reserved = accrued
	}
	if err := r.setBalances(ctx, pos.ID, accrued, reserved, now); err != nil {
		return err
	}
	pos.AccruedIncome = accrued
	pos.ReservedAmount = reserved
	return nil
}

func (r *Repository) setBalances(ctx context.Context, id int64, accrued, reserved decimal.Decimal, now time.Time) error {
	return r.execOne(ctx, "update balances", `
		UPDATE positions SET accrued_income = ?, reserved_amount = ?, updated_at = ? WHERE id = ?
	`, accrued.String(), reserved.String(), now.Unix(), id)
}

// SetContractSigned flips the contract flag. Returns domain.ErrNotFound for a missing position.
func (r *Repository) SetContractSigned(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, signed bool, now time.Time) error {
	return r.setFlag(ctx, "contract_signed", investorID, productID, signed, now)
}

// SetApproved flips the approval flag. Returns domain.ErrNotFound for a missing position.
func (r *Repository) SetApproved(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, approved bool, now time.Time) error {
	return r.setFlag(ctx, "approved", investorID, productID, approved, now)
}

func (r *Repository) setFlag(ctx context.Context, column string, investorID domain.InvestorID, productID domain.ProductID, value bool, now time.Time) error {
	query := fmt.Sprintf(`UPDATE positions SET %s = ?, updated_at = ? WHERE investor_id = ? AND product_id = ?`, column)
	err := r.execOne(ctx, "set "+column, query, value, now.Unix(), string(investorID), string(productID))
	if err != nil {
		return err
	}
	r.log.Info().
		Str("investor_id", investorID.String()).
		Str("product_id", productID.String()).
		Str("flag", column).
		Bool("value", value).
		Msg("Position flag updated")
	return nil
}

func (r *Repository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: position %w", op, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(s rowScanner) (*Position, error) {
	var (
		pos         Position
		investorID  string
		productID   string
		lastAccrual sql.NullInt64
		batchID     sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	err := s.Scan(&pos.ID, &investorID, &productID, &pos.Principal, &pos.Units, &pos.AccruedIncome,
		&pos.ReservedAmount, &lastAccrual, &pos.ContractSigned, &pos.Approved, &batchID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	pos.InvestorID = domain.InvestorID(investorID)
	pos.ProductID = domain.ProductID(productID)
	if lastAccrual.Valid {
		t := time.Unix(lastAccrual.Int64, 0).UTC()
		pos.LastAccrualAt = &t
	}
	pos.ImportBatchID = batchID.String
	pos.CreatedAt = time.Unix(createdAt, 0).UTC()
	pos.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &pos, nil
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
