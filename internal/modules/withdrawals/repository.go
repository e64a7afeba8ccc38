package withdrawals

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

const requestColumns = `id, investor_id, product_id, requested_amount, fee_amount, net_amount, status,
	requested_at, request_day, processed_at, payout_destination, approver_id, rejection_reason`

// Repository handles withdrawal_requests persistence in fund.db.
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new withdrawal repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "withdrawals").Logger(),
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

// Insert stores a new request.
func (r *Repository) Insert(ctx context.Context, req *WithdrawalRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (id, investor_id, product_id, requested_amount, fee_amount,
			net_amount, status, requested_at, request_day, payout_destination)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, string(req.InvestorID), string(req.ProductID), req.RequestedAmount.String(), req.FeeAmount.String(),
		req.NetAmount.String(), string(req.Status), req.RequestedAt.Unix(), req.RequestDay, req.PayoutDestination)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal request %s: %w", req.ID, err)
	}
	return nil
}

// GetByID returns a request, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*WithdrawalRequest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal request %s: %w", id, err)
	}
	return req, nil
}

// ListByInvestor returns an investor's requests, newest first.
func (r *Repository) ListByInvestor(ctx context.Context, investorID domain.InvestorID, limit int) ([]WithdrawalRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests
		WHERE investor_id = ? ORDER BY requested_at DESC, id DESC LIMIT ?`, string(investorID), normalizeLimit(limit))
}

// ListPending returns the admin queue, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]WithdrawalRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests
		WHERE status = 'pending' ORDER BY requested_at ASC, id ASC LIMIT ?`, normalizeLimit(limit))
}

// CountForDay counts every request the investor created on day (YYYY-MM-DD),
// whatever its status.
func (r *Repository) CountForDay(ctx context.Context, investorID domain.InvestorID, day string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawal_requests WHERE investor_id = ? AND request_day = ?`,
		string(investorID), day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count withdrawal requests: %w", err)
	}
	return n, nil
}

// CountByStatus counts an investor's requests in the given statuses,
// excluding the request excludeID (may be empty).
func (r *Repository) CountByStatus(ctx context.Context, investorID domain.InvestorID, excludeID string, statuses ...Status) (int, error) {
	query := `SELECT COUNT(*) FROM withdrawal_requests WHERE investor_id = ? AND id != ? AND status IN (`
	args := []any{string(investorID), excludeID}
	for i, s := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(s))
	}
	query += ")"

	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count withdrawal requests by status: %w", err)
	}
	return n, nil
}

// MarkApproved moves a pending request to approved with its final fee.
// Returns domain.ErrAlreadyProcessed if the request is no longer pending.
func (r *Repository) MarkApproved(ctx context.Context, id string, fee, net decimal.Decimal, approverID string, at time.Time) error {
	return r.transition(ctx, id, `
		UPDATE withdrawal_requests SET status = 'approved', fee_amount = ?, net_amount = ?, approver_id = ?, processed_at = ?
		WHERE id = ? AND status = 'pending'
	`, fee.String(), net.String(), approverID, at.Unix(), id)
}

// MarkRejected moves a pending request to rejected.
// Returns domain.ErrAlreadyProcessed if the request is no longer pending.
func (r *Repository) MarkRejected(ctx context.Context, id, reason string, at time.Time) error {
	return r.transition(ctx, id, `
		UPDATE withdrawal_requests SET status = 'rejected', rejection_reason = ?, processed_at = ?
		WHERE id = ? AND status = 'pending'
	`, reason, at.Unix(), id)
}

func (r *Repository) transition(ctx context.Context, id, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal request %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("withdrawal request %s: %w", id, domain.ErrAlreadyProcessed)
	}
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]WithdrawalRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawal requests: %w", err)
	}
	defer rows.Close()

	out := []WithdrawalRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal requests: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(s rowScanner) (*WithdrawalRequest, error) {
	var (
		req         WithdrawalRequest
		investorID  string
		productID   string
		status      string
		requestedAt int64
		processedAt sql.NullInt64
		approverID  sql.NullString
		reason      sql.NullString
	)
	err := s.Scan(&req.ID, &investorID, &productID, &req.RequestedAmount, &req.FeeAmount, &req.NetAmount, &status,
		&requestedAt, &req.RequestDay, &processedAt, &req.PayoutDestination, &approverID, &reason)
	if err != nil {
		return nil, err
	}

	req.InvestorID = domain.InvestorID(investorID)
	req.ProductID = domain.ProductID(productID)
	req.Status = Status(status)
	req.RequestedAt = time.Unix(requestedAt, 0).UTC()
	if processedAt.Valid {
		t := time.Unix(processedAt.Int64, 0).UTC()
		req.ProcessedAt = &t
	}
	req.ApproverID = approverID.String
	req.RejectionReason = reason.String
	return &req, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
