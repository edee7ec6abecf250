package postgres

import (
	"context"
	"fmt"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository. Entries are only ever inserted.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts one entry.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, merchant_id, currency, kind, amount, release_mode, net_change, reason, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var mode *string
	if e.ReleaseMode != nil {
		m := string(*e.ReleaseMode)
		mode = &m
	}

	_, err := on(r.pool, tx).Exec(ctx, query,
		e.ID, e.MerchantID, string(e.Currency), string(e.Kind), e.Amount.String(), mode,
		e.NetChange.String(), e.Reason, e.Reference, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// List returns a merchant's entries, newest first.
func (r *LedgerRepo) List(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	where := `WHERE merchant_id = $1`
	args := []any{params.MerchantID}
	if params.Currency != nil {
		args = append(args, string(*params.Currency))
		where += fmt.Sprintf(" AND currency = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	query := fmt.Sprintf(`SELECT id, merchant_id, currency, kind, amount::text, release_mode, net_change::text,
		reason, reference, created_at
		FROM ledger_entries %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e                                 domain.LedgerEntry
			currency, kind, amount, netChange string
			mode                              *string
		)
		if err := rows.Scan(&e.ID, &e.MerchantID, &currency, &kind, &amount, &mode, &netChange,
			&e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Currency = domain.Currency(currency)
		e.Kind = domain.EntryKind(kind)
		if mode != nil {
			m := domain.ReleaseMode(*mode)
			e.ReleaseMode = &m
		}
		if err := parseNumerics(numeric(&e.Amount, amount), numeric(&e.NetChange, netChange)); err != nil {
			return nil, 0, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, total, nil
}

// SumNetChange returns the signed total of all entries for the pair.
func (r *LedgerRepo) SumNetChange(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(net_change), 0)::text FROM ledger_entries WHERE merchant_id = $1 AND currency = $2`

	var sum string
	if err := r.pool.QueryRow(ctx, query, merchantID, string(currency)).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger entries: %w", err)
	}
	return parseDecimal(sum)
}
