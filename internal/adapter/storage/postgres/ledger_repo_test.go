package postgres

import (
	"context"
	"testing"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	mode := domain.ReleaseComplete
	e := &domain.LedgerEntry{
		ID:          uuid.New(),
		MerchantID:  uuid.New(),
		Currency:    domain.CurrencyETH,
		Kind:        domain.EntryRelease,
		Amount:      decimal.RequireFromString("0.25"),
		ReleaseMode: &mode,
		NetChange:   decimal.RequireFromString("-0.25"),
		Reason:      "withdrawal_completed",
		Reference:   uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(e.ID, e.MerchantID, "ETH", "RELEASE", "0.25", strPtr("COMPLETE"), "-0.25",
			e.Reason, e.Reference, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Append(context.Background(), tx, e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	merchantID := uuid.New()
	currency := domain.CurrencyETH
	now := time.Now().UTC()

	cols := []string{"id", "merchant_id", "currency", "kind", "amount", "release_mode", "net_change", "reason", "reference", "created_at"}
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(merchantID, "ETH").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT .+ FROM ledger_entries WHERE merchant_id .+ AND currency").
		WithArgs(merchantID, "ETH", 20, 0).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.New(), merchantID, "ETH", "RESERVE", "1", nil, "0", "withdrawal_requested", "w-1", now).
			AddRow(uuid.New(), merchantID, "ETH", "CREDIT", "1", nil, "1", "payment_settled", "p-1", now))

	entries, total, err := repo.List(context.Background(), ports.LedgerListParams{
		MerchantID: merchantID, Currency: &currency, Page: 1, PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryReserve, entries[0].Kind)
	assert.Nil(t, entries[0].ReleaseMode)
	assert.True(t, entries[1].NetChange.Equal(decimal.NewFromInt(1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_SumNetChange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	merchantID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(merchantID, "SOL").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("12.000000001"))

	sum, err := repo.SumNetChange(context.Background(), merchantID, domain.CurrencySOL)
	require.NoError(t, err)
	assert.Equal(t, "12.000000001", sum.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
