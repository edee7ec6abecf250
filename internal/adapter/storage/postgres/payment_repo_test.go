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

func newTestPayment() *domain.Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Payment{
		ID:                    uuid.New(),
		MerchantID:            uuid.New(),
		Currency:              domain.CurrencyUSDTETH,
		RequestedAmount:       decimal.RequireFromString("100"),
		CustomerAmount:        decimal.RequireFromString("100.75"),
		ProcessingFee:         decimal.RequireFromString("0.75"),
		MerchantAmount:        decimal.RequireFromString("100"),
		FeePercentage:         decimal.RequireFromString("0.75"),
		CustomerPaysFee:       true,
		DepositAddress:        "0xdeposit",
		MerchantDestination:   "0xmerchant",
		Status:                domain.PaymentStatusPending,
		RequiredConfirmations: 12,
		IdempotencyKey:        strPtr("order-1"),
		CreatedAt:             now,
		ExpiresAt:             now.Add(15 * time.Minute),
	}
}

func paymentColumns() []string {
	return []string{"id", "merchant_id", "currency", "requested_amount", "customer_amount",
		"processing_fee", "merchant_amount", "fee_percentage", "customer_pays_fee",
		"deposit_address", "merchant_destination", "status", "confirmations", "required_confirmations",
		"inbound_tx_ref", "received_amount", "forward_tx_ref", "forward_raw_tx", "forward_claimed_at",
		"description", "idempotency_key",
		"created_at", "expires_at", "confirmed_at", "forwarded_at"}
}

func addPaymentRow(rows *pgxmock.Rows, p *domain.Payment) *pgxmock.Rows {
	return rows.AddRow(
		p.ID, p.MerchantID, string(p.Currency), p.RequestedAmount.String(), p.CustomerAmount.String(),
		p.ProcessingFee.String(), p.MerchantAmount.String(), p.FeePercentage.String(), p.CustomerPaysFee,
		p.DepositAddress, p.MerchantDestination, string(p.Status), p.Confirmations, p.RequiredConfirmations,
		p.InboundTxRef, p.ReceivedAmount.String(), p.ForwardTxRef, p.ForwardRawTx, p.ForwardClaimedAt,
		p.Description, p.IdempotencyKey,
		p.CreatedAt, p.ExpiresAt, p.ConfirmedAt, p.ForwardedAt,
	)
}

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.MerchantID, "USDT_ETH", "100", "100.75", "0.75", "100", "0.75", true,
			"0xdeposit", "0xmerchant", "PENDING", 0, 12, p.Description, p.IdempotencyKey, p.CreatedAt, p.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	p.Status = domain.PaymentStatusConfirming
	p.InboundTxRef = strPtr("0xinbound")
	p.ReceivedAmount = decimal.RequireFromString("100.75")
	p.Confirmations = 4

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(p.ID).
		WillReturnRows(addPaymentRow(pgxmock.NewRows(paymentColumns()), p))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.CurrencyUSDTETH, got.Currency)
	assert.Equal(t, domain.PaymentStatusConfirming, got.Status)
	assert.Equal(t, 4, got.Confirmations)
	assert.True(t, got.CustomerAmount.Equal(p.CustomerAmount))
	assert.True(t, got.ReceivedAmount.Equal(p.ReceivedAmount))
	require.NotNil(t, got.InboundTxRef)
	assert.Equal(t, "0xinbound", *got.InboundTxRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByIdempotencyKey_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	merchantID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM payments WHERE merchant_id .+ idempotency_key").
		WithArgs(merchantID, "order-1").
		WillReturnRows(pgxmock.NewRows(paymentColumns()))

	got, err := repo.GetByIdempotencyKey(context.Background(), merchantID, "order-1")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_List_WithStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	status := domain.PaymentStatusPending

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(p.MerchantID, "PENDING").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(21)))
	mock.ExpectQuery("SELECT .+ FROM payments WHERE merchant_id .+ AND status .+ ORDER BY created_at DESC LIMIT").
		WithArgs(p.MerchantID, "PENDING", 20, 20).
		WillReturnRows(addPaymentRow(pgxmock.NewRows(paymentColumns()), p))

	items, total, err := repo.List(context.Background(), ports.PaymentListParams{
		MerchantID: p.MerchantID, Status: &status, Page: 2, PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), total)
	require.Len(t, items, 1)
	assert.Equal(t, p.ID, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	a, b := newTestPayment(), newTestPayment()
	b.Status = domain.PaymentStatusConfirmed

	rows := pgxmock.NewRows(paymentColumns())
	addPaymentRow(rows, a)
	addPaymentRow(rows, b)
	mock.ExpectQuery("SELECT .+ FROM payments WHERE status IN").
		WithArgs(500).
		WillReturnRows(rows)

	items, err := repo.ListActive(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.PaymentStatusConfirmed, items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Transition(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fee := &domain.FeeBreakdown{
		ProcessingFee:  decimal.RequireFromString("0.6"),
		MerchantAmount: decimal.RequireFromString("79.4"),
	}
	received := decimal.RequireFromString("80")

	t.Run("applied", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPaymentRepo(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE payments SET").
			WithArgs("CONFIRMED", (*int)(nil), (*string)(nil), strPtr("80"), strPtr("0.6"), strPtr("79.4"),
				(*string)(nil), at, id, "CONFIRMING").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.Transition(context.Background(), nil, id, domain.PaymentTransition{
			From: domain.PaymentStatusConfirming, To: domain.PaymentStatusConfirmed,
			ReceivedAmount: &received, Fee: fee, At: at,
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status moved on", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPaymentRepo(mock)
		id := uuid.New()
		ref := "0xforward"

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE payments SET").
			WithArgs("FORWARDED", (*int)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
				&ref, at, id, "CONFIRMED").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		tx, err := mock.Begin(context.Background())
		require.NoError(t, err)

		ok, err := repo.Transition(context.Background(), tx, id, domain.PaymentTransition{
			From: domain.PaymentStatusConfirmed, To: domain.PaymentStatusForwarded,
			ForwardTxRef: &ref, At: at,
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepo_RecordConfirmations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE payments SET confirmations = GREATEST").
		WithArgs(id, 3).
		WillReturnRows(pgxmock.NewRows([]string{"confirmations"}).AddRow(5))

	stored, err := repo.RecordConfirmations(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, stored)

	mock.ExpectQuery("UPDATE payments SET confirmations = GREATEST").
		WithArgs(id, 7).
		WillReturnRows(pgxmock.NewRows([]string{"confirmations"}))

	stored, err = repo.RecordConfirmations(context.Background(), id, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ClaimForward(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()
	signed := domain.SignedTransfer{Currency: domain.CurrencyETH, TxRef: "0xout", Raw: "0xf86c"}

	mock.ExpectExec(`UPDATE payments SET forward_tx_ref = \$2, forward_raw_tx = \$3, forward_claimed_at = \$4\s+WHERE id = \$1 AND status = 'CONFIRMED' AND forward_tx_ref IS NULL`).
		WithArgs(id, "0xout", "0xf86c", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE payments SET forward_tx_ref").
		WithArgs(id, "0xother", "0x01", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.ClaimForward(context.Background(), id, signed, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimForward(context.Background(), id, domain.SignedTransfer{TxRef: "0xother", Raw: "0x01"}, at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ReleaseForward(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()

	mock.ExpectExec(`UPDATE payments SET forward_tx_ref = NULL.+WHERE id = \$1 AND status = 'CONFIRMED' AND forward_tx_ref = \$2`).
		WithArgs(id, "0xout").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.ReleaseForward(context.Background(), id, "0xout")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID_ScansForwardClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	p.Status = domain.PaymentStatusConfirmed
	claimedAt := p.CreatedAt.Add(time.Minute)
	p.ForwardTxRef = strPtr("0xout")
	p.ForwardRawTx = strPtr("0xf86c")
	p.ForwardClaimedAt = &claimedAt

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(p.ID).
		WillReturnRows(addPaymentRow(pgxmock.NewRows(paymentColumns()), p))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HasForwardClaim())
	assert.Equal(t, "0xf86c", *got.ForwardRawTx)
	assert.Equal(t, claimedAt, *got.ForwardClaimedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
