package worker

import (
	"context"
	"errors"
	"testing"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReconciler_ReportsViolations(t *testing.T) {
	ctrl := gomock.NewController(t)
	balances := mocks.NewMockBalanceRepository(ctrl)
	ledger := mocks.NewMockLedgerService(ctrl)

	good := domain.MerchantBalance{MerchantID: uuid.New(), Currency: domain.CurrencyETH}
	bad := domain.MerchantBalance{MerchantID: uuid.New(), Currency: domain.CurrencySOL}
	broken := domain.MerchantBalance{MerchantID: uuid.New(), Currency: domain.CurrencyBNB}
	balances.EXPECT().ListAll(gomock.Any()).Return([]domain.MerchantBalance{good, bad, broken}, nil)

	ledger.EXPECT().Reconcile(gomock.Any(), good.MerchantID, good.Currency).Return(&domain.Reconciliation{
		MerchantID:   good.MerchantID,
		Currency:     good.Currency,
		BalanceTotal: decimal.NewFromInt(10),
		LedgerTotal:  decimal.NewFromInt(10),
		Consistent:   true,
	}, nil)
	ledger.EXPECT().Reconcile(gomock.Any(), bad.MerchantID, bad.Currency).Return(&domain.Reconciliation{
		MerchantID:   bad.MerchantID,
		Currency:     bad.Currency,
		BalanceTotal: decimal.NewFromInt(12),
		LedgerTotal:  decimal.NewFromInt(10),
	}, nil)
	ledger.EXPECT().Reconcile(gomock.Any(), broken.MerchantID, broken.Currency).Return(nil, errors.New("db down"))

	r := NewReconciler(balances, ledger, "0 3 * * *", zerolog.Nop())
	violations, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, bad.MerchantID, violations[0].MerchantID)
	assert.True(t, violations[0].Drift().Equal(decimal.NewFromInt(2)))
}

func TestReconciler_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	balances := mocks.NewMockBalanceRepository(ctrl)
	balances.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("db down"))

	r := NewReconciler(balances, mocks.NewMockLedgerService(ctrl), "0 3 * * *", zerolog.Nop())
	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestReconciler_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewReconciler(mocks.NewMockBalanceRepository(ctrl), mocks.NewMockLedgerService(ctrl), "0 3 * * *", zerolog.Nop())
	require.NoError(t, r.Start())
	r.Stop()
}
