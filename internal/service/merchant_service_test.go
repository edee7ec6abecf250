package service

import (
	"context"
	"errors"
	"testing"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/internal/core/ports/mocks"
	"crypto-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupMerchantService(t *testing.T) (*MerchantServiceImpl, *mocks.MockMerchantRepository, *mocks.MockVault) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockMerchantRepository(ctrl)
	mockVault := mocks.NewMockVault(ctrl)
	return NewMerchantService(mockRepo, mockVault, NewFeeCalculator(), newTestLogger()), mockRepo, mockVault
}

func TestMerchantService_GetProfile_Success(t *testing.T) {
	svc, mockRepo, _ := setupMerchantService(t)

	merchantID := uuid.New()
	webhookURL := "https://example.com/webhook"
	mockRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{
		ID:         merchantID,
		Username:   "testuser",
		Name:       "Test Shop",
		WebhookURL: &webhookURL,
		Status:     domain.MerchantStatusActive,
	}, nil)

	profile, err := svc.GetProfile(context.Background(), merchantID)
	require.NoError(t, err)
	assert.Equal(t, merchantID, profile.ID)
	assert.Equal(t, "testuser", profile.Username)
	assert.Equal(t, "Test Shop", profile.Name)
	assert.Equal(t, &webhookURL, profile.WebhookURL)
}

func TestMerchantService_GetProfile_NotFound(t *testing.T) {
	svc, mockRepo, _ := setupMerchantService(t)

	mockRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := svc.GetProfile(context.Background(), uuid.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeMerchantNotFound))
}

func TestMerchantService_UpdateSettings(t *testing.T) {
	svc, mockRepo, _ := setupMerchantService(t)

	merchantID := uuid.New()
	mockRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{
		ID:           merchantID,
		Destinations: map[domain.Currency]string{domain.CurrencyBNB: "0x00000000000000000000000000000000000000aa"},
	}, nil)
	mockRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

	newURL := "https://new.example.com/hook"
	pct := dec("1.25")
	pays := true
	m, err := svc.UpdateSettings(context.Background(), merchantID, ports.MerchantSettings{
		WebhookURL:      &newURL,
		FeePercentage:   &pct,
		CustomerPaysFee: &pays,
		Destinations: map[domain.Currency]string{
			domain.CurrencyUSDTSPL: "So11111111111111111111111111111111111111112",
			domain.CurrencyBNB:     "",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, newURL, *m.WebhookURL)
	assert.Equal(t, "1.25", m.FeePercentage.String())
	assert.True(t, m.CustomerPaysFee)
	assert.Equal(t, "So11111111111111111111111111111111111111112", m.Destinations[domain.CurrencyUSDTSPL])
	_, stillThere := m.Destinations[domain.CurrencyBNB]
	assert.False(t, stillThere)
}

func TestMerchantService_UpdateSettings_Rejects(t *testing.T) {
	badURL := "ftp://example.com"
	highFee := dec("7.5")
	cases := map[string]ports.MerchantSettings{
		"webhook url":      {WebhookURL: &badURL},
		"fee out of range": {FeePercentage: &highFee},
		"bad destination":  {Destinations: map[domain.Currency]string{domain.CurrencyETH: "not-an-address"}},
		"unknown currency": {Destinations: map[domain.Currency]string{"DOGE": "D8vFz4p1L37jdg47HXKtSHA5uYLYxbGgPD"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			svc, mockRepo, _ := setupMerchantService(t)
			mockRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(&domain.Merchant{ID: uuid.New()}, nil)

			_, err := svc.UpdateSettings(context.Background(), uuid.New(), req)
			assert.Error(t, err)
		})
	}
}

func TestMerchantService_RotateWebhookSecret(t *testing.T) {
	svc, mockRepo, mockVault := setupMerchantService(t)

	merchantID := uuid.New()
	mockRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{ID: merchantID, WebhookSecret: "old"}, nil)
	mockVault.EXPECT().Encrypt(gomock.Any()).Return("encrypted-new-secret", nil)
	mockRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *domain.Merchant) error {
		assert.Equal(t, "encrypted-new-secret", m.WebhookSecret)
		return nil
	})

	secret, err := svc.RotateWebhookSecret(context.Background(), merchantID)
	require.NoError(t, err)
	assert.Len(t, secret, 64)
}

func TestMerchantService_RotateWebhookSecret_EncryptError(t *testing.T) {
	svc, mockRepo, mockVault := setupMerchantService(t)

	merchantID := uuid.New()
	mockRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{ID: merchantID}, nil)
	mockVault.EXPECT().Encrypt(gomock.Any()).Return("", apperror.ErrEncryption(errors.New("encrypt failed")))

	_, err := svc.RotateWebhookSecret(context.Background(), merchantID)
	assert.Error(t, err)
}
