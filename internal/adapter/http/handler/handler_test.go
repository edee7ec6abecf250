package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto-settlement/internal/adapter/http/middleware"
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/internal/core/ports/mocks"
	"crypto-settlement/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newContext builds a request context as JWTAuth would leave it. A nil
// merchantID means the caller is anonymous.
func newContext(method, path string, body interface{}, merchantID *uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	if merchantID != nil {
		c.Set(middleware.CtxMerchantID, *merchantID)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

// --- Auth ---

func TestRegister_ReturnsSecretOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	authSvc := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(authSvc)

	merchant := &domain.Merchant{ID: uuid.New(), Username: "shop", Name: "Shop", Role: domain.RoleMerchant}
	authSvc.EXPECT().Register(gomock.Any(), ports.RegisterRequest{
		Username:     "shop",
		Password:     "password123",
		MerchantName: "Shop",
	}).Return(&ports.RegisterResponse{Merchant: merchant, WebhookSecret: "whsec_abc"}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username":      "shop",
		"password":      "password123",
		"merchant_name": "Shop",
	}, nil)
	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "whsec_abc", data["webhook_secret"])
	m := data["merchant"].(map[string]interface{})
	assert.Equal(t, merchant.ID.String(), m["id"])
	assert.NotContains(t, m, "password_hash")
}

func TestRegister_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAuthHandler(mocks.NewMockAuthService(ctrl))

	c, w := newContext(http.MethodPost, "/api/v1/auth/register", "{}", nil)
	h.Register(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username":      "shop",
		"password":      "password123",
		"merchant_name": "Shop",
		"webhook_url":   "ftp://shop.example",
	}, nil)
	h.Register(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_UsernameTaken(t *testing.T) {
	ctrl := gomock.NewController(t)
	authSvc := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(authSvc)
	authSvc.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrUsernameExists())

	c, w := newContext(http.MethodPost, "/", map[string]string{
		"username":      "taken",
		"password":      "password123",
		"merchant_name": "Shop",
	}, nil)
	h.Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin(t *testing.T) {
	ctrl := gomock.NewController(t)
	authSvc := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(authSvc)

	expiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	authSvc.EXPECT().Login(gomock.Any(), "shop", "password123").Return("jwt-token", expiry, nil)
	authSvc.EXPECT().Login(gomock.Any(), "shop", "wrongpass").Return("", time.Time{}, apperror.ErrInvalidCredentials())

	c, w := newContext(http.MethodPost, "/", map[string]string{"username": "shop", "password": "password123"}, nil)
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "jwt-token", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])

	c, w = newContext(http.MethodPost, "/", map[string]string{"username": "shop", "password": "wrongpass"}, nil)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	rdb := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()
	rdb.EXPECT().Name().Return("redis").AnyTimes()

	pg.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)
	rdb.EXPECT().Ping(gomock.Any()).Return(nil)
	rdb.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	c, w := newContext(http.MethodGet, "/health", nil, nil)
	HealthCheck(pg, rdb)(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodGet, "/health", nil, nil)
	HealthCheck(pg, rdb)(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

// --- Payments ---

func samplePayment(merchantID uuid.UUID) *domain.Payment {
	return &domain.Payment{
		ID:                    uuid.New(),
		MerchantID:            merchantID,
		Currency:              domain.CurrencyUSDTETH,
		RequestedAmount:       decimal.NewFromInt(100),
		CustomerAmount:        decimal.RequireFromString("101.5"),
		DepositAddress:        "0xdeposit",
		Status:                domain.PaymentStatusPending,
		RequiredConfirmations: 12,
		ExpiresAt:             time.Date(2026, 6, 1, 0, 15, 0, 0, time.UTC),
	}
}

func TestCreatePayment_WithInstructions(t *testing.T) {
	ctrl := gomock.NewController(t)
	paymentSvc := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(paymentSvc)

	merchantID := uuid.New()
	payment := samplePayment(merchantID)
	paymentSvc.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.CreatePaymentRequest) (*domain.Payment, error) {
			assert.Equal(t, merchantID, req.MerchantID)
			assert.Equal(t, domain.CurrencyUSDTETH, req.Currency)
			require.NotNil(t, req.Amount)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(100)))
			assert.Nil(t, req.AmountUSD)
			assert.Equal(t, "order-7", req.IdempotencyKey)
			return payment, nil
		})

	c, w := newContext(http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"currency": "usdt_erc20",
		"amount":   "100",
	}, &merchantID)
	c.Request.Header.Set(middleware.HeaderIdempotencyKey, "order-7")
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, payment.ID.String(), data["id"])
	instr := data["instructions"].(map[string]interface{})
	assert.Equal(t, "0xdeposit", instr["address"])
	assert.Equal(t, "101.5", instr["amount"])
	assert.Equal(t, "USDT", instr["symbol"])
	assert.Equal(t, string(domain.NetworkEthereum), instr["network"])
}

func TestCreatePayment_AmountRules(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewPaymentHandler(mocks.NewMockPaymentService(ctrl))
	merchantID := uuid.New()

	bodies := []map[string]interface{}{
		{"currency": "ETH"},
		{"currency": "ETH", "amount": "1", "amount_usd": "100"},
		{"currency": "DOGE", "amount": "1"},
		{"currency": "ETH", "amount": "1", "expiration_minutes": 2},
	}
	for _, body := range bodies {
		c, w := newContext(http.MethodPost, "/api/v1/payments", body, &merchantID)
		h.Create(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
	}
}

func TestCreatePayment_RequiresAuth(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewPaymentHandler(mocks.NewMockPaymentService(ctrl))

	c, w := newContext(http.MethodPost, "/api/v1/payments", map[string]interface{}{"currency": "ETH", "amount": "1"}, nil)
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	paymentSvc := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(paymentSvc)
	merchantID := uuid.New()
	payment := samplePayment(merchantID)

	paymentSvc.EXPECT().Get(gomock.Any(), merchantID, payment.ID).Return(payment, nil)
	c, w := newContext(http.MethodGet, "/", nil, &merchantID)
	c.Params = gin.Params{{Key: "id", Value: payment.ID.String()}}
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	missing := uuid.New()
	paymentSvc.EXPECT().Get(gomock.Any(), merchantID, missing).Return(nil, apperror.ErrPaymentNotFound())
	c, w = newContext(http.MethodGet, "/", nil, &merchantID)
	c.Params = gin.Params{{Key: "id", Value: missing.String()}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newContext(http.MethodGet, "/", nil, &merchantID)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPayments_StatusFilterAndMeta(t *testing.T) {
	ctrl := gomock.NewController(t)
	paymentSvc := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(paymentSvc)
	merchantID := uuid.New()

	confirmed := domain.PaymentStatusConfirmed
	paymentSvc.EXPECT().List(gomock.Any(), ports.PaymentListParams{
		MerchantID: merchantID,
		Status:     &confirmed,
		Page:       3,
		PageSize:   10,
	}).Return([]domain.Payment{*samplePayment(merchantID)}, int64(21), nil)

	c, w := newContext(http.MethodGet, "/api/v1/payments?status=confirmed&page=3&page_size=10", nil, &merchantID)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
		Meta map[string]float64       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, float64(21), resp.Meta["total"])
	assert.Equal(t, float64(20), resp.Meta["offset"])
}

func TestPayPage_IsPublic(t *testing.T) {
	ctrl := gomock.NewController(t)
	paymentSvc := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(paymentSvc)

	id := uuid.New()
	paymentSvc.EXPECT().PaymentPage(gomock.Any(), id).Return(&ports.PaymentPage{
		PaymentID:      id,
		Currency:       domain.CurrencySOL,
		Network:        domain.NetworkSolana,
		Symbol:         "SOL",
		DepositAddress: "So1anaAddr",
		Amount:         decimal.RequireFromString("2.5"),
		Status:         domain.PaymentStatusConfirming,
	}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/pay/"+id.String(), nil, nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.PayPage(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "So1anaAddr", data["deposit_address"])
	assert.Equal(t, "CONFIRMING", data["status"])
	assert.NotContains(t, data, "merchant_id")
}

// --- Dashboard ---

func TestBalances(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewDashboardHandler(ledgerSvc)
	merchantID := uuid.New()

	ledgerSvc.EXPECT().Summary(gomock.Any(), merchantID).Return(&domain.BalanceSummary{
		MerchantID: merchantID,
		Balances: []domain.BalanceSnapshot{{
			Currency:  domain.CurrencyETH,
			Network:   domain.NetworkEthereum,
			Available: decimal.NewFromInt(2),
			Reserved:  decimal.NewFromInt(1),
		}},
		TotalUSD: decimal.NewFromInt(6000),
	}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/balances", nil, &merchantID)
	h.Balances(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "6000", decodeData(t, w)["total_usd"])
}

func TestLedger_CurrencyFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewDashboardHandler(ledgerSvc)
	merchantID := uuid.New()

	sol := domain.CurrencySOL
	ledgerSvc.EXPECT().History(gomock.Any(), ports.LedgerListParams{
		MerchantID: merchantID,
		Currency:   &sol,
		Page:       1,
		PageSize:   defaultPageSize,
	}).Return([]domain.LedgerEntry{}, int64(0), nil)

	c, w := newContext(http.MethodGet, "/api/v1/ledger?currency=sol", nil, &merchantID)
	h.Ledger(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodGet, "/api/v1/ledger?currency=XRP", nil, &merchantID)
	h.Ledger(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Withdrawals ---

func TestCreateWithdrawal(t *testing.T) {
	ctrl := gomock.NewController(t)
	withdrawalSvc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(withdrawalSvc)
	merchantID := uuid.New()

	withdrawalSvc.EXPECT().Request(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.WithdrawalRequest) (*domain.Withdrawal, error) {
			assert.Equal(t, merchantID, req.MerchantID)
			assert.Equal(t, domain.CurrencyUSDTBEP20, req.Currency)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(50)))
			assert.Equal(t, "0xmerchant", req.DestinationAddress)
			return &domain.Withdrawal{ID: uuid.New(), Status: domain.WithdrawalStatusPending}, nil
		})

	c, w := newContext(http.MethodPost, "/api/v1/withdrawals", map[string]interface{}{
		"currency":            "USDT_BEP20",
		"amount":              50,
		"destination_address": " 0xmerchant ",
	}, &merchantID)
	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateWithdrawal_InsufficientBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	withdrawalSvc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(withdrawalSvc)
	merchantID := uuid.New()

	withdrawalSvc.EXPECT().Request(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientBalance())

	c, w := newContext(http.MethodPost, "/api/v1/withdrawals", map[string]interface{}{
		"currency":            "ETH",
		"amount":              "5",
		"destination_address": "0xmerchant",
	}, &merchantID)
	h.Create(c)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, apperror.CodeInsufficientBalance, decodeErrorCode(t, w))
}

func TestCancelWithdrawal_WrongState(t *testing.T) {
	ctrl := gomock.NewController(t)
	withdrawalSvc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(withdrawalSvc)
	merchantID, id := uuid.New(), uuid.New()

	withdrawalSvc.EXPECT().Cancel(gomock.Any(), merchantID, id).Return(nil, apperror.ErrInvalidWithdrawalState("already submitted"))

	c, w := newContext(http.MethodPost, "/", nil, &merchantID)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Cancel(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListWithdrawals_ScopedToMerchant(t *testing.T) {
	ctrl := gomock.NewController(t)
	withdrawalSvc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(withdrawalSvc)
	merchantID := uuid.New()

	withdrawalSvc.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
			require.NotNil(t, p.MerchantID)
			assert.Equal(t, merchantID, *p.MerchantID)
			assert.Nil(t, p.Status)
			return nil, 0, nil
		})

	c, w := newContext(http.MethodGet, "/api/v1/withdrawals", nil, &merchantID)
	h.List(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectWithdrawal_RequiresReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	withdrawalSvc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(withdrawalSvc)
	adminID, id := uuid.New(), uuid.New()

	c, w := newContext(http.MethodPost, "/", "{}", &adminID)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	withdrawalSvc.EXPECT().Reject(gomock.Any(), adminID, id, "destination on sanctions list").
		Return(&domain.Withdrawal{ID: id, Status: domain.WithdrawalStatusRejected}, nil)
	c, w = newContext(http.MethodPost, "/", map[string]string{"reason": "destination on sanctions list"}, &adminID)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Reject(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Merchant settings ---

func TestUpdateSettings_MapsDestinations(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantSvc := mocks.NewMockMerchantService(ctrl)
	h := NewMerchantHandler(merchantSvc)
	merchantID := uuid.New()

	merchantSvc.EXPECT().UpdateSettings(gomock.Any(), merchantID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ uuid.UUID, s ports.MerchantSettings) (*domain.Merchant, error) {
			assert.Equal(t, "0xabc", s.Destinations[domain.CurrencyETH])
			assert.Equal(t, "", s.Destinations[domain.CurrencyUSDTSPL])
			assert.Contains(t, s.Destinations, domain.CurrencyUSDTSPL)
			require.NotNil(t, s.FeePercentage)
			assert.True(t, s.FeePercentage.Equal(decimal.RequireFromString("1.5")))
			assert.Nil(t, s.WebhookURL)
			return &domain.Merchant{ID: merchantID}, nil
		})

	c, w := newContext(http.MethodPatch, "/api/v1/merchants/me", map[string]interface{}{
		"fee_percentage": "1.5",
		"destinations":   map[string]string{"eth": "0xabc", "USDT_SPL": ""},
	}, &merchantID)
	h.UpdateSettings(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRotateWebhookSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantSvc := mocks.NewMockMerchantService(ctrl)
	h := NewMerchantHandler(merchantSvc)
	merchantID := uuid.New()

	merchantSvc.EXPECT().RotateWebhookSecret(gomock.Any(), merchantID).Return("whsec_new", nil)

	c, w := newContext(http.MethodPost, "/", nil, &merchantID)
	h.RotateWebhookSecret(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "whsec_new", decodeData(t, w)["webhook_secret"])
}

// --- Router ---

type routerMocks struct {
	token       *mocks.MockTokenService
	withdrawals *mocks.MockWithdrawalService
	payments    *mocks.MockPaymentService
}

func newTestRouter(t *testing.T) (*gin.Engine, routerMocks) {
	ctrl := gomock.NewController(t)
	m := routerMocks{
		token:       mocks.NewMockTokenService(ctrl),
		withdrawals: mocks.NewMockWithdrawalService(ctrl),
		payments:    mocks.NewMockPaymentService(ctrl),
	}
	r := SetupRouter(RouterDeps{
		AuthSvc:       mocks.NewMockAuthService(ctrl),
		PaymentSvc:    m.payments,
		LedgerSvc:     mocks.NewMockLedgerService(ctrl),
		WithdrawalSvc: m.withdrawals,
		MerchantSvc:   mocks.NewMockMerchantService(ctrl),
		TokenSvc:      m.token,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Logger: zerolog.Nop(),
	})
	return r, m
}

func TestRouter_AdminRoutesNeedAdminRole(t *testing.T) {
	r, m := newTestRouter(t)
	merchantID, adminID, wdID := uuid.New(), uuid.New(), uuid.New()

	m.token.EXPECT().Validate("merchant-token").Return(&ports.TokenClaims{MerchantID: merchantID, Role: domain.RoleMerchant}, nil)
	m.token.EXPECT().Validate("admin-token").Return(&ports.TokenClaims{MerchantID: adminID, Role: domain.RoleAdmin}, nil)
	m.withdrawals.EXPECT().Approve(gomock.Any(), adminID, wdID).Return(&domain.Withdrawal{ID: wdID, Status: domain.WithdrawalStatusApproved}, nil)

	path := "/api/v1/admin/withdrawals/" + wdID.String() + "/approve"

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", "Bearer merchant-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	r, m := newTestRouter(t)
	id := uuid.New()
	m.payments.EXPECT().PaymentPage(gomock.Any(), id).Return(&ports.PaymentPage{PaymentID: id}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pay/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/balances", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}
