package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	httpHandler "crypto-settlement/internal/adapter/http/handler"
	redisStorage "crypto-settlement/internal/adapter/storage/redis"
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/internal/service"
	"crypto-settlement/internal/worker"
	"crypto-settlement/pkg/logger"
	"crypto-settlement/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVaultKey      = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	merchantPayoutETH = "0x52908400098527886e0f7030069857d2e4169ee7"
	withdrawalDestETH = "0x8617e340b3d01fa5f11f306f4090fd50e238070d"
	payoutWalletETH   = "0xde709f2102306220921060314715629080e2fb77"
	adminUsername     = "operator"
	adminPassword     = "OperatorPass123!"
)

// testApp wires the real HTTP layer, services, workers and Redis stores
// (miniredis) over in-memory repositories and a scripted chain.
type testApp struct {
	server *httptest.Server
	redis  *miniredis.Miniredis

	chain       *fakeChain
	balances    *inMemoryBalanceRepo
	payments    *inMemoryPaymentRepo
	webhookLogs *inMemoryWebhookLogRepo

	ledger      *service.LedgerServiceImpl
	paymentSvc  *service.PaymentServiceImpl
	withdrawals *service.WithdrawalServiceImpl
	notifier    *service.WebhookNotifier

	monitor    *worker.PaymentMonitor
	processor  *worker.WithdrawalProcessor
	reconciler *worker.Reconciler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	log := logger.New("warn", false)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	vault, err := service.NewAESVaultFromString(testVaultKey)
	require.NoError(t, err)
	prices, err := service.NewStaticPriceOracle(map[string]string{"ETH": "2000", "SOL": "150"})
	require.NoError(t, err)
	tokenSvc := service.NewJWTTokenService("integration-jwt-secret-32-bytes!", time.Hour, "crypto-settlement")
	fees := service.NewFeeCalculator()

	merchantRepo := newInMemoryMerchantRepo()
	paymentRepo := newInMemoryPaymentRepo()
	depositRepo := newInMemoryDepositRepo()
	balanceRepo := newInMemoryBalanceRepo()
	ledgerRepo := newInMemoryLedgerRepo()
	withdrawalRepo := newInMemoryWithdrawalRepo()
	webhookLogs := newInMemoryWebhookLogRepo()
	transactor := newInMemoryTransactor(true)

	eth := newFakeChain(domain.NetworkEthereum)
	chains := fakeRegistry{domain.NetworkEthereum: eth, domain.NetworkSolana: newFakeChain(domain.NetworkSolana)}

	authSvc := service.NewAuthService(merchantRepo, service.NewArgon2HashService(), vault, tokenSvc, service.AuthDefaults{
		FeePercentage: decimal.NewFromInt(1),
	}, log)
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), adminUsername, adminPassword))

	merchantSvc := service.NewMerchantService(merchantRepo, vault, fees, log)
	deposits := service.NewDepositService(depositRepo, service.NewChainKeyGenerator(), vault, log)
	ledgerSvc := service.NewLedgerService(balanceRepo, ledgerRepo, transactor, prices, m, log)
	paymentSvc := service.NewPaymentService(paymentRepo, merchantRepo, deposits, chains, redisStorage.NewIdempotencyCache(rdb), prices, fees, service.PaymentOptions{
		DefaultExpiry: 30 * time.Minute,
		Confirmations: domain.ConfirmationPolicy{domain.NetworkEthereum: 3},
	}, log)
	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, ledgerSvc, transactor, prices, service.WithdrawalOptions{
		MinAmount:               decimal.RequireFromString("0.001"),
		FeePercentage:           decimal.RequireFromString("0.5"),
		AutoApproveThresholdUSD: decimal.NewFromInt(1000),
	}, m, log)
	notifier := service.NewWebhookNotifier(merchantRepo, webhookLogs, vault, service.NewHMACSignatureService(),
		&http.Client{Timeout: 5 * time.Second}, []time.Duration{}, m, log)
	monitorSvc := service.NewMonitorService(paymentRepo, deposits, chains, ledgerSvc, transactor, fees, notifier, m, log)

	payoutKey, err := vault.Encrypt("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		PaymentSvc:     paymentSvc,
		LedgerSvc:      ledgerSvc,
		WithdrawalSvc:  withdrawalSvc,
		MerchantSvc:    merchantSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         log,
	})

	app := &testApp{
		server:      httptest.NewServer(router),
		redis:       mr,
		chain:       eth,
		balances:    balanceRepo,
		payments:    paymentRepo,
		webhookLogs: webhookLogs,
		ledger:      ledgerSvc,
		paymentSvc:  paymentSvc,
		withdrawals: withdrawalSvc,
		notifier:    notifier,
		monitor: worker.NewPaymentMonitor(paymentRepo, monitorSvc, redisStorage.NewPollLease(rdb), worker.PaymentMonitorConfig{
			Workers: 4,
		}, m, log),
		processor: worker.NewWithdrawalProcessor(withdrawalRepo, withdrawalSvc, chains, vault, worker.WithdrawalProcessorConfig{
			Schedule: "@every 1m",
			Wallets: map[domain.ChainFamily]worker.PayoutWallet{
				domain.FamilyEVM: {Address: payoutWalletETH, EncryptedKey: payoutKey},
			},
		}, log),
		reconciler: worker.NewReconciler(balanceRepo, ledgerSvc, "0 3 * * *", log),
	}
	t.Cleanup(app.close)
	return app
}

func (a *testApp) close() {
	a.notifier.Wait()
	a.server.Close()
	a.redis.Close()
}

type pageMeta struct {
	Total int64 `json:"total"`
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Meta      *pageMeta       `json:"meta"`
	ErrorCode string          `json:"error_code"`
	RequestID string          `json:"request_id"`
}

// call sends a JSON request and decodes the response envelope.
func (a *testApp) call(t *testing.T, method, path, token string, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeInto[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (a *testApp) login(t *testing.T, username, password string) string {
	t.Helper()
	status, env := a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	return decodeInto[struct {
		Token string `json:"token"`
	}](t, env).Token
}

// onboard registers a merchant, logs in and sets an ETH payout destination.
func (a *testApp) onboard(t *testing.T, username string, webhookURL string) (token, webhookSecret string) {
	t.Helper()
	status, env := a.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":      username,
		"password":      "StrongPass123!",
		"merchant_name": "Shop " + username,
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	webhookSecret = decodeInto[struct {
		WebhookSecret string `json:"webhook_secret"`
	}](t, env).WebhookSecret
	require.NotEmpty(t, webhookSecret)

	token = a.login(t, username, "StrongPass123!")

	settings := map[string]any{"destinations": map[string]string{"ETH": merchantPayoutETH}}
	if webhookURL != "" {
		settings["webhook_url"] = webhookURL
	}
	status, _ = a.call(t, http.MethodPatch, "/api/v1/merchants/me", token, settings, nil)
	require.Equal(t, http.StatusOK, status)
	return token, webhookSecret
}

type paymentView struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	DepositAddress string `json:"deposit_address"`
	CustomerAmount string `json:"customer_amount"`
	MerchantAmount string `json:"merchant_amount"`
	Confirmations  int    `json:"confirmations"`
	ForwardTxRef   string `json:"forward_tx_ref"`
	Instructions   struct {
		Network               string `json:"network"`
		Address               string `json:"address"`
		Amount                string `json:"amount"`
		RequiredConfirmations int    `json:"required_confirmations"`
	} `json:"instructions"`
}

type withdrawalView struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           string `json:"amount"`
	Fee              string `json:"fee"`
	NetAmount        string `json:"net_amount"`
	RequiresApproval bool   `json:"requires_approval"`
	TxRef            string `json:"tx_ref"`
}

type balanceView struct {
	Balances []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Reserved  string `json:"reserved"`
	} `json:"balances"`
}

func (a *testApp) ethBalance(t *testing.T, token string) (available, reserved decimal.Decimal) {
	t.Helper()
	status, env := a.call(t, http.MethodGet, "/api/v1/balances", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	for _, b := range decodeInto[balanceView](t, env).Balances {
		if b.Currency == string(domain.CurrencyETH) {
			return decimal.RequireFromString(b.Available), decimal.RequireFromString(b.Reserved)
		}
	}
	return decimal.Zero, decimal.Zero
}

// ---- Tests ----

func TestIntegration_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status       string                     `json:"status"`
		Dependencies map[string]json.RawMessage `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Dependencies, "redis")

	resp, err = http.Get(app.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_RegisterLoginAndDuplicate(t *testing.T) {
	app := newTestApp(t)
	app.onboard(t, "merchant1", "")

	status, env := app.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":      "merchant1",
		"password":      "StrongPass123!",
		"merchant_name": "Again",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, env.ErrorCode)

	status, _ = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "merchant1",
		"password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestIntegration_PaymentRequiresDestination(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.onboard(t, "merchant1", "")

	status, _ := app.call(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"currency": "SOL",
		"amount":   "2",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_PaymentRejectsDisabledNetwork(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.onboard(t, "merchant1", "")

	status, env := app.call(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"currency": "USDT_POLYGON",
		"amount":   "10",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VAL_001", env.ErrorCode)
}

func TestIntegration_PaymentIdempotentReplay(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.onboard(t, "merchant1", "")
	headers := map[string]string{"Idempotency-Key": "order-1001"}
	body := map[string]any{"currency": "ETH", "amount": "1"}

	status, env := app.call(t, http.MethodPost, "/api/v1/payments", token, body, headers)
	require.Equal(t, http.StatusCreated, status)
	first := decodeInto[paymentView](t, env)

	status, env = app.call(t, http.MethodPost, "/api/v1/payments", token, body, headers)
	require.Equal(t, http.StatusCreated, status)
	second := decodeInto[paymentView](t, env)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.DepositAddress, second.DepositAddress)

	// a different key is a different payment with its own address
	status, env = app.call(t, http.MethodPost, "/api/v1/payments", token, body, map[string]string{"Idempotency-Key": "order-1002"})
	require.Equal(t, http.StatusCreated, status)
	third := decodeInto[paymentView](t, env)
	assert.NotEqual(t, first.ID, third.ID)
	assert.NotEqual(t, first.DepositAddress, third.DepositAddress)

	status, env = app.call(t, http.MethodGet, "/api/v1/payments", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 2, env.Meta.Total)
}

func TestIntegration_PaymentsAreMerchantScoped(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.onboard(t, "alice", "")
	bob, _ := app.onboard(t, "bob", "")

	status, env := app.call(t, http.MethodPost, "/api/v1/payments", alice, map[string]any{"currency": "ETH", "amount": "1"}, nil)
	require.Equal(t, http.StatusCreated, status)
	p := decodeInto[paymentView](t, env)

	status, _ = app.call(t, http.MethodGet, "/api/v1/payments/"+p.ID, bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// the checkout page is public
	status, env = app.call(t, http.MethodGet, "/api/v1/pay/"+p.ID, "", nil, nil)
	require.Equal(t, http.StatusOK, status)
	page := decodeInto[struct {
		DepositAddress string `json:"deposit_address"`
		Status         string `json:"status"`
	}](t, env)
	assert.Equal(t, p.DepositAddress, page.DepositAddress)
	assert.Equal(t, string(domain.PaymentStatusPending), page.Status)
}

func TestIntegration_SettlementAndWithdrawalLifecycle(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]any
	)
	var webhookSecret string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, _ := strconv.ParseInt(r.Header.Get(service.HeaderTimestamp), 10, 64)
		mu.Lock()
		defer mu.Unlock()
		if !service.NewHMACSignatureService().Verify(webhookSecret, service.SigningInput(ts, body), r.Header.Get(service.HeaderSignature)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		received = append(received, payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	app := newTestApp(t)
	ctx := context.Background()
	token, secret := app.onboard(t, "merchant1", hook.URL)
	mu.Lock()
	webhookSecret = secret
	mu.Unlock()

	// 1. payment for 1 ETH, merchant absorbs the 1% fee
	status, env := app.call(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"currency":    "ETH",
		"amount":      "1",
		"description": "order #1",
	}, map[string]string{"Idempotency-Key": "order-1"})
	require.Equal(t, http.StatusCreated, status)
	p := decodeInto[paymentView](t, env)
	assert.Equal(t, string(domain.NetworkEthereum), p.Instructions.Network)
	assert.Equal(t, 3, p.Instructions.RequiredConfirmations)
	assert.True(t, decimal.RequireFromString(p.CustomerAmount).Equal(decimal.NewFromInt(1)))
	assert.True(t, decimal.RequireFromString(p.MerchantAmount).Equal(decimal.RequireFromString("0.99")))

	// 2. nothing on chain yet
	_, err := app.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentStatusPending), app.paymentStatus(t, token, p.ID))

	// 3. the customer pays; one confirmation is not enough
	app.chain.deposit(p.DepositAddress, "0xinbound", decimal.NewFromInt(1), 1)
	_, err = app.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentStatusConfirming), app.paymentStatus(t, token, p.ID))

	// 4. finality reached: confirmed, forwarded and credited in one pass
	app.chain.setConfirmations("0xinbound", 3)
	_, err = app.monitor.RunOnce(ctx)
	require.NoError(t, err)

	status, env = app.call(t, http.MethodGet, "/api/v1/payments/"+p.ID, token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	settled := decodeInto[paymentView](t, env)
	assert.Equal(t, string(domain.PaymentStatusForwarded), settled.Status)
	assert.Equal(t, 3, settled.Confirmations)
	assert.NotEmpty(t, settled.ForwardTxRef)

	sent := app.chain.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, p.DepositAddress, sent[0].From)
	assert.Equal(t, merchantPayoutETH, sent[0].To)
	assert.True(t, sent[0].Amount.Equal(decimal.RequireFromString("0.99")))

	available, reserved := app.ethBalance(t, token)
	assert.True(t, available.Equal(decimal.RequireFromString("0.99")), available.String())
	assert.True(t, reserved.IsZero())

	// a further sweep has nothing left to do
	n, err := app.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, app.chain.sent(), 1)

	// 5. 0.9 ETH is worth 1800 USD, above the auto-approve threshold
	status, env = app.call(t, http.MethodPost, "/api/v1/withdrawals", token, map[string]any{
		"currency":            "ETH",
		"amount":              "0.9",
		"destination_address": withdrawalDestETH,
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	wd := decodeInto[withdrawalView](t, env)
	assert.Equal(t, string(domain.WithdrawalStatusPending), wd.Status)
	assert.True(t, wd.RequiresApproval)
	assert.True(t, decimal.RequireFromString(wd.NetAmount).Equal(decimal.RequireFromString("0.8955")))

	available, reserved = app.ethBalance(t, token)
	assert.True(t, available.Equal(decimal.RequireFromString("0.09")), available.String())
	assert.True(t, reserved.Equal(decimal.RequireFromString("0.9")), reserved.String())

	// nothing is paid out before approval
	n, err = app.processor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 6. merchants cannot approve, the operator can
	status, _ = app.call(t, http.MethodPost, "/api/v1/admin/withdrawals/"+wd.ID+"/approve", token, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	adminToken := app.login(t, adminUsername, adminPassword)
	status, env = app.call(t, http.MethodGet, "/api/v1/admin/withdrawals?status=pending", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)

	status, env = app.call(t, http.MethodPost, "/api/v1/admin/withdrawals/"+wd.ID+"/approve", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(domain.WithdrawalStatusApproved), decodeInto[withdrawalView](t, env).Status)

	// 7. the processor broadcasts from the payout wallet and completes
	n, err = app.processor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent = app.chain.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, payoutWalletETH, sent[1].From)
	assert.Equal(t, withdrawalDestETH, sent[1].To)
	assert.True(t, sent[1].Amount.Equal(decimal.RequireFromString("0.8955")))

	status, env = app.call(t, http.MethodGet, "/api/v1/withdrawals/"+wd.ID, token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	done := decodeInto[withdrawalView](t, env)
	assert.Equal(t, string(domain.WithdrawalStatusCompleted), done.Status)
	assert.NotEmpty(t, done.TxRef)

	// completed withdrawals can no longer be cancelled
	status, _ = app.call(t, http.MethodPost, "/api/v1/withdrawals/"+wd.ID+"/cancel", token, nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	available, reserved = app.ethBalance(t, token)
	assert.True(t, available.Equal(decimal.RequireFromString("0.09")), available.String())
	assert.True(t, reserved.IsZero(), reserved.String())

	// 8. the ledger explains the balance: credit, reserve, release
	status, env = app.call(t, http.MethodGet, "/api/v1/ledger?currency=ETH", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 3, env.Meta.Total)

	violations, err := app.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)

	// 9. the merchant saw every status change, correctly signed
	app.notifier.Wait()
	mu.Lock()
	defer mu.Unlock()
	statuses := make(map[string]bool)
	for _, ev := range received {
		data, _ := ev["data"].(map[string]any)
		if s, ok := data["status"].(string); ok {
			statuses[s] = true
		}
	}
	assert.True(t, statuses[string(domain.PaymentStatusConfirming)])
	assert.True(t, statuses[string(domain.PaymentStatusConfirmed)])
	assert.True(t, statuses[string(domain.PaymentStatusForwarded)])
	assert.NotEmpty(t, app.webhookLogs.all())
}

func TestIntegration_SmallWithdrawalAutoApprovedAndCancelled(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.onboard(t, "merchant1", "")
	ctx := context.Background()

	status, env := app.call(t, http.MethodGet, "/api/v1/merchants/me", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	merchant := decodeInto[domain.Merchant](t, env)

	_, err := app.ledger.CreditAvailable(ctx, merchant.ID, domain.CurrencyETH, decimal.NewFromInt(1), "test_funding", "seed")
	require.NoError(t, err)

	// 0.1 ETH is 200 USD, below the threshold
	status, env = app.call(t, http.MethodPost, "/api/v1/withdrawals", token, map[string]any{
		"currency":            "ETH",
		"amount":              "0.1",
		"destination_address": withdrawalDestETH,
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	wd := decodeInto[withdrawalView](t, env)
	assert.Equal(t, string(domain.WithdrawalStatusApproved), wd.Status)
	assert.False(t, wd.RequiresApproval)

	status, env = app.call(t, http.MethodPost, "/api/v1/withdrawals/"+wd.ID+"/cancel", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(domain.WithdrawalStatusCancelled), decodeInto[withdrawalView](t, env).Status)

	available, reserved := app.ethBalance(t, token)
	assert.True(t, available.Equal(decimal.NewFromInt(1)), available.String())
	assert.True(t, reserved.IsZero())

	// cancelled withdrawals are never broadcast
	n, err := app.processor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, app.chain.sent())
}

func TestIntegration_WithdrawalOverBalanceRejected(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.onboard(t, "merchant1", "")

	status, env := app.call(t, http.MethodPost, "/api/v1/withdrawals", token, map[string]any{
		"currency":            "ETH",
		"amount":              "5",
		"destination_address": withdrawalDestETH,
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "BAL_001", env.ErrorCode)

	status, _ = app.call(t, http.MethodPost, "/api/v1/withdrawals", token, map[string]any{
		"currency":            "ETH",
		"amount":              "0.1",
		"destination_address": "not-an-address",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_ExpiredPaymentIsNeverSettled(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.onboard(t, "merchant1", "")
	ctx := context.Background()

	status, env := app.call(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"currency": "ETH",
		"amount":   "1",
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	p := decodeInto[paymentView](t, env)

	app.payments.setExpiry(uuid.MustParse(p.ID), time.Now().UTC().Add(-time.Minute))

	_, err := app.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentStatusExpired), app.paymentStatus(t, token, p.ID))

	// a late deposit no longer moves it
	app.chain.deposit(p.DepositAddress, "0xlate", decimal.NewFromInt(1), 10)
	n, err := app.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, app.chain.sent())
}

func TestIntegration_RateLimitOnLogin(t *testing.T) {
	app := newTestApp(t)
	body := map[string]string{"username": "nobody", "password": "irrelevant"}

	var last int
	for i := 0; i < 11; i++ {
		last, _ = app.call(t, http.MethodPost, "/api/v1/auth/login", "", body, nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func (a *testApp) paymentStatus(t *testing.T, token, id string) string {
	t.Helper()
	status, env := a.call(t, http.MethodGet, "/api/v1/payments/"+id, token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	return decodeInto[paymentView](t, env).Status
}
