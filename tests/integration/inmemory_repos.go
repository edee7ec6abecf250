package integration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var errDuplicateKey = errors.New("duplicate key value violates unique constraint")

// Each repo stores value copies behind a mutex so callers never share state
// with the store, matching what a round trip through Postgres gives them.

// ---- Merchants ----

type inMemoryMerchantRepo struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{byID: make(map[uuid.UUID]domain.Merchant)}
}

func cloneMerchant(m domain.Merchant) *domain.Merchant {
	dest := make(map[domain.Currency]string, len(m.Destinations))
	for k, v := range m.Destinations {
		dest[k] = v
	}
	m.Destinations = dest
	return &m
}

func (r *inMemoryMerchantRepo) Create(_ context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Username == m.Username {
			return errDuplicateKey
		}
	}
	r.byID[m.ID] = *cloneMerchant(*m)
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneMerchant(m), nil
}

func (r *inMemoryMerchantRepo) GetByUsername(_ context.Context, username string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.byID {
		if m.Username == username {
			return cloneMerchant(m), nil
		}
	}
	return nil, nil
}

func (r *inMemoryMerchantRepo) Update(_ context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.byID[m.ID] = *cloneMerchant(*m)
	return nil
}

// ---- Payments ----

type inMemoryPaymentRepo struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{byID: make(map[uuid.UUID]domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.IdempotencyKey != nil {
		for _, existing := range r.byID {
			if existing.MerchantID == p.MerchantID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *p.IdempotencyKey {
				return errDuplicateKey
			}
		}
	}
	r.byID[p.ID] = *p
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *inMemoryPaymentRepo) GetByIdempotencyKey(_ context.Context, merchantID uuid.UUID, key string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.MerchantID == merchantID && p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) List(_ context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	r.mu.RLock()
	var out []domain.Payment
	for _, p := range r.byID {
		if p.MerchantID != params.MerchantID {
			continue
		}
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, params.Page, params.PageSize), int64(len(out)), nil
}

func (r *inMemoryPaymentRepo) ListActive(_ context.Context, limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	var out []domain.Payment
	for _, p := range r.byID {
		switch p.Status {
		case domain.PaymentStatusPending, domain.PaymentStatusConfirming, domain.PaymentStatusConfirmed:
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryPaymentRepo) Transition(_ context.Context, _ pgx.Tx, id uuid.UUID, t domain.PaymentTransition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.Status != t.From {
		return false, nil
	}
	p.Apply(t)
	r.byID[id] = p
	return true, nil
}

func (r *inMemoryPaymentRepo) RecordConfirmations(_ context.Context, id uuid.UUID, n int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.Status != domain.PaymentStatusConfirming {
		return 0, nil
	}
	if n > p.Confirmations {
		p.Confirmations = n
		r.byID[id] = p
	}
	return p.Confirmations, nil
}

func (r *inMemoryPaymentRepo) ClaimForward(_ context.Context, id uuid.UUID, signed domain.SignedTransfer, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.Status != domain.PaymentStatusConfirmed || p.ForwardTxRef != nil {
		return false, nil
	}
	ref, raw := signed.TxRef, signed.Raw
	p.ForwardTxRef, p.ForwardRawTx, p.ForwardClaimedAt = &ref, &raw, &at
	r.byID[id] = p
	return true, nil
}

func (r *inMemoryPaymentRepo) ReleaseForward(_ context.Context, id uuid.UUID, txRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.Status != domain.PaymentStatusConfirmed || p.ForwardTxRef == nil || *p.ForwardTxRef != txRef {
		return false, nil
	}
	p.ForwardTxRef, p.ForwardRawTx, p.ForwardClaimedAt = nil, nil, nil
	r.byID[id] = p
	return true, nil
}

// setExpiry moves a payment's deadline, standing in for the passage of time.
func (r *inMemoryPaymentRepo) setExpiry(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		p.ExpiresAt = at
		r.byID[id] = p
	}
}

func (r *inMemoryPaymentRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ---- Deposit addresses ----

type inMemoryDepositRepo struct {
	mu     sync.RWMutex
	byPaym map[uuid.UUID]domain.DepositAddress
}

func newInMemoryDepositRepo() *inMemoryDepositRepo {
	return &inMemoryDepositRepo{byPaym: make(map[uuid.UUID]domain.DepositAddress)}
}

func (r *inMemoryDepositRepo) Insert(_ context.Context, d *domain.DepositAddress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPaym[d.PaymentID]; ok {
		return false, nil
	}
	r.byPaym[d.PaymentID] = *d
	return true, nil
}

func (r *inMemoryDepositRepo) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*domain.DepositAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byPaym[paymentID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// ---- Balances ----

type balanceKey struct {
	merchantID uuid.UUID
	currency   domain.Currency
}

// inMemoryBalanceRepo evaluates each guarded update atomically under its
// mutex, the way a conditional UPDATE ... WHERE available >= $n does.
type inMemoryBalanceRepo struct {
	mu   sync.Mutex
	rows map[balanceKey]domain.MerchantBalance
}

func newInMemoryBalanceRepo() *inMemoryBalanceRepo {
	return &inMemoryBalanceRepo{rows: make(map[balanceKey]domain.MerchantBalance)}
}

func (r *inMemoryBalanceRepo) Ensure(_ context.Context, _ pgx.Tx, merchantID uuid.UUID, currency domain.Currency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := balanceKey{merchantID, currency}
	if _, ok := r.rows[k]; !ok {
		r.rows[k] = domain.MerchantBalance{
			MerchantID: merchantID,
			Currency:   currency,
			Available:  decimal.Zero,
			Reserved:   decimal.Zero,
			UpdatedAt:  time.Now().UTC(),
		}
	}
	return nil
}

func (r *inMemoryBalanceRepo) Get(_ context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.MerchantBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[balanceKey{merchantID, currency}]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *inMemoryBalanceRepo) ListByMerchant(_ context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MerchantBalance
	for k, b := range r.rows {
		if k.merchantID == merchantID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (r *inMemoryBalanceRepo) ListAll(_ context.Context) ([]domain.MerchantBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MerchantBalance, 0, len(r.rows))
	for _, b := range r.rows {
		out = append(out, b)
	}
	return out, nil
}

// mutate applies fn to the row if it exists; fn reports whether its guard held.
func (r *inMemoryBalanceRepo) mutate(merchantID uuid.UUID, currency domain.Currency, fn func(b *domain.MerchantBalance) bool) *domain.MerchantBalance {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := balanceKey{merchantID, currency}
	b, ok := r.rows[k]
	if !ok || !fn(&b) {
		return nil
	}
	b.UpdatedAt = time.Now().UTC()
	r.rows[k] = b
	return &b
}

func (r *inMemoryBalanceRepo) Credit(_ context.Context, _ pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	return r.mutate(merchantID, currency, func(b *domain.MerchantBalance) bool {
		b.Available = b.Available.Add(amount)
		return true
	}), nil
}

func (r *inMemoryBalanceRepo) Debit(_ context.Context, _ pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	return r.mutate(merchantID, currency, func(b *domain.MerchantBalance) bool {
		if b.Available.LessThan(amount) {
			return false
		}
		b.Available = b.Available.Sub(amount)
		return true
	}), nil
}

func (r *inMemoryBalanceRepo) Reserve(_ context.Context, _ pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	return r.mutate(merchantID, currency, func(b *domain.MerchantBalance) bool {
		if b.Available.LessThan(amount) {
			return false
		}
		b.Available = b.Available.Sub(amount)
		b.Reserved = b.Reserved.Add(amount)
		return true
	}), nil
}

func (r *inMemoryBalanceRepo) Release(_ context.Context, _ pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, toAvailable bool) (*domain.MerchantBalance, error) {
	return r.mutate(merchantID, currency, func(b *domain.MerchantBalance) bool {
		if b.Reserved.LessThan(amount) {
			return false
		}
		b.Reserved = b.Reserved.Sub(amount)
		if toAvailable {
			b.Available = b.Available.Add(amount)
		}
		return true
	}), nil
}

// ---- Ledger ----

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{}
}

func (r *inMemoryLedgerRepo) Append(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryLedgerRepo) List(_ context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	r.mu.RLock()
	var out []domain.LedgerEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.MerchantID != params.MerchantID {
			continue
		}
		if params.Currency != nil && e.Currency != *params.Currency {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()
	return page(out, params.Page, params.PageSize), int64(len(out)), nil
}

func (r *inMemoryLedgerRepo) SumNetChange(_ context.Context, merchantID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range r.entries {
		if e.MerchantID == merchantID && e.Currency == currency {
			sum = sum.Add(e.NetChange)
		}
	}
	return sum, nil
}

// ---- Withdrawals ----

type inMemoryWithdrawalRepo struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]domain.Withdrawal
}

func newInMemoryWithdrawalRepo() *inMemoryWithdrawalRepo {
	return &inMemoryWithdrawalRepo{byID: make(map[uuid.UUID]domain.Withdrawal)}
}

func (r *inMemoryWithdrawalRepo) Create(_ context.Context, _ pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[w.ID] = *w
	return nil
}

func (r *inMemoryWithdrawalRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *inMemoryWithdrawalRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWithdrawalRepo) Update(_ context.Context, _ pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[w.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.byID[w.ID] = *w
	return nil
}

func (r *inMemoryWithdrawalRepo) List(_ context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	r.mu.RLock()
	var out []domain.Withdrawal
	for _, w := range r.byID {
		if params.MerchantID != nil && w.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != nil && w.Status != *params.Status {
			continue
		}
		out = append(out, w)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, params.Page, params.PageSize), int64(len(out)), nil
}

func (r *inMemoryWithdrawalRepo) ListReadyForSubmission(_ context.Context, limit int) ([]domain.Withdrawal, error) {
	r.mu.RLock()
	var out []domain.Withdrawal
	for _, w := range r.byID {
		if w.Status == domain.WithdrawalStatusApproved && w.SubmittedAt == nil {
			out = append(out, w)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryWithdrawalRepo) MarkSubmitted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok || w.Status != domain.WithdrawalStatusApproved || w.SubmittedAt != nil {
		return false, nil
	}
	w.SubmittedAt = &at
	r.byID[id] = w
	return true, nil
}

func (r *inMemoryWithdrawalRepo) ClearSubmitted(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil
	}
	w.SubmittedAt = nil
	r.byID[id] = w
	return nil
}

// ---- Webhook logs ----

type inMemoryWebhookLogRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]domain.WebhookDeliveryLog
}

func newInMemoryWebhookLogRepo() *inMemoryWebhookLogRepo {
	return &inMemoryWebhookLogRepo{logs: make(map[uuid.UUID]domain.WebhookDeliveryLog)}
}

func (r *inMemoryWebhookLogRepo) Create(_ context.Context, l *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[l.ID] = *l
	return nil
}

func (r *inMemoryWebhookLogRepo) Update(_ context.Context, l *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[l.ID] = *l
	return nil
}

func (r *inMemoryWebhookLogRepo) all() []domain.WebhookDeliveryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.WebhookDeliveryLog, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l)
	}
	return out
}

func page[T any](items []T, pageNum, size int) []T {
	if size <= 0 {
		return items
	}
	if pageNum < 1 {
		pageNum = 1
	}
	start := (pageNum - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ---- Transactor ----

// inMemoryTransactor hands out no-op transactions. With serialize set, only
// one transaction runs at a time, standing in for row locks.
type inMemoryTransactor struct {
	serialize bool
	mu        sync.Mutex
}

func newInMemoryTransactor(serialize bool) *inMemoryTransactor {
	return &inMemoryTransactor{serialize: serialize}
}

func (t *inMemoryTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	tx := &noopTx{}
	if t.serialize {
		t.mu.Lock()
		tx.release = t.mu.Unlock
	}
	return tx, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct {
	once    sync.Once
	release func()
}

func (t *noopTx) end() {
	t.once.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { t.end(); return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { t.end(); return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }

// ---- Chain ----

// fakeChain is a scripted chain client. Deposits are registered per address;
// broadcast transfers are recorded and become visible to TxStatus.
type fakeChain struct {
	network domain.Network

	mu        sync.Mutex
	inbound   map[string]*domain.InboundTransfer
	confirms  map[string]int
	signed    map[string]domain.TransferRequest
	transfers []domain.TransferRequest
}

func newFakeChain(network domain.Network) *fakeChain {
	return &fakeChain{
		network:  network,
		inbound:  make(map[string]*domain.InboundTransfer),
		confirms: make(map[string]int),
		signed:   make(map[string]domain.TransferRequest),
	}
}

func (c *fakeChain) Network() domain.Network { return c.network }

// deposit makes a transfer to address visible with the given confirmations.
func (c *fakeChain) deposit(address, txRef string, amount decimal.Decimal, confirmations int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound[address] = &domain.InboundTransfer{
		TxRef:         txRef,
		Amount:        amount,
		Confirmations: confirmations,
		ObservedAt:    time.Now().UTC(),
	}
	c.confirms[txRef] = confirmations
}

func (c *fakeChain) setConfirmations(txRef string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirms[txRef] = n
}

func (c *fakeChain) sent() []domain.TransferRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.TransferRequest(nil), c.transfers...)
}

func (c *fakeChain) FindInbound(_ context.Context, _ domain.Currency, address string, _ time.Time) (*domain.InboundTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.inbound[address]
	if !ok {
		return nil, nil
	}
	cp := *in
	return &cp, nil
}

func (c *fakeChain) TxStatus(_ context.Context, _ domain.Currency, txRef string) (*domain.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.confirms[txRef]
	return &domain.TxStatus{TxRef: txRef, Confirmations: n, Found: ok}, nil
}

func (c *fakeChain) PrepareTransfer(_ context.Context, req domain.TransferRequest) (*domain.SignedTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref := "0xfake-" + uuid.NewString()
	c.signed[ref] = req
	return &domain.SignedTransfer{Currency: req.Currency, TxRef: ref, Raw: "raw-" + ref}, nil
}

// Broadcast records the signed request once and makes it visible to TxStatus.
func (c *fakeChain) Broadcast(_ context.Context, signed *domain.SignedTransfer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.signed[signed.TxRef]
	if !ok {
		return errors.New("unknown transaction " + signed.TxRef)
	}
	if _, seen := c.confirms[signed.TxRef]; !seen {
		c.transfers = append(c.transfers, req)
		c.confirms[signed.TxRef] = 1
	}
	return nil
}

type fakeRegistry map[domain.Network]ports.ChainClient

func (r fakeRegistry) For(network domain.Network) (ports.ChainClient, error) {
	c, ok := r[network]
	if !ok {
		return nil, errors.New("network not configured: " + string(network))
	}
	return c, nil
}
