package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultSignatureLimit = 25

	// lamportsPerSignature is the base fee for a single-signer transaction.
	lamportsPerSignature = 5000
	// tokenAccountSize is the data length of an SPL token account.
	tokenAccountSize = 165
)

// SolanaConfig configures the Solana client.
type SolanaConfig struct {
	RPCURL   string
	USDTMint string
	// SignatureLimit caps how many recent signatures are inspected per poll.
	SignatureLimit int
}

// SolanaClient implements ports.ChainClient over Solana JSON-RPC.
type SolanaClient struct {
	rpc   *rpc.Client
	mint  solana.PublicKey
	limit int
	log   zerolog.Logger
}

// NewSolanaClient creates a client for cfg.RPCURL. An empty USDTMint leaves
// token transfers disabled.
func NewSolanaClient(cfg SolanaConfig, log zerolog.Logger) (*SolanaClient, error) {
	c := &SolanaClient{
		rpc:   rpc.New(cfg.RPCURL),
		limit: cfg.SignatureLimit,
		log:   log.With().Str("network", string(domain.NetworkSolana)).Logger(),
	}
	if c.limit <= 0 {
		c.limit = defaultSignatureLimit
	}
	if cfg.USDTMint != "" {
		mint, err := solana.PublicKeyFromBase58(cfg.USDTMint)
		if err != nil {
			return nil, fmt.Errorf("parse usdt mint: %w", err)
		}
		c.mint = mint
	}
	return c, nil
}

func (c *SolanaClient) Network() domain.Network { return domain.NetworkSolana }

func (c *SolanaClient) requireMint() error {
	if c.mint.IsZero() {
		return fmt.Errorf("no token mint configured for %s", domain.NetworkSolana)
	}
	return nil
}

// FindInbound inspects the most recent signatures touching address, or its
// associated token account for USDT, and returns the oldest one since the
// given time that increased the owner's balance.
func (c *SolanaClient) FindInbound(ctx context.Context, currency domain.Currency, address string, since time.Time) (*domain.InboundTransfer, error) {
	if currency.Network() != domain.NetworkSolana {
		return nil, fmt.Errorf("currency %s is not on %s", currency, domain.NetworkSolana)
	}
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	watched := owner
	if !currency.IsNative() {
		if err := c.requireMint(); err != nil {
			return nil, err
		}
		if watched, _, err = solana.FindAssociatedTokenAddress(owner, c.mint); err != nil {
			return nil, fmt.Errorf("derive token account: %w", err)
		}
	}

	limit := c.limit
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, watched, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", watched, err)
	}

	// newest first; walk oldest first
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.BlockTime != nil && sig.BlockTime.Time().Before(since) {
			continue
		}
		transfer, err := c.inboundFrom(ctx, currency, owner, sig.Signature)
		if err != nil {
			return nil, err
		}
		if transfer != nil {
			return transfer, nil
		}
	}
	return nil, nil
}

func (c *SolanaClient) inboundFrom(ctx context.Context, currency domain.Currency, owner solana.PublicKey, sig solana.Signature) (*domain.InboundTransfer, error) {
	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, nil
	}

	var delta decimal.Decimal
	if currency.IsNative() {
		tx, err := res.Transaction.GetTransaction()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
		}
		keys := append(solana.PublicKeySlice{}, tx.Message.AccountKeys...)
		keys = append(keys, res.Meta.LoadedAddresses.Writable...)
		keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)
		delta = nativeDelta(res.Meta, keys, owner, currency.Decimals())
	} else {
		delta = tokenDelta(res.Meta, owner, c.mint, currency.Decimals())
	}
	if !delta.IsPositive() {
		return nil, nil
	}

	slot, err := c.rpc.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	observed := time.Now().UTC()
	if res.BlockTime != nil {
		observed = res.BlockTime.Time().UTC()
	}
	return &domain.InboundTransfer{
		TxRef:         sig.String(),
		Amount:        delta,
		Confirmations: slotConfirmations(slot, res.Slot),
		Failed:        res.Meta.Err != nil,
		ObservedAt:    observed,
	}, nil
}

func nativeDelta(meta *rpc.TransactionMeta, keys solana.PublicKeySlice, owner solana.PublicKey, decimals int32) decimal.Decimal {
	for i, key := range keys {
		if !key.Equals(owner) {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			return decimal.Zero
		}
		pre := decimal.NewFromUint64(meta.PreBalances[i])
		post := decimal.NewFromUint64(meta.PostBalances[i])
		return post.Sub(pre).Shift(-decimals)
	}
	return decimal.Zero
}

func tokenDelta(meta *rpc.TransactionMeta, owner, mint solana.PublicKey, decimals int32) decimal.Decimal {
	sum := func(balances []rpc.TokenBalance) decimal.Decimal {
		total := decimal.Zero
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(owner) || !b.Mint.Equals(mint) || b.UiTokenAmount == nil {
				continue
			}
			if amount, err := decimal.NewFromString(b.UiTokenAmount.Amount); err == nil {
				total = total.Add(amount)
			}
		}
		return total
	}
	return sum(meta.PostTokenBalances).Sub(sum(meta.PreTokenBalances)).Shift(-decimals)
}

// TxStatus looks up the signature status. Confirmations are slots elapsed
// since inclusion.
func (c *SolanaClient) TxStatus(ctx context.Context, _ domain.Currency, txRef string) (*domain.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", txRef, err)
	}
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("get signature status %s: %w", txRef, err)
	}

	status := &domain.TxStatus{TxRef: txRef}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return status, nil
	}
	slot, err := c.rpc.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	status.Found = true
	status.Failed = res.Value[0].Err != nil
	status.Confirmations = slotConfirmations(slot, res.Value[0].Slot)
	return status, nil
}

// PrepareTransfer builds and signs a transfer paid for by the sender.
// req.PrivateKey is the base58 64-byte keypair. Token transfers go between
// associated token accounts and create the recipient's when it is missing.
// The sender's SOL must cover the fee and any new account rent, and a native
// transfer must not leave a balance below the rent-exempt minimum; otherwise
// domain.ErrUnderfunded is returned.
func (c *SolanaClient) PrepareTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SignedTransfer, error) {
	if req.Currency.Network() != domain.NetworkSolana {
		return nil, fmt.Errorf("currency %s is not on %s", req.Currency, domain.NetworkSolana)
	}
	key, err := solana.PrivateKeyFromBase58(req.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	from := key.PublicKey()
	if req.From != "" && req.From != from.String() {
		return nil, fmt.Errorf("signing key does not control %s", req.From)
	}
	to, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", req.To, err)
	}
	units, err := toBaseUnits(req.Amount, req.Currency.Decimals())
	if err != nil {
		return nil, err
	}
	if !units.IsUint64() {
		return nil, fmt.Errorf("amount %s overflows u64", req.Amount.String())
	}
	amount := units.Uint64()

	var instructions []solana.Instruction
	if req.Currency.IsNative() {
		if err := c.checkNativeFunding(ctx, from, amount); err != nil {
			return nil, err
		}
		instructions = append(instructions, system.NewTransferInstruction(amount, from, to).Build())
	} else {
		instructions, err = c.tokenInstructions(ctx, from, to, amount, uint8(req.Currency.Decimals()))
		if err != nil {
			return nil, err
		}
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(from))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(from) {
			return &key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	return &domain.SignedTransfer{
		Currency: req.Currency,
		TxRef:    tx.Signatures[0].String(),
		Raw:      base64.StdEncoding.EncodeToString(raw),
	}, nil
}

func (c *SolanaClient) checkNativeFunding(ctx context.Context, from solana.PublicKey, lamports uint64) error {
	bal, err := c.rpc.GetBalance(ctx, from, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("get sender balance: %w", err)
	}
	need := lamports + lamportsPerSignature
	if bal.Value < need {
		return fmt.Errorf("%w: %s holds %d lamports, needs %d", domain.ErrUnderfunded, from, bal.Value, need)
	}
	remainder := bal.Value - need
	if remainder == 0 {
		return nil
	}
	rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, 0, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("get rent-exempt minimum: %w", err)
	}
	if remainder < rent {
		return fmt.Errorf("%w: %s would keep %d lamports, below the rent-exempt minimum %d",
			domain.ErrUnderfunded, from, remainder, rent)
	}
	return nil
}

func (c *SolanaClient) tokenInstructions(ctx context.Context, from, to solana.PublicKey, amount uint64, decimals uint8) ([]solana.Instruction, error) {
	if err := c.requireMint(); err != nil {
		return nil, err
	}
	source, _, err := solana.FindAssociatedTokenAddress(from, c.mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	dest, _, err := solana.FindAssociatedTokenAddress(to, c.mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	var instructions []solana.Instruction
	need := uint64(lamportsPerSignature)
	_, err = c.rpc.GetAccountInfo(ctx, dest)
	switch {
	case errors.Is(err, rpc.ErrNotFound):
		rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, tokenAccountSize, rpc.CommitmentConfirmed)
		if err != nil {
			return nil, fmt.Errorf("get token account rent: %w", err)
		}
		need += rent
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(from, to, c.mint).Build())
	case err != nil:
		return nil, fmt.Errorf("get destination token account: %w", err)
	}

	bal, err := c.rpc.GetBalance(ctx, from, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get sender balance: %w", err)
	}
	if bal.Value < need {
		return nil, fmt.Errorf("%w: %s holds %d lamports, needs %d for fees", domain.ErrUnderfunded, from, bal.Value, need)
	}

	instructions = append(instructions,
		token.NewTransferCheckedInstruction(amount, decimals, source, c.mint, dest, from, []solana.PublicKey{}).Build())
	return instructions, nil
}

// Broadcast submits a transaction signed by PrepareTransfer. Once its
// blockhash has expired the transaction can never be included.
func (c *SolanaClient) Broadcast(ctx context.Context, signed *domain.SignedTransfer) error {
	raw, err := base64.StdEncoding.DecodeString(signed.Raw)
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}

	if _, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	}); err != nil {
		valid, checkErr := c.rpc.IsBlockhashValid(ctx, tx.Message.RecentBlockhash, rpc.CommitmentConfirmed)
		if checkErr == nil && !valid.Value {
			return fmt.Errorf("%w: %v", domain.ErrTransferExpired, err)
		}
		return fmt.Errorf("send transaction: %w", err)
	}

	c.log.Info().
		Str("tx_ref", signed.TxRef).
		Str("currency", string(signed.Currency)).
		Str("from", tx.Message.AccountKeys[0].String()).
		Msg("transfer broadcast")
	return nil
}

func slotConfirmations(current, slot uint64) int {
	if current <= slot {
		return 0
	}
	return int(current - slot)
}
