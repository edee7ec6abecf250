package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"crypto-settlement/internal/core/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/txpool"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	gasLimitNative = 21000
	gasLimitToken  = 100000
)

const erc20ABIJSON = `[{
	"constant": false,
	"inputs": [{"name": "_to", "type": "address"}, {"name": "_value", "type": "uint256"}],
	"name": "transfer",
	"outputs": [{"name": "", "type": "bool"}],
	"type": "function"
}, {
	"constant": true,
	"inputs": [{"name": "_owner", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "balance", "type": "uint256"}],
	"type": "function"
}]`

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// EVMBackend is the subset of ethclient.Client the EVM client needs.
type EVMBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMConfig configures one EVM network.
type EVMConfig struct {
	Network      domain.Network
	ChainID      int64
	USDTContract string
	// ScanDepth is the first step, in blocks, when searching back from the
	// head for the block that funded a deposit address. Steps double until
	// an unfunded block is found.
	ScanDepth uint64
}

// EVMClient implements ports.ChainClient for Ethereum-compatible networks.
// Deposits are detected from the address balance, so a transfer is found
// however far behind the head it landed. Locating the funding block reads
// historical state, which pruned nodes keep only for recent blocks.
type EVMClient struct {
	backend EVMBackend
	cfg     EVMConfig
	chainID *big.Int
	log     zerolog.Logger
}

// DialEVM connects to rpcURL and returns a client for cfg.Network.
func DialEVM(ctx context.Context, rpcURL string, cfg EVMConfig, log zerolog.Logger) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", cfg.Network, err)
	}
	return NewEVMClient(client, cfg, log), nil
}

// NewEVMClient wraps an existing backend.
func NewEVMClient(backend EVMBackend, cfg EVMConfig, log zerolog.Logger) *EVMClient {
	if cfg.ScanDepth == 0 {
		cfg.ScanDepth = 64
	}
	return &EVMClient{
		backend: backend,
		cfg:     cfg,
		chainID: big.NewInt(cfg.ChainID),
		log:     log.With().Str("network", string(cfg.Network)).Logger(),
	}
}

func (c *EVMClient) Network() domain.Network { return c.cfg.Network }

// FindInbound reads the deposit balance at the head. A funded address is
// traced back to its funding block, whose transfer is returned unless it
// predates since.
func (c *EVMClient) FindInbound(ctx context.Context, currency domain.Currency, address string, since time.Time) (*domain.InboundTransfer, error) {
	if currency.Network() != c.cfg.Network {
		return nil, fmt.Errorf("currency %s is not on %s", currency, c.cfg.Network)
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	if !currency.IsNative() && !common.IsHexAddress(c.cfg.USDTContract) {
		return nil, fmt.Errorf("no token contract configured for %s", c.cfg.Network)
	}
	to := common.HexToAddress(address)

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block number: %w", err)
	}
	funded, err := c.funded(ctx, currency, to, head)
	if err != nil || !funded {
		return nil, err
	}

	n, err := c.fundingBlock(ctx, currency, to, head)
	if err != nil {
		return nil, err
	}
	block, err := c.backend.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", n, err)
	}
	blockTime := time.Unix(int64(block.Time()), 0).UTC()
	if blockTime.Before(since) {
		return nil, nil
	}

	var (
		txRef string
		value *big.Int
	)
	if currency.IsNative() {
		txRef, value = nativeTransferIn(block, to)
	} else {
		txRef, value, err = c.tokenTransferIn(ctx, to, n)
		if err != nil {
			return nil, err
		}
	}
	if txRef == "" {
		c.log.Warn().Str("address", address).Uint64("block", n).Msg("deposit balance has no direct transfer in its funding block")
		return nil, nil
	}

	return &domain.InboundTransfer{
		TxRef:         txRef,
		Amount:        decimal.NewFromBigInt(value, -currency.Decimals()),
		Confirmations: confirmationsAt(head, n),
		ObservedAt:    blockTime,
	}, nil
}

// balanceAt returns the native or token balance of addr at block n.
func (c *EVMClient) balanceAt(ctx context.Context, currency domain.Currency, addr common.Address, n uint64) (*big.Int, error) {
	number := new(big.Int).SetUint64(n)
	if currency.IsNative() {
		bal, err := c.backend.BalanceAt(ctx, addr, number)
		if err != nil {
			return nil, fmt.Errorf("get balance at %d: %w", n, err)
		}
		return bal, nil
	}

	data, err := erc20ABI.Pack("balanceOf", addr)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	contract := common.HexToAddress(c.cfg.USDTContract)
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, number)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf at %d: %w", n, err)
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack balanceOf: %v", err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", values[0])
	}
	return bal, nil
}

func (c *EVMClient) funded(ctx context.Context, currency domain.Currency, addr common.Address, n uint64) (bool, error) {
	bal, err := c.balanceAt(ctx, currency, addr, n)
	if err != nil {
		return false, err
	}
	return bal.Sign() > 0, nil
}

// fundingBlock returns the first block at which addr held a balance, given
// that it holds one at head. It steps back in doubling strides until an
// unfunded block is found, then bisects.
func (c *EVMClient) fundingBlock(ctx context.Context, currency domain.Currency, addr common.Address, head uint64) (uint64, error) {
	hi, lo := head, uint64(0)
	for step := c.cfg.ScanDepth; ; step *= 2 {
		if hi < step {
			ok, err := c.funded(ctx, currency, addr, 0)
			if err != nil || ok {
				return 0, err
			}
			break
		}
		candidate := hi - step
		ok, err := c.funded(ctx, currency, addr, candidate)
		if err != nil {
			return 0, err
		}
		if !ok {
			lo = candidate
			break
		}
		hi = candidate
	}

	// unfunded at lo, funded at hi
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ok, err := c.funded(ctx, currency, addr, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

func nativeTransferIn(block *types.Block, to common.Address) (string, *big.Int) {
	for _, tx := range block.Transactions() {
		if tx.To() != nil && *tx.To() == to && tx.Value().Sign() > 0 {
			return tx.Hash().Hex(), tx.Value()
		}
	}
	return "", nil
}

func (c *EVMClient) tokenTransferIn(ctx context.Context, to common.Address, n uint64) (string, *big.Int, error) {
	number := new(big.Int).SetUint64(n)
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: number,
		ToBlock:   number,
		Addresses: []common.Address{common.HexToAddress(c.cfg.USDTContract)},
		Topics:    [][]common.Hash{{transferTopic}, nil, {common.BytesToHash(to.Bytes())}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("filter transfer logs: %w", err)
	}
	for _, l := range logs {
		if l.Removed || len(l.Data) < 32 {
			continue
		}
		value := new(big.Int).SetBytes(l.Data[:32])
		if value.Sign() > 0 {
			return l.TxHash.Hex(), value, nil
		}
	}
	return "", nil, nil
}

// TxStatus reads the receipt of txRef. A missing receipt means not yet mined.
func (c *EVMClient) TxStatus(ctx context.Context, _ domain.Currency, txRef string) (*domain.TxStatus, error) {
	status := &domain.TxStatus{TxRef: txRef}
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txRef))
	if errors.Is(err, ethereum.NotFound) {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", txRef, err)
	}
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block number: %w", err)
	}

	status.Found = true
	status.Failed = receipt.Status == types.ReceiptStatusFailed
	if receipt.BlockNumber != nil {
		status.Confirmations = confirmationsAt(head, receipt.BlockNumber.Uint64())
	}
	return status, nil
}

// PrepareTransfer signs a legacy transaction with req.PrivateKey (hex). The
// sender's native balance must cover the value plus gas at the suggested
// price, otherwise domain.ErrUnderfunded is returned and nothing is signed.
func (c *EVMClient) PrepareTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SignedTransfer, error) {
	if req.Currency.Network() != c.cfg.Network {
		return nil, fmt.Errorf("currency %s is not on %s", req.Currency, c.cfg.Network)
	}
	if !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("invalid destination %q", req.To)
	}
	units, err := toBaseUnits(req.Amount, req.Currency.Decimals())
	if err != nil {
		return nil, err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(req.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	if req.From != "" && !strings.EqualFold(req.From, from.Hex()) {
		return nil, fmt.Errorf("signing key does not control %s", req.From)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	to := common.HexToAddress(req.To)
	txData := &types.LegacyTx{Nonce: nonce, GasPrice: gasPrice}
	if req.Currency.IsNative() {
		txData.To = &to
		txData.Value = units
		txData.Gas = gasLimitNative
	} else {
		if !common.IsHexAddress(c.cfg.USDTContract) {
			return nil, fmt.Errorf("no token contract configured for %s", c.cfg.Network)
		}
		data, err := erc20ABI.Pack("transfer", to, units)
		if err != nil {
			return nil, fmt.Errorf("pack transfer: %w", err)
		}
		contract := common.HexToAddress(c.cfg.USDTContract)
		txData.To = &contract
		txData.Value = big.NewInt(0)
		txData.Gas = gasLimitToken
		txData.Data = data
	}

	balance, err := c.backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, fmt.Errorf("get sender balance: %w", err)
	}
	need := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(txData.Gas))
	need.Add(need, txData.Value)
	if balance.Cmp(need) < 0 {
		return nil, fmt.Errorf("%w: %s holds %s wei, needs %s wei", domain.ErrUnderfunded, from.Hex(), balance, need)
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return &domain.SignedTransfer{
		Currency: req.Currency,
		TxRef:    signed.Hash().Hex(),
		Raw:      hexutil.Encode(raw),
	}, nil
}

// Broadcast submits a transaction signed by PrepareTransfer. A transaction
// the node already holds counts as submitted. Once its nonce is used by
// another transaction it can never be mined.
func (c *EVMClient) Broadcast(ctx context.Context, signed *domain.SignedTransfer) error {
	raw, err := hexutil.Decode(signed.Raw)
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, txpool.ErrAlreadyKnown.Error()):
			return nil
		case strings.Contains(msg, core.ErrNonceTooLow.Error()):
			return fmt.Errorf("%w: %v", domain.ErrTransferExpired, err)
		}
		return fmt.Errorf("send transaction: %w", err)
	}

	c.log.Info().
		Str("tx_ref", signed.TxRef).
		Str("currency", string(signed.Currency)).
		Str("to", tx.To().Hex()).
		Msg("transfer broadcast")
	return nil
}

// confirmationsAt counts the including block as the first confirmation.
func confirmationsAt(head, block uint64) int {
	if block > head {
		return 0
	}
	return int(head-block) + 1
}

// toBaseUnits converts a decimal amount into integer on-chain units.
func toBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}
