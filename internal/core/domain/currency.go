package domain

import (
	"fmt"
	"strings"
)

// ChainFamily groups networks that share a key scheme and transaction format.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "EVM"
	FamilySolana ChainFamily = "SOLANA"
)

// Network identifies a concrete blockchain.
type Network string

const (
	NetworkSolana   Network = "SOLANA"
	NetworkEthereum Network = "ETHEREUM"
	NetworkBSC      Network = "BSC"
	NetworkPolygon  Network = "POLYGON"
	NetworkArbitrum Network = "ARBITRUM"
)

// Family returns the chain family of the network.
func (n Network) Family() ChainFamily {
	if n == NetworkSolana {
		return FamilySolana
	}
	return FamilyEVM
}

// Currency is a supported asset on a specific network.
// The zero value is invalid; obtain values through the constants or ParseCurrency.
type Currency string

const (
	CurrencySOL          Currency = "SOL"
	CurrencyUSDTSPL      Currency = "USDT_SPL"
	CurrencyETH          Currency = "ETH"
	CurrencyUSDTETH      Currency = "USDT_ETH"
	CurrencyBNB          Currency = "BNB"
	CurrencyUSDTBEP20    Currency = "USDT_BEP20"
	CurrencyMATIC        Currency = "MATIC"
	CurrencyUSDTPolygon  Currency = "USDT_POLYGON"
	CurrencyARB          Currency = "ARB"
	CurrencyUSDTArbitrum Currency = "USDT_ARBITRUM"
)

type currencyInfo struct {
	network       Network
	native        Currency
	confirmations int
	decimals      int32
	symbol        string
}

var registry = map[Currency]currencyInfo{
	CurrencySOL:          {NetworkSolana, CurrencySOL, 32, 9, "SOL"},
	CurrencyUSDTSPL:      {NetworkSolana, CurrencySOL, 32, 6, "USDT"},
	CurrencyETH:          {NetworkEthereum, CurrencyETH, 12, 18, "ETH"},
	CurrencyUSDTETH:      {NetworkEthereum, CurrencyETH, 12, 6, "USDT"},
	CurrencyBNB:          {NetworkBSC, CurrencyBNB, 15, 18, "BNB"},
	CurrencyUSDTBEP20:    {NetworkBSC, CurrencyBNB, 15, 18, "USDT"},
	CurrencyMATIC:        {NetworkPolygon, CurrencyMATIC, 30, 18, "MATIC"},
	CurrencyUSDTPolygon:  {NetworkPolygon, CurrencyMATIC, 30, 6, "USDT"},
	CurrencyARB:          {NetworkArbitrum, CurrencyARB, 1, 18, "ARB"},
	CurrencyUSDTArbitrum: {NetworkArbitrum, CurrencyARB, 1, 6, "USDT"},
}

var currencyOrder = []Currency{
	CurrencySOL, CurrencyUSDTSPL,
	CurrencyETH, CurrencyUSDTETH,
	CurrencyBNB, CurrencyUSDTBEP20,
	CurrencyMATIC, CurrencyUSDTPolygon,
	CurrencyARB, CurrencyUSDTArbitrum,
}

var currencyAliases = map[string]Currency{
	"USDT_SOL":     CurrencyUSDTSPL,
	"USDT_ERC20":   CurrencyUSDTETH,
	"USDT_BNB":     CurrencyUSDTBEP20,
	"USDT_MATIC":   CurrencyUSDTPolygon,
	"USDT_ARB":     CurrencyUSDTArbitrum,
	"USDT-SPL":     CurrencyUSDTSPL,
	"USDT-ERC20":   CurrencyUSDTETH,
	"USDT-BEP20":   CurrencyUSDTBEP20,
	"USDT-POLYGON": CurrencyUSDTPolygon,
}

// AllCurrencies returns every supported currency in display order.
func AllCurrencies() []Currency {
	out := make([]Currency, len(currencyOrder))
	copy(out, currencyOrder)
	return out
}

// ParseCurrency resolves a currency code, case-insensitively, including legacy aliases.
func ParseCurrency(s string) (Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := registry[Currency(code)]; ok {
		return Currency(code), nil
	}
	if c, ok := currencyAliases[code]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unsupported currency %q", s)
}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	_, ok := registry[c]
	return ok
}

func (c Currency) info() currencyInfo {
	info, ok := registry[c]
	if !ok {
		panic(fmt.Sprintf("domain: unknown currency %q", string(c)))
	}
	return info
}

func (c Currency) String() string { return string(c) }

// Network returns the blockchain the currency settles on.
func (c Currency) Network() Network { return c.info().network }

// Family returns the key/transaction family of the currency's network.
func (c Currency) Family() ChainFamily { return c.info().network.Family() }

// RequiredConfirmations is the default finality threshold for the currency.
func (c Currency) RequiredConfirmations() int { return c.info().confirmations }

// IsNative reports whether the currency is its network's gas asset.
func (c Currency) IsNative() bool { return c.info().native == c }

// NativeCounterpart returns the gas asset of the currency's network.
// Token deposit addresses must hold some of it to pay for forwarding.
func (c Currency) NativeCounterpart() Currency { return c.info().native }

// Decimals is the number of fractional digits of the on-chain unit.
func (c Currency) Decimals() int32 { return c.info().decimals }

// Symbol is the ticker without the network suffix (USDT, ETH, ...).
func (c Currency) Symbol() string { return c.info().symbol }

// IsStablecoin reports whether the currency is pegged 1:1 to USD.
func (c Currency) IsStablecoin() bool { return c.info().symbol == "USDT" }

// ConfirmationPolicy overrides required confirmations per network.
// Missing networks and values below 1 fall back to the currency default.
type ConfirmationPolicy map[Network]int

// For returns the confirmations a payment in c must reach.
func (p ConfirmationPolicy) For(c Currency) int {
	if n, ok := p[c.Network()]; ok && n >= 1 {
		return n
	}
	return c.RequiredConfirmations()
}
