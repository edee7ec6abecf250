package service

import (
	"encoding/hex"
	"fmt"
	"strings"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// ChainKeyGenerator implements ports.KeyGenerator for every supported family.
type ChainKeyGenerator struct{}

// NewChainKeyGenerator creates a key generator.
func NewChainKeyGenerator() *ChainKeyGenerator {
	return &ChainKeyGenerator{}
}

// Generate mints a fresh keypair for family.
func (g *ChainKeyGenerator) Generate(family domain.ChainFamily) (*domain.KeyPair, error) {
	switch family {
	case domain.FamilyEVM:
		return generateEVMKey()
	case domain.FamilySolana:
		return generateSolanaKey()
	}
	return nil, apperror.Validation(fmt.Sprintf("unsupported chain family %q", family))
}

// generateEVMKey returns an EIP-55 checksummed address and the 32-byte key as 64 hex chars.
func generateEVMKey() (*domain.KeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}

	return &domain.KeyPair{
		Family:     domain.FamilyEVM,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(privateKey)),
	}, nil
}

// generateSolanaKey returns the base58 public key and the base58 64-byte
// keypair Solana wallets import.
func generateSolanaKey() (*domain.KeyPair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}

	return &domain.KeyPair{
		Family:     domain.FamilySolana,
		Address:    key.PublicKey().String(),
		PrivateKey: key.String(),
	}, nil
}

// ValidateAddress checks that addr is well formed for family: 0x + 40 hex
// for EVM (mixed case must match the EIP-55 checksum), base58 of 32 bytes for Solana.
func ValidateAddress(family domain.ChainFamily, addr string) error {
	switch family {
	case domain.FamilyEVM:
		if !common.IsHexAddress(addr) || len(addr) != 42 {
			return apperror.Validation("invalid EVM address")
		}
		lower, upper := addr[2:] == strings.ToLower(addr[2:]), addr[2:] == strings.ToUpper(addr[2:])
		if !lower && !upper && common.HexToAddress(addr).Hex() != addr {
			return apperror.Validation("EVM address checksum mismatch")
		}
		return nil
	case domain.FamilySolana:
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return apperror.Validation("invalid Solana address")
		}
		return nil
	}
	return apperror.Validation(fmt.Sprintf("unsupported chain family %q", family))
}
