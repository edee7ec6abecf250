package ports

import (
	"context"
	"time"

	"crypto-settlement/internal/core/domain"
)

// ChainClient talks to one network. Implementations hide the RPC wire format.
type ChainClient interface {
	Network() domain.Network
	// FindInbound returns the first transfer of currency with non-zero value to
	// address seen since the given time, or nil if none arrived yet.
	FindInbound(ctx context.Context, currency domain.Currency, address string, since time.Time) (*domain.InboundTransfer, error)
	// TxStatus reports confirmations and failure of a known transaction.
	TxStatus(ctx context.Context, currency domain.Currency, txRef string) (*domain.TxStatus, error)
	// PrepareTransfer checks the sender can fund req and signs it without
	// broadcasting. It returns domain.ErrUnderfunded when it cannot.
	PrepareTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SignedTransfer, error)
	// Broadcast submits a signed transfer. Submitting the same transfer again
	// is harmless. It returns domain.ErrTransferExpired once the transfer can
	// no longer be included.
	Broadcast(ctx context.Context, signed *domain.SignedTransfer) error
}

// ChainRegistry resolves the client serving a network.
type ChainRegistry interface {
	For(network domain.Network) (ChainClient, error)
}
