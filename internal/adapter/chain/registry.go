package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"crypto-settlement/config"
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/breaker"
	"crypto-settlement/pkg/metrics"
	"crypto-settlement/pkg/retry"

	"github.com/rs/zerolog"
)

var supportedNetworks = []domain.Network{
	domain.NetworkSolana,
	domain.NetworkEthereum,
	domain.NetworkBSC,
	domain.NetworkPolygon,
	domain.NetworkArbitrum,
}

// Registry implements ports.ChainRegistry over a fixed set of clients.
type Registry struct {
	clients map[domain.Network]ports.ChainClient
}

// NewRegistry indexes clients by their network. Later clients replace earlier ones.
func NewRegistry(clients ...ports.ChainClient) *Registry {
	r := &Registry{clients: make(map[domain.Network]ports.ChainClient, len(clients))}
	for _, c := range clients {
		r.clients[c.Network()] = c
	}
	return r
}

func (r *Registry) For(network domain.Network) (ports.ChainClient, error) {
	c, ok := r.clients[network]
	if !ok {
		return nil, fmt.Errorf("no chain client configured for %s", network)
	}
	return c, nil
}

// Networks lists the configured networks, sorted.
func (r *Registry) Networks() []domain.Network {
	out := make([]domain.Network, 0, len(r.clients))
	for n := range r.clients {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build creates a resilient client for every network with an RPC URL.
func Build(ctx context.Context, cfg *config.Config, breakers *breaker.Registry, m *metrics.Metrics, log zerolog.Logger) (*Registry, error) {
	opts := ResilienceOptions{
		Timeout: cfg.Resilience.RPCTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.Resilience.RetryAttempts,
			BaseDelay:   cfg.Resilience.RetryBaseDelay,
		},
	}

	var clients []ports.ChainClient
	for _, network := range supportedNetworks {
		cc, ok := cfg.Chain(string(network))
		if !ok || cc.RPCURL == "" {
			log.Warn().Str("network", string(network)).Msg("no rpc url configured, network disabled")
			continue
		}

		var inner ports.ChainClient
		if network.Family() == domain.FamilySolana {
			sol, err := NewSolanaClient(SolanaConfig{RPCURL: cc.RPCURL, USDTMint: cc.USDTContract}, log)
			if err != nil {
				return nil, err
			}
			inner = sol
		} else {
			evm, err := DialEVM(ctx, cc.RPCURL, EVMConfig{
				Network:      network,
				ChainID:      cc.ChainID,
				USDTContract: cc.USDTContract,
				ScanDepth:    cc.ScanDepth,
			}, log)
			if err != nil {
				return nil, err
			}
			inner = evm
		}

		netOpts := opts
		netOpts.RateLimit = cc.RateLimit
		netOpts.Burst = cc.Burst
		clients = append(clients, NewResilientClient(inner, strings.ToLower(string(network)), netOpts, breakers, m, log))
		log.Info().Str("network", string(network)).Msg("chain client configured")
	}
	return NewRegistry(clients...), nil
}
