package payment

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

// DefaultChain is used when a candidate does not name a chain.
const DefaultChain = "base"

var defaultChains = []string{"ethereum", "base", "arbitrum", "optimism", "polygon", "avalanche", "solana"}

// MockRouter picks a direct transfer when source and destination chains
// match and a bridge otherwise. A recipient address of the form
// "<chain>:<address>" names the destination chain.
type MockRouter struct {
	chains map[string]struct{}
}

// NewMockRouter creates a router supporting chains, or a default set when
// none are given.
func NewMockRouter(chains ...string) *MockRouter {
	if len(chains) == 0 {
		chains = defaultChains
	}
	r := &MockRouter{chains: make(map[string]struct{}, len(chains))}
	for _, c := range chains {
		r.chains[strings.ToLower(c)] = struct{}{}
	}
	return r
}

// Route implements the routing contract.
func (r *MockRouter) Route(_ context.Context, c domain.PaymentCandidate) (*domain.Route, error) {
	source := strings.ToLower(c.Chain)
	if source == "" {
		source = DefaultChain
	}
	if _, ok := r.chains[source]; !ok {
		return nil, errors.Newf("unsupported chain %q", c.Chain)
	}

	dest := source
	if prefix, _, found := strings.Cut(c.RecipientAddress, ":"); found && !strings.HasPrefix(c.RecipientAddress, "http") {
		dest = strings.ToLower(prefix)
		if _, ok := r.chains[dest]; !ok {
			return nil, errors.Newf("unsupported destination chain %q", prefix)
		}
	}

	if dest == source {
		return &domain.Route{
			Type:             "direct",
			SourceChain:      source,
			DestinationChain: dest,
			EstimatedFee:     decimal.RequireFromString("0.01"),
			EstimatedTime:    "15s",
		}, nil
	}
	return &domain.Route{
		Type:             "bridge",
		SourceChain:      source,
		DestinationChain: dest,
		EstimatedFee:     decimal.RequireFromString("0.50"),
		EstimatedTime:    "3m",
	}, nil
}
