package cctpr

import (
	"context"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/registry"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// RelayCost is the relay fee quoted in both currencies the source accepts.
type RelayCost struct {
	Usdc     amount.Amount
	GasToken amount.Amount
}

// In returns the cost in USDC when inUsdc is set, else in the gas token.
func (c RelayCost) In(inUsdc bool) amount.Amount {
	if inUsdc {
		return c.Usdc
	}
	return c.GasToken
}

// CorridorCost is what a corridor charges on top of the burned amount. Fast is
// nil for v1.
type CorridorCost struct {
	Relay RelayCost
	Fast  *amount.Amount
}

// CorridorStats pairs a corridor with its cost and expected duration.
type CorridorStats struct {
	Corridor     Corridor
	Cost         CorridorCost
	TransferTime amount.Amount
}

// Corridors is the result of GetCorridors.
type Corridors struct {
	FastBurnAllowance amount.Amount
	Stats             []CorridorStats
}

// TransferRequest is everything a platform needs to build a transfer.
type TransferRequest struct {
	Network     types.Network
	Source      types.Domain
	Destination types.Domain
	Sender      string
	// Recipient is the 32-byte universal address on the destination.
	Recipient  []byte
	InOrOut    InOrOut
	Corridor   CorridorParams
	Quote      Quote
	GasDropoff amount.Amount
	// Options is platform specific.
	Options any
}

// Implementation is what each platform registers to take part in quoting and
// transfers.
type Implementation interface {
	// RelayCosts returns one cost per corridor, in the same order.
	RelayCosts(ctx context.Context, n types.Network, src, dst types.Domain, corridors []Corridor, gasDropoff amount.Amount) ([]RelayCost, error)
	// Transfer returns the step sequence. Balance failures come back from
	// Transfer itself or from the flow's first Next, depending on whether
	// the platform reads balances up front or lazily.
	Transfer(ctx context.Context, req TransferRequest) (Flow, error)
}

// Platforms is the process-wide implementation registry.
var Platforms = registry.New[Implementation]("cctpr")

// ImplementationFor returns the registered implementation for d's platform.
func ImplementationFor(d types.Domain) (Implementation, error) {
	return Platforms.Lookup(d.Platform())
}
