// Package route turns a transfer intent into priced candidate routes and
// executes the chosen one through attestation and redeem.
package route

import (
	"context"
	"time"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/fetch"
	"github.com/yourorg/cctpr-engine/internal/model"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Step is one action of a route as planned before execution. Gas is what an
// on-chain step is expected to use; signatures and relayer-submitted steps
// use none.
type Step struct {
	Kind   cctpr.ActionKind `json:"kind"`
	Domain types.Domain     `json:"domain"`
	Gas    uint64           `json:"gas"`
}

// Route is a priced way of fulfilling an Intent.
type Route struct {
	ID       string
	Intent   Intent
	Kind     model.RouteKind
	Corridor cctpr.CorridorParams
	Quote    cctpr.Quote
	Fees     []model.Fee
	// Gasless holds the relayer quote of gasless routes.
	Gasless *fetch.GaslessQuote
	Steps   []Step

	EstimatedDuration amount.Amount
	// EstimatedCost is every fee plus the gas of the user's own steps, in USD.
	EstimatedCost amount.Amount
	QuotedAt      time.Time

	request cctpr.TransferRequest
}

// Request is the platform request the route executes.
func (r *Route) Request() cctpr.TransferRequest { return r.request }

// RequiresSignature reports whether the user signs a message at some step.
func (r *Route) RequiresSignature() bool {
	for _, s := range r.Steps {
		if s.Kind.IsSignature() {
			return true
		}
	}
	return false
}

// Workflow starts the platform flow of the route. Balance problems surface
// either here or on the flow's first Next; EVM flows read balances lazily.
func (r *Route) Workflow(ctx context.Context) (cctpr.Flow, error) {
	impl, err := cctpr.ImplementationFor(r.Intent.Source)
	if err != nil {
		return nil, err
	}
	return impl.Transfer(ctx, r.request)
}

// Summary flattens the route for validation and the API.
func (r *Route) Summary() model.RouteSummary {
	steps := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = string(s.Kind)
	}
	s := model.RouteSummary{
		ID:           r.ID,
		Network:      string(r.Intent.Network),
		Source:       string(r.Intent.Source),
		Destination:  string(r.Intent.Destination),
		Corridor:     string(r.Corridor.Type),
		Kind:         r.Kind,
		Amount:       r.Intent.Amount,
		Direction:    string(r.Intent.Direction),
		Fees:         r.Fees,
		TotalCostUsd: r.EstimatedCost,
		Duration:     r.EstimatedDuration,
		Steps:        steps,
		QuotedAt:     r.QuotedAt,
	}
	if r.Intent.Direction == cctpr.Out {
		_, offChain := r.Quote.(cctpr.OffChainQuote)
		s.AmountIsMinimum = !offChain
	}
	if r.Gasless != nil {
		s.ExpiresAt = r.Gasless.ExpiresAt
	}
	return s
}

// Summaries flattens routes in order.
func Summaries(routes []*Route) []model.RouteSummary {
	out := make([]model.RouteSummary, len(routes))
	for i, r := range routes {
		out[i] = r.Summary()
	}
	return out
}
