// Package model defines the view types shared by route finding, validation,
// the HTTP service and the exporters.
package model

import (
	"time"

	"github.com/yourorg/cctpr-engine/internal/amount"
)

// RouteKind is how the user authorizes the USDC spend of a route.
type RouteKind string

const (
	// KindGasless routes are submitted by the relayer; the user only signs.
	KindGasless RouteKind = "gasless"
	// KindPermit routes sign an EIP-2612 permit instead of approving.
	KindPermit RouteKind = "permit"
	// KindApproval routes send an approval transaction first.
	KindApproval RouteKind = "approval"
	// KindDirect routes need no authorization step (Solana).
	KindDirect RouteKind = "direct"
)

// Fee is one named charge of a route.
type Fee struct {
	Name   string        `json:"name"`
	Amount amount.Amount `json:"amount"`
}

// RouteSummary is the flattened, serializable description of a candidate
// route. This is the structure that flows through validation, aggregation
// and the API responses.
type RouteSummary struct {
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Corridor    string    `json:"corridor"`
	Kind        RouteKind `json:"kind"`

	// Amount is the USDC amount of the intent, sent ("in") or received ("out").
	Amount    amount.Amount `json:"amount"`
	Direction string        `json:"direction"`

	// AmountIsMinimum marks "out" amounts the recipient may exceed when an
	// on-chain quote or fast fee is not fully consumed.
	AmountIsMinimum bool  `json:"amount_is_minimum,omitempty"`
	Fees            []Fee `json:"fees"`

	// TotalCostUsd is fees plus the source gas the user pays.
	TotalCostUsd amount.Amount `json:"total_cost_usd"`
	// Duration is the expected time until the recipient is paid.
	Duration amount.Amount `json:"duration"`
	Steps    []string      `json:"steps"`

	QuotedAt  time.Time `json:"quoted_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// CostUsd is TotalCostUsd as a float for statistics.
func (r RouteSummary) CostUsd() float64 {
	if r.TotalCostUsd.Kind() == nil {
		return 0
	}
	return r.TotalCostUsd.In("USD").Float64()
}

// Seconds is Duration as a float for statistics.
func (r RouteSummary) Seconds() float64 {
	if r.Duration.Kind() == nil {
		return 0
	}
	return r.Duration.In("sec").Float64()
}

// Expired reports whether the route's quote has lapsed at now.
func (r RouteSummary) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// RouteSet is the answer to a route request.
type RouteSet struct {
	Routes   []RouteSummary `json:"routes"`
	Fastest  string         `json:"fastest,omitempty"`
	Cheapest string         `json:"cheapest,omitempty"`

	// CheapestPerCorridor lists the cheapest route ID of every corridor.
	CheapestPerCorridor []string   `json:"cheapest_per_corridor,omitempty"`
	Stats               RouteStats `json:"stats"`
}

// RouteStats summarizes a set of candidate routes.
type RouteStats struct {
	Count         int     `json:"count"`
	MinCostUsd    float64 `json:"min_cost_usd"`
	MedianCostUsd float64 `json:"median_cost_usd"`
	MaxCostUsd    float64 `json:"max_cost_usd"`
	MinSeconds    float64 `json:"min_seconds"`
	MaxSeconds    float64 `json:"max_seconds"`

	// PerCorridor counts the routes of each corridor.
	PerCorridor map[string]int `json:"per_corridor,omitempty"`
}
