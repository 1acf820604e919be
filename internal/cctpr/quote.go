package cctpr

import (
	"time"

	"github.com/yourorg/cctpr-engine/internal/amount"
)

// Quote is a priced offer to relay a transfer. It is either an OnChainQuote or
// an OffChainQuote.
type Quote interface {
	// Fee is the exact relay fee for off-chain quotes and the ceiling for
	// on-chain ones. Its kind is Usdc or the source gas token.
	Fee() amount.Amount
	isQuote()
}

// OnChainQuote is settled against live contract state. MaxRelayFee caps what
// the contract may charge.
type OnChainQuote struct {
	MaxRelayFee amount.Amount
	// TakeFeesFromInput deducts the USDC relay fee from the input amount
	// instead of charging it on top.
	TakeFeesFromInput bool
}

func (q OnChainQuote) Fee() amount.Amount { return q.MaxRelayFee }
func (OnChainQuote) isQuote()             {}

// OffChainQuote is pre-signed by the quoting service.
type OffChainQuote struct {
	RelayFee        amount.Amount
	ExpirationTime  time.Time
	QuoterSignature []byte
}

func (q OffChainQuote) Fee() amount.Amount { return q.RelayFee }
func (OffChainQuote) isQuote()             {}

// QuoteIsInUsdc reports whether q charges its relay fee in USDC.
func QuoteIsInUsdc(q Quote) bool {
	return q != nil && q.Fee().Kind().Same(amount.Usdc)
}

// offChainUsdcFee is the relay fee that is known exactly and paid in USDC.
func offChainUsdcFee(q Quote) amount.Amount {
	if oc, ok := q.(OffChainQuote); ok && QuoteIsInUsdc(q) {
		return oc.RelayFee
	}
	return amount.Zero(amount.Usdc)
}

// Direction says which side of a transfer is fixed.
type Direction string

const (
	// In fixes the sender's outflow exactly.
	In Direction = "in"
	// Out fixes the recipient's inflow. It is exact only for off-chain quotes
	// or when the full fast fee is consumed; otherwise the recipient gets a
	// little more.
	Out Direction = "out"
)

// InOrOut is the USDC amount of a transfer and which side it refers to.
type InOrOut struct {
	Amount amount.Amount
	Type   Direction
}
