package security

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// QuoteRequest is what an off-chain quote commits to.
type QuoteRequest struct {
	Source      types.Domain
	Destination types.Domain
	Corridor    cctpr.Corridor
	GasDropoff  amount.Amount
	RelayFee    amount.Amount
}

// QuoteMessage serializes the off-chain quote for r expiring at expiry. The
// gas token kind of the relay fee is the source's.
func QuoteMessage(r QuoteRequest, expiry time.Time) ([]byte, error) {
	l := cctpr.OffChainQuoteLayout(types.GasTokenKind(r.Source))
	v := cctpr.OffChainQuoteValue(r.Source, r.Destination, r.Corridor, r.GasDropoff, expiry, r.RelayFee)
	b, err := layout.Serialize(l, v)
	if err != nil {
		return nil, fmt.Errorf("encode off-chain quote: %w", err)
	}
	return b, nil
}

// SignQuote issues an off-chain quote for r valid for the signer's validity.
// Expiry is truncated to whole seconds, as on the wire.
func (s *Signer) SignQuote(r QuoteRequest) (cctpr.OffChainQuote, error) {
	if r.Source == r.Destination {
		return cctpr.OffChainQuote{}, cctpr.ErrSameDomain
	}
	expiry := s.now().Add(s.validity).Truncate(time.Second)
	msg, err := QuoteMessage(r, expiry)
	if err != nil {
		return cctpr.OffChainQuote{}, err
	}
	sig, err := s.sign(crypto.Keccak256(msg))
	if err != nil {
		return cctpr.OffChainQuote{}, fmt.Errorf("sign off-chain quote: %w", err)
	}
	return cctpr.OffChainQuote{RelayFee: r.RelayFee, ExpirationTime: expiry, QuoterSignature: sig}, nil
}

// VerifyQuote checks that q was signed by quoter for r and is still valid at
// now.
func VerifyQuote(quoter common.Address, r QuoteRequest, q cctpr.OffChainQuote, now time.Time) error {
	if now.After(q.ExpirationTime) {
		return fmt.Errorf("%w: quote expired at %s", ErrSignatureExpired, q.ExpirationTime.UTC())
	}
	if q.RelayFee.Kind() == nil || !q.RelayFee.Kind().Same(r.RelayFee.Kind()) || !q.RelayFee.Eq(r.RelayFee) {
		return fmt.Errorf("%w: relay fee %s does not match %s", ErrBadSignature, q.RelayFee, r.RelayFee)
	}
	msg, err := QuoteMessage(r, q.ExpirationTime)
	if err != nil {
		return err
	}
	signer, err := recoverSigner(crypto.Keccak256(msg), q.QuoterSignature)
	if err != nil {
		return err
	}
	if signer != quoter {
		return fmt.Errorf("%w: quote signed by %s", ErrBadSignature, signer.Hex())
	}
	return nil
}
