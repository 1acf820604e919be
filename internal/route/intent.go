package route

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// PaymentToken is the currency the relay fee is paid in.
type PaymentToken string

const (
	PayUsdc   PaymentToken = "usdc"
	PayNative PaymentToken = "native"
)

// DefaultRelayFeeMaxChangeMargin lets the on-chain relay fee rise 2% between
// quoting and execution.
const DefaultRelayFeeMaxChangeMargin = 1.02

var ErrInvalidIntent = errors.New("invalid intent")

// Intent is what the user wants to transfer.
type Intent struct {
	Network     types.Network
	Source      types.Domain
	Destination types.Domain
	// Sender and Recipient are in the native address format of their domain.
	Sender    string
	Recipient string
	// Amount is USDC. Direction says whether it is what leaves the sender
	// (In, the default) or what reaches the recipient (Out).
	Amount     amount.Amount
	Direction  cctpr.Direction
	GasDropoff amount.Amount
	// PaymentToken defaults to PayUsdc.
	PaymentToken PaymentToken
	// UsePermit offers permit routes next to approval routes. nil means yes.
	UsePermit *bool
	// RelayFeeMaxChangeMargin is the factor on the quoted relay fee the user
	// accepts as MaxRelayFee. 0 takes the default.
	RelayFeeMaxChangeMargin float64
}

// WithDefaults fills the optional fields.
func (in Intent) WithDefaults() Intent {
	if in.Direction == "" {
		in.Direction = cctpr.In
	}
	if in.PaymentToken == "" {
		in.PaymentToken = PayUsdc
	}
	if in.RelayFeeMaxChangeMargin == 0 {
		in.RelayFeeMaxChangeMargin = DefaultRelayFeeMaxChangeMargin
	}
	return in
}

func (in Intent) payInUsdc() bool { return in.PaymentToken != PayNative }

func (in Intent) usePermit() bool { return in.UsePermit == nil || *in.UsePermit }

func (in Intent) inOrOut() cctpr.InOrOut {
	return cctpr.InOrOut{Amount: in.Amount, Type: in.Direction}
}

func (in Intent) margin() amount.Rational {
	m, err := amount.ParseRational(strconv.FormatFloat(in.RelayFeeMaxChangeMargin, 'f', -1, 64))
	if err != nil {
		return amount.Frac(102, 100)
	}
	return m
}

// Validate checks in after WithDefaults. Every failure wraps
// ErrInvalidIntent, or a cctpr error where one exists.
func (in Intent) Validate() error {
	if in.Source == in.Destination {
		return cctpr.ErrSameDomain
	}
	for _, d := range []types.Domain{in.Source, in.Destination} {
		if !types.IsSupported(in.Network, d) {
			return fmt.Errorf("%w: %s on %s", cctpr.ErrUnsupportedDomain, d, in.Network)
		}
	}
	if in.Amount.Kind() == nil || !in.Amount.Kind().Same(amount.Usdc) {
		return fmt.Errorf("%w: amount must be USDC", ErrInvalidIntent)
	}
	if in.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	if err := cctpr.CheckMicroUsdc(in.Amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}
	if in.Direction != cctpr.In && in.Direction != cctpr.Out {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidIntent, in.Direction)
	}
	if in.PaymentToken != PayUsdc && in.PaymentToken != PayNative {
		return fmt.Errorf("%w: unknown payment token %q", ErrInvalidIntent, in.PaymentToken)
	}
	if in.RelayFeeMaxChangeMargin < 1 {
		return fmt.Errorf("%w: relay fee margin %v below 1", ErrInvalidIntent, in.RelayFeeMaxChangeMargin)
	}
	if in.GasDropoff.Kind() != nil && in.GasDropoff.Sign() < 0 {
		return fmt.Errorf("%w: negative gas dropoff", ErrInvalidIntent)
	}
	if err := cctpr.CheckGasDropoff(in.Network, in.Destination, in.GasDropoff); err != nil {
		return err
	}
	if _, err := UniversalAddress(in.Source, in.Sender); err != nil {
		return fmt.Errorf("%w: sender: %v", ErrInvalidIntent, err)
	}
	if _, err := UniversalAddress(in.Destination, in.Recipient); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidIntent, err)
	}
	return nil
}
