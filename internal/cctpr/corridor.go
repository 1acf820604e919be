package cctpr

import (
	"fmt"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Corridor is a routing strategy between two domains.
type Corridor string

const (
	V1       Corridor = "v1"
	V2Direct Corridor = "v2Direct"
	AvaxHop  Corridor = "avaxHop"
)

// AllCorridors in on-wire enum order. Never reorder.
var AllCorridors = []Corridor{V1, V2Direct, AvaxHop}

// IsFast reports whether c goes through CCTP v2 and so pays a fast fee.
func (c Corridor) IsFast() bool { return c == V2Direct || c == AvaxHop }

// Version is the CCTP version the corridor's first leg burns with.
func (c Corridor) Version() int {
	if c.IsFast() {
		return types.CctpV2
	}
	return types.CctpV1
}

// ParseCorridor validates a corridor name.
func ParseCorridor(s string) (Corridor, error) {
	for _, c := range AllCorridors {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown corridor %q", ErrCorridorNotSupported, s)
}

// CorridorParams is a corridor together with the fast fee rate it was quoted
// at. FastFeeRate is the zero Amount for v1.
type CorridorParams struct {
	Type        Corridor
	FastFeeRate amount.Amount
}

// fastRate returns the fast fee rate, treating an unset rate as 0%.
func (p CorridorParams) fastRate() amount.Amount {
	if !p.Type.IsFast() || p.FastFeeRate.Kind() == nil {
		return amount.Zero(amount.Percentage)
	}
	return p.FastFeeRate
}

// SensibleCorridors lists the corridors worth using from src to dst, v1 first.
// v2 is skipped when the source is a fast-finality domain and the destination
// can already be reached through v1.
func SensibleCorridors(n types.Network, src, dst types.Domain) []Corridor {
	var out []Corridor
	if types.IsV1Domain(n, src) && types.IsV1Domain(n, dst) {
		out = append(out, V1)
	}
	if !types.IsV2Domain(n, src) || (types.IsFastDomain(n, src) && types.IsV1Domain(n, dst)) {
		return out
	}
	if types.IsV2Domain(n, dst) {
		return append(out, V2Direct)
	}
	return append(out, AvaxHop)
}

// CheckIsSensibleCorridor rejects a corridor that cannot carry a transfer
// from src to dst.
func CheckIsSensibleCorridor(n types.Network, src, dst types.Domain, c Corridor) error {
	if src == dst {
		return ErrSameDomain
	}
	switch c {
	case AvaxHop:
		if src == types.Avalanche || dst == types.Avalanche {
			return fmt.Errorf("%w: Can't use avaxHop corridor with Avalanche being source or destination", ErrCorridorNotSupported)
		}
		if !types.IsV2Domain(n, src) {
			return fmt.Errorf("%w: Can't use avaxHop corridor with non-v2 source domain", ErrCorridorNotSupported)
		}
		if types.IsV2Domain(n, dst) {
			return fmt.Errorf("%w: Don't use avaxHop corridor when destination is also a v2 domain", ErrCorridorNotSupported)
		}
	case V2Direct:
		if !types.IsV2Domain(n, src) || !types.IsV2Domain(n, dst) {
			return fmt.Errorf("%w: Can't use v2 corridor for non-v2 domains", ErrCorridorNotSupported)
		}
	case V1:
		if !types.IsV1Domain(n, src) || !types.IsV1Domain(n, dst) {
			return fmt.Errorf("%w: Can't use v1 corridor for non-v1 domains", ErrCorridorNotSupported)
		}
	default:
		return fmt.Errorf("%w: unknown corridor %q", ErrCorridorNotSupported, c)
	}
	return nil
}

// CheckGasDropoff fails when the requested dropoff exceeds dst's limit. The
// request is compared in human units of the destination gas token.
func CheckGasDropoff(n types.Network, dst types.Domain, gasDropoff amount.Amount) error {
	if gasDropoff.Kind() == nil {
		return nil
	}
	limit := types.GasDropoffLimit(n, dst)
	if gasDropoff.In("human").Gt(limit.In("human")) {
		return fmt.Errorf("%w: requested %s, limit %s", ErrGasDropoffLimitExceeded, gasDropoff, limit)
	}
	return nil
}

func hopTime(n types.Network, src, dst types.Domain, version int) (amount.Amount, error) {
	att, ok := types.AttestationTime(n, version, src)
	if !ok {
		return amount.Amount{}, fmt.Errorf("%w: no v%d attestation estimate for %s", ErrCorridorNotSupported, version, src)
	}
	return att.Add(types.RelayOverhead(n, dst)), nil
}

// CalculateSpeed estimates the end-to-end transfer time over c.
func CalculateSpeed(n types.Network, src, dst types.Domain, c Corridor) (amount.Amount, error) {
	if c != AvaxHop {
		return hopTime(n, src, dst, c.Version())
	}
	first, err := hopTime(n, src, types.Avalanche, types.CctpV2)
	if err != nil {
		return amount.Amount{}, err
	}
	second, err := hopTime(n, types.Avalanche, dst, types.CctpV1)
	if err != nil {
		return amount.Amount{}, err
	}
	return first.Add(second), nil
}
