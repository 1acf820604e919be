package cctpr

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// FastBurnSource reports Circle's CCTP v2 fast transfer terms.
type FastBurnSource interface {
	// FastBurnFee is the minimum fast fee rate for burning on src toward dst.
	FastBurnFee(ctx context.Context, src, dst types.Domain) (amount.Amount, error)
	// FastBurnAllowance is how much USDC may currently be fast-burned.
	FastBurnAllowance(ctx context.Context) (amount.Amount, error)
}

// FastCost returns the fast fee rate for a v2 corridor. avaxHop pays the fee
// of its first leg to Avalanche.
func FastCost(ctx context.Context, fast FastBurnSource, src, dst types.Domain, c Corridor) (amount.Amount, error) {
	if c == AvaxHop {
		dst = types.Avalanche
	}
	return fast.FastBurnFee(ctx, src, dst)
}

// GetCorridors quotes every sensible corridor from src to dst. The fast burn
// allowance, the fast fee per v2 corridor and the platform relay costs are
// fetched concurrently; Stats follows SensibleCorridors order.
func GetCorridors(ctx context.Context, n types.Network, src, dst types.Domain, gasDropoff amount.Amount, fast FastBurnSource) (Corridors, error) {
	if src == dst {
		return Corridors{}, ErrSameDomain
	}
	for _, d := range []types.Domain{src, dst} {
		if !types.IsSupported(n, d) {
			return Corridors{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedDomain, d, n)
		}
	}
	if err := CheckGasDropoff(n, dst, gasDropoff); err != nil {
		return Corridors{}, err
	}
	impl, err := ImplementationFor(src)
	if err != nil {
		return Corridors{}, err
	}

	corridors := SensibleCorridors(n, src, dst)
	if len(corridors) == 0 {
		return Corridors{}, fmt.Errorf("%w: no corridor from %s to %s", ErrCorridorNotSupported, src, dst)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []error
		allowance amount.Amount
		relay     []RelayCost
		fastCosts = make([]*amount.Amount, len(corridors))
	)
	fail := func(what string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		a, err := fast.FastBurnAllowance(ctx)
		if err != nil {
			fail("fast burn allowance", err)
			return
		}
		allowance = a
	}()
	go func() {
		defer wg.Done()
		r, err := impl.RelayCosts(ctx, n, src, dst, corridors, gasDropoff)
		if err != nil {
			fail("relay costs", err)
			return
		}
		relay = r
	}()
	for i, c := range corridors {
		if !c.IsFast() {
			continue
		}
		wg.Add(1)
		go func(i int, c Corridor) {
			defer wg.Done()
			rate, err := FastCost(ctx, fast, src, dst, c)
			if err != nil {
				fail(fmt.Sprintf("fast fee %s", c), err)
				return
			}
			fastCosts[i] = &rate
		}(i, c)
	}
	wg.Wait()

	if len(errs) > 0 {
		return Corridors{}, fmt.Errorf("get corridors %s->%s: %w", src, dst, joinErrors(errs))
	}
	if len(relay) != len(corridors) {
		return Corridors{}, fmt.Errorf("get corridors %s->%s: got %d relay costs for %d corridors", src, dst, len(relay), len(corridors))
	}

	stats := make([]CorridorStats, len(corridors))
	for i, c := range corridors {
		speed, err := CalculateSpeed(n, src, dst, c)
		if err != nil {
			return Corridors{}, err
		}
		stats[i] = CorridorStats{
			Corridor:     c,
			Cost:         CorridorCost{Relay: relay[i], Fast: fastCosts[i]},
			TransferTime: speed,
		}
	}
	logrus.WithFields(logrus.Fields{
		"network":     n,
		"source":      src,
		"destination": dst,
		"corridors":   len(stats),
	}).Debug("Quoted corridors")
	return Corridors{FastBurnAllowance: allowance, Stats: stats}, nil
}

// GetCorridorsToAll quotes src against every destination concurrently. One
// destination failing does not stop the others; failures come back together
// as a MultiError alongside the successful results.
func GetCorridorsToAll(ctx context.Context, n types.Network, src types.Domain, dsts []types.Domain, fast FastBurnSource) (map[types.Domain]Corridors, error) {
	type result struct {
		dst       types.Domain
		corridors Corridors
		err       error
	}

	var wg sync.WaitGroup
	resultCh := make(chan result, len(dsts))
	for _, dst := range dsts {
		if dst == src {
			continue
		}
		wg.Add(1)
		go func(dst types.Domain) {
			defer wg.Done()
			c, err := GetCorridors(ctx, n, src, dst, amount.Amount{}, fast)
			resultCh <- result{dst, c, err}
		}(dst)
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[types.Domain]Corridors)
	errs := MultiError{}
	for r := range resultCh {
		if r.err != nil {
			errs[r.dst] = r.err
			logrus.Warnf("Error quoting corridors %s->%s: %v", src, r.dst, r.err)
			continue
		}
		out[r.dst] = r.corridors
	}
	return out, errs.OrNil()
}
