package route

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/cctpr-engine/internal/aggregate"
	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/circuitbreaker"
	"github.com/yourorg/cctpr-engine/internal/evm"
	"github.com/yourorg/cctpr-engine/internal/fetch"
	"github.com/yourorg/cctpr-engine/internal/model"
	"github.com/yourorg/cctpr-engine/internal/otel"
	"github.com/yourorg/cctpr-engine/internal/solana"
	"github.com/yourorg/cctpr-engine/internal/types"
	"github.com/yourorg/cctpr-engine/internal/validation"
)

// ErrNoRoutes means no corridor produced a usable route.
var ErrNoRoutes = errors.New("no routes available")

// Gas the user's on-chain steps are expected to use.
const approvalGas = 40_000

var transferGas = map[cctpr.Corridor]uint64{
	cctpr.V1:       120_000,
	cctpr.V2Direct: 200_000,
	cctpr.AvaxHop:  300_000,
}

// GaslessQuoter prices relayer-submitted transfers.
type GaslessQuoter interface {
	Quote(ctx context.Context, req fetch.GaslessQuoteRequest) (*fetch.GaslessQuote, error)
}

// GasPricer prices the gas of one on-chain step in the domain's gas token.
// Platform implementations that also satisfy it get their routes' steps
// priced.
type GasPricer interface {
	StepCost(ctx context.Context, n types.Network, d types.Domain, gas uint64) (amount.Amount, error)
}

var usdPerUsdc = amount.Rate(amount.Usd, "USD", amount.Usdc, "USDC", amount.R(1))

// Finder builds the candidate routes of an intent.
type Finder struct {
	fast       cctpr.FastBurnSource
	gasless    GaslessQuoter
	breaker    *circuitbreaker.CircuitBreaker
	validation validation.ValidationOptions
	now        func() time.Time
}

func NewFinder(fast cctpr.FastBurnSource) *Finder {
	return &Finder{fast: fast, validation: validation.DefaultValidationOptions(), now: time.Now}
}

// WithGasless enables gasless routes.
func (f *Finder) WithGasless(q GaslessQuoter) *Finder {
	f.gasless = q
	return f
}

// WithBreaker skips corridors whose relay quotes the breaker rejects.
func (f *Finder) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Finder {
	f.breaker = cb
	return f
}

func (f *Finder) WithValidation(opts validation.ValidationOptions) *Finder {
	f.validation = opts
	return f
}

// FindRoutes quotes every usable corridor of in and returns the routes that
// pass validation, ordered by corridor and then gasless, permit, approval.
func (f *Finder) FindRoutes(ctx context.Context, in Intent) (routes []*Route, err error) {
	in = in.WithDefaults()
	ctx, span := otel.Tracer().Start(ctx, "route.FindRoutes", trace.WithAttributes(
		attribute.String("network", string(in.Network)),
		attribute.String("source", string(in.Source)),
		attribute.String("destination", string(in.Destination)),
	))
	defer func() {
		otel.RecordError(ctx, err)
		span.SetAttributes(attribute.Int("routes", len(routes)))
		span.End()
	}()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	recipient, err := UniversalAddress(in.Destination, in.Recipient)
	if err != nil {
		return nil, err
	}
	corridors, err := cctpr.GetCorridors(ctx, in.Network, in.Source, in.Destination, in.GasDropoff, f.fast)
	if err != nil {
		return nil, err
	}
	usable := f.usableCorridors(in, corridors)
	if len(usable) == 0 {
		return nil, ErrNoRoutes
	}

	b := &builder{in: in, recipient: recipient, now: f.now(), stepCosts: make(map[uint64]*amount.Amount)}
	userFunded := make([][]*Route, len(usable))
	gasless := make([]*Route, len(usable))
	var wg sync.WaitGroup
	for i, s := range usable {
		if f.offersGasless(in) {
			wg.Add(1)
			go func(i int, s cctpr.CorridorStats) {
				defer wg.Done()
				gasless[i] = b.gasless(ctx, f.gasless, s)
			}(i, s)
		}
		userFunded[i] = b.userFunded(s)
	}
	wg.Wait()

	var candidates []*Route
	for i := range usable {
		if gasless[i] != nil {
			candidates = append(candidates, gasless[i])
		}
		candidates = append(candidates, userFunded[i]...)
	}

	price, hasPrice := gasTokenPrice(usable)
	pricer := gasPricerFor(in.Source)
	for _, r := range candidates {
		r.EstimatedCost = b.totalCost(ctx, r, pricer, price, hasPrice)
	}

	routes = f.validate(candidates, b.now)
	logrus.WithFields(logrus.Fields{
		"source":      in.Source,
		"destination": in.Destination,
		"corridors":   len(usable),
		"candidates":  len(candidates),
		"routes":      len(routes),
	}).Debug("Found routes")
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	return routes, nil
}

func (f *Finder) offersGasless(in Intent) bool {
	return f.gasless != nil && in.payInUsdc() && in.Source.Platform() == types.PlatformEvm
}

// usableCorridors drops fast corridors the amount cannot be fast-burned over
// and corridors whose relay quote the breaker rejects.
func (f *Finder) usableCorridors(in Intent, c cctpr.Corridors) []cctpr.CorridorStats {
	out := make([]cctpr.CorridorStats, 0, len(c.Stats))
	for _, s := range c.Stats {
		log := logrus.WithFields(logrus.Fields{
			"source":      in.Source,
			"destination": in.Destination,
			"corridor":    s.Corridor,
		})
		if s.Corridor.IsFast() && c.FastBurnAllowance.Kind() != nil && in.Amount.Gt(c.FastBurnAllowance) {
			log.WithField("allowance", c.FastBurnAllowance.String()).Debug("Amount exceeds fast burn allowance")
			continue
		}
		if f.breaker != nil {
			lane := circuitbreaker.Lane{Source: in.Source, Destination: in.Destination, Corridor: s.Corridor}
			if err := f.breaker.Check(lane, s.Cost.Relay.Usdc); err != nil {
				log.WithError(err).Warn("Skipping corridor")
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func (f *Finder) validate(candidates []*Route, now time.Time) []*Route {
	valid := validation.FilterInvalidWithOptions(Summaries(candidates), f.validation, now)
	keep := make(map[string]bool, len(valid))
	for _, s := range valid {
		keep[s.ID] = true
	}
	out := make([]*Route, 0, len(valid))
	for _, r := range candidates {
		if keep[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// builder assembles the candidates of one FindRoutes call.
type builder struct {
	in        Intent
	recipient []byte
	now       time.Time

	// stepCosts memoizes gas prices by gas units. Only used after the
	// concurrent quoting is done.
	stepCosts map[uint64]*amount.Amount
}

func (b *builder) corridorParams(s cctpr.CorridorStats) cctpr.CorridorParams {
	p := cctpr.CorridorParams{Type: s.Corridor}
	if s.Cost.Fast != nil {
		p.FastFeeRate = *s.Cost.Fast
	}
	return p
}

func (b *builder) onChainQuote(s cctpr.CorridorStats) (cctpr.OnChainQuote, amount.Amount) {
	inUsdc := b.in.payInUsdc()
	fee := s.Cost.Relay.In(inUsdc)
	return cctpr.OnChainQuote{
		MaxRelayFee:       fee.Mul(b.in.margin()).Ceil("atomic"),
		TakeFeesFromInput: inUsdc && b.in.Direction == cctpr.In,
	}, fee
}

// build prices s for kind. It returns nil when the amount does not cover the
// fees.
func (b *builder) build(s cctpr.CorridorStats, kind model.RouteKind, gaslessFee amount.Amount, options any) *Route {
	params := b.corridorParams(s)
	quote, relayFee := b.onChainQuote(s)
	amounts, err := cctpr.CalcUsdcAmounts(b.in.inOrOut(), params, quote, gaslessFee)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"corridor": s.Corridor,
			"kind":     kind,
		}).WithError(err).Debug("Skipping route candidate")
		return nil
	}

	fees := []model.Fee{{Name: "relay", Amount: relayFee}}
	if s.Cost.Fast != nil {
		fees = append(fees, model.Fee{Name: "fast", Amount: cctpr.CalcFastFee(amounts.Burn, *s.Cost.Fast)})
	}
	if gaslessFee.Kind() != nil && !gaslessFee.IsZero() {
		fees = append(fees, model.Fee{Name: "gasless", Amount: gaslessFee})
	}

	return &Route{
		ID:                uuid.NewString(),
		Intent:            b.in,
		Kind:              kind,
		Corridor:          params,
		Quote:             quote,
		Fees:              fees,
		Steps:             b.steps(kind, s.Corridor),
		EstimatedDuration: s.TransferTime,
		EstimatedCost:     amount.Zero(amount.Usd),
		QuotedAt:          b.now,
		request: cctpr.TransferRequest{
			Network:     b.in.Network,
			Source:      b.in.Source,
			Destination: b.in.Destination,
			Sender:      b.in.Sender,
			Recipient:   b.recipient,
			InOrOut:     b.in.inOrOut(),
			Corridor:    params,
			Quote:       quote,
			GasDropoff:  b.in.GasDropoff,
			Options:     options,
		},
	}
}

func (b *builder) steps(kind model.RouteKind, c cctpr.Corridor) []Step {
	src := b.in.Source
	transfer := Step{Kind: cctpr.ActionTransfer, Domain: src, Gas: transferGas[c]}
	switch kind {
	case model.KindGasless:
		return []Step{
			{Kind: cctpr.ActionSignPermit2, Domain: src},
			{Kind: cctpr.ActionGaslessTransfer, Domain: src},
		}
	case model.KindPermit:
		return []Step{{Kind: cctpr.ActionSignPermit, Domain: src}, transfer}
	case model.KindApproval:
		return []Step{{Kind: cctpr.ActionPreApprove, Domain: src, Gas: approvalGas}, transfer}
	}
	return []Step{transfer}
}

// userFunded returns the routes where the user sends the transfer.
func (b *builder) userFunded(s cctpr.CorridorStats) []*Route {
	var out []*Route
	add := func(r *Route) {
		if r != nil {
			out = append(out, r)
		}
	}
	switch b.in.Source.Platform() {
	case types.PlatformSolana:
		add(b.build(s, model.KindDirect, amount.Amount{}, solana.TransferOptions{}))
	case types.PlatformEvm:
		if b.in.usePermit() {
			add(b.build(s, model.KindPermit, amount.Amount{}, evm.TransferOptions{UsePermit: true}))
		}
		add(b.build(s, model.KindApproval, amount.Amount{}, evm.TransferOptions{}))
	}
	return out
}

// gasless asks the relayer to submit the transfer over s. It returns nil when
// the relayer declines or the quote leaves nothing to transfer.
func (b *builder) gasless(ctx context.Context, q GaslessQuoter, s cctpr.CorridorStats) *Route {
	quote, _ := b.onChainQuote(s)
	gq, err := q.Quote(ctx, fetch.GaslessQuoteRequest{
		Source:            b.in.Source,
		Destination:       b.in.Destination,
		Amount:            b.in.Amount,
		Sender:            b.in.Sender,
		Recipient:         b.in.Recipient,
		Corridor:          b.corridorParams(s),
		GasDropoff:        b.in.GasDropoff,
		MaxRelayFee:       quote.MaxRelayFee,
		TakeFeesFromInput: quote.TakeFeesFromInput,
	})
	if err != nil {
		log := logrus.WithField("corridor", s.Corridor).WithError(err)
		if errors.Is(err, fetch.ErrGaslessUnavailable) {
			log.Debug("Gasless relay declined")
		} else {
			log.Warn("Gasless quote failed")
		}
		return nil
	}
	r := b.build(s, model.KindGasless, gq.GaslessFee, evm.GaslessOptions{GaslessFee: gq.GaslessFee, Deadline: gq.ExpiresAt})
	if r != nil {
		r.Gasless = gq
	}
	return r
}

// gasTokenPrice derives USDC per source gas token from the first relay quote
// given in both currencies.
func gasTokenPrice(stats []cctpr.CorridorStats) (amount.Conversion, bool) {
	for _, s := range stats {
		r := s.Cost.Relay
		if r.Usdc.Kind() != nil && r.GasToken.Kind() != nil && r.GasToken.Sign() > 0 {
			return amount.NewConversion(r.Usdc, r.GasToken), true
		}
	}
	return amount.Conversion{}, false
}

func gasPricerFor(d types.Domain) GasPricer {
	impl, err := cctpr.ImplementationFor(d)
	if err != nil {
		logrus.WithField("domain", d).WithError(err).Warn("No implementation to price gas with")
		return nil
	}
	p, _ := impl.(GasPricer)
	return p
}

func (b *builder) toUsd(a amount.Amount, price amount.Conversion, hasPrice bool) (amount.Amount, bool) {
	switch {
	case a.Kind() == nil:
		return amount.Zero(amount.Usd), true
	case a.Kind().Same(amount.Usd):
		return a, true
	case a.Kind().Same(amount.Usdc):
		return a.Convert(usdPerUsdc), true
	case hasPrice && a.Kind().Same(price.Den()):
		return a.Convert(price).Convert(usdPerUsdc), true
	}
	return amount.Amount{}, false
}

func (b *builder) stepCost(ctx context.Context, pricer GasPricer, gas uint64) (amount.Amount, bool) {
	if cached, ok := b.stepCosts[gas]; ok {
		if cached == nil {
			return amount.Amount{}, false
		}
		return *cached, true
	}
	cost, err := pricer.StepCost(ctx, b.in.Network, b.in.Source, gas)
	if err != nil {
		logrus.WithFields(logrus.Fields{"domain": b.in.Source, "gas": gas}).WithError(err).Warn("Failed to price step")
		b.stepCosts[gas] = nil
		return amount.Amount{}, false
	}
	b.stepCosts[gas] = &cost
	return cost, true
}

// totalCost adds up r's fees and the gas of its on-chain steps in USD. Parts
// that cannot be priced are left out.
func (b *builder) totalCost(ctx context.Context, r *Route, pricer GasPricer, price amount.Conversion, hasPrice bool) amount.Amount {
	total := amount.Zero(amount.Usd)
	for _, fee := range r.Fees {
		if usd, ok := b.toUsd(fee.Amount, price, hasPrice); ok {
			total = total.Add(usd)
		}
	}
	if pricer == nil {
		return total
	}
	for _, s := range r.Steps {
		if s.Gas == 0 {
			continue
		}
		cost, ok := b.stepCost(ctx, pricer, s.Gas)
		if !ok {
			continue
		}
		if usd, ok := b.toUsd(cost, price, hasPrice); ok {
			total = total.Add(usd)
		}
	}
	return total
}

// Best returns the index of the fastest and of the cheapest route, or -1 for
// both when routes is empty. Ties keep the earlier route.
func Best(routes []*Route) (fastest, cheapest int) {
	fastest, cheapest = -1, -1
	for i, r := range routes {
		if fastest < 0 || r.EstimatedDuration.Lt(routes[fastest].EstimatedDuration) {
			fastest = i
		}
		if cheapest < 0 || r.EstimatedCost.Lt(routes[cheapest].EstimatedCost) {
			cheapest = i
		}
	}
	return fastest, cheapest
}

// Summarize is the API view of routes.
func Summarize(routes []*Route) model.RouteSet {
	fastest, cheapest := Best(routes)
	return aggregate.Summarize(Summaries(routes), fastest, cheapest)
}
