// Package circuitbreaker guards route finding against implausible relay
// quotes. Each (source, destination, corridor) lane has its own breaker: a
// quote above the absolute ceiling, or one that jumps too far above the last
// good quote of the lane, trips it, and the lane is skipped until it recovers.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

var (
	// ErrOpen is returned for a lane whose breaker is open.
	ErrOpen = errors.New("circuit breaker open")
	// ErrTripped is returned by the Check that opened the lane.
	ErrTripped = errors.New("circuit breaker tripped")
)

// State represents the current state of a lane's breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, lane skipped
	StateHalfOpen              // Testing if quotes are sane again
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Lane identifies the quotes a breaker compares against each other.
type Lane struct {
	Source      types.Domain   `json:"source"`
	Destination types.Domain   `json:"destination"`
	Corridor    cctpr.Corridor `json:"corridor"`
}

func (l Lane) String() string {
	return fmt.Sprintf("%s->%s/%s", l.Source, l.Destination, l.Corridor)
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// MaxRelayFee is the highest plausible USDC relay fee. The zero Amount
	// disables the ceiling.
	MaxRelayFee amount.Amount

	// MaxFeeChange is the largest allowed ratio of a quote to the lane's last
	// good quote (3.0 lets the fee triple). 0 disables the check.
	MaxFeeChange float64
}

type laneState struct {
	state        State
	lastTrip     time.Time
	reason       string
	successCount int
	lastGood     *amount.Amount
}

// CircuitBreaker holds one breaker per lane.
type CircuitBreaker struct {
	thresholds Thresholds

	// Duration before auto-reset attempt
	resetDelay time.Duration

	// Number of sane quotes required to close a half-open lane
	successThreshold int

	mu    sync.RWMutex
	lanes map[Lane]*laneState

	onTripCallback func(lane Lane, reason string)
	now            func() time.Time
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
		lanes:            make(map[Lane]*laneState),
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of sane quotes needed to close a lane
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when a lane trips
func (cb *CircuitBreaker) WithTripCallback(callback func(lane Lane, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

func (cb *CircuitBreaker) lane(l Lane) *laneState {
	s, ok := cb.lanes[l]
	if !ok {
		s = &laneState{}
		cb.lanes[l] = s
	}
	return s
}

// Check evaluates the USDC relay fee quoted for lane. An open lane is
// rejected with ErrOpen until the reset delay passes; a fee that violates the
// thresholds trips the lane.
func (cb *CircuitBreaker) Check(l Lane, fee amount.Amount) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.lane(l)

	if s.state == StateOpen {
		if cb.now().Sub(s.lastTrip) <= cb.resetDelay {
			return fmt.Errorf("%w for %s: %s", ErrOpen, l, s.reason)
		}
		s.state = StateHalfOpen
		s.successCount = 0
		logrus.WithField("lane", l.String()).Info("Circuit breaker half-open: testing quote sanity")
	}

	if ceiling := cb.thresholds.MaxRelayFee; ceiling.Kind() != nil && fee.Gt(ceiling) {
		reason := fmt.Sprintf("relay fee exceeds maximum: %s > %s", fee, ceiling)
		cb.trip(l, s, reason)
		return fmt.Errorf("%w: %s", ErrTripped, reason)
	}

	if s.lastGood != nil && cb.thresholds.MaxFeeChange > 0 && s.lastGood.Sign() > 0 {
		ratio := fee.Ratio(*s.lastGood).Float64()
		if ratio > cb.thresholds.MaxFeeChange {
			reason := fmt.Sprintf("relay fee jumped %.2fx over last good quote (threshold: %.2fx)",
				ratio, cb.thresholds.MaxFeeChange)
			cb.trip(l, s, reason)
			return fmt.Errorf("%w: %s", ErrTripped, reason)
		}
	}

	s.lastGood = &fee
	if s.state == StateHalfOpen {
		s.successCount++
		if s.successCount >= cb.successThreshold {
			s.state = StateClosed
			s.successCount = 0
			s.reason = ""
			logrus.WithField("lane", l.String()).Info("Circuit breaker closed: quotes recovered")
		}
	}
	return nil
}

// Allow reports whether lane may be quoted without recording anything.
func (cb *CircuitBreaker) Allow(l Lane) bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	s, ok := cb.lanes[l]
	return !ok || s.state != StateOpen || cb.now().Sub(s.lastTrip) > cb.resetDelay
}

// GetState returns the current state of lane
func (cb *CircuitBreaker) GetState(l Lane) State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if s, ok := cb.lanes[l]; ok {
		return s.state
	}
	return StateClosed
}

// LastGood returns the last fee of lane that passed the checks.
func (cb *CircuitBreaker) LastGood(l Lane) (amount.Amount, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if s, ok := cb.lanes[l]; ok && s.lastGood != nil {
		return *s.lastGood, true
	}
	return amount.Amount{}, false
}

// Reset forcibly closes every lane. Last good quotes are kept.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for _, s := range cb.lanes {
		s.state = StateClosed
		s.successCount = 0
		s.reason = ""
	}
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LaneStatus is the externally visible state of one lane.
type LaneStatus struct {
	Lane     Lane           `json:"lane"`
	State    string         `json:"state"`
	Reason   string         `json:"reason,omitempty"`
	LastTrip *time.Time     `json:"last_trip,omitempty"`
	LastGood *amount.Amount `json:"last_good,omitempty"`
}

// Status lists every known lane, sorted by name.
func (cb *CircuitBreaker) Status() []LaneStatus {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	out := make([]LaneStatus, 0, len(cb.lanes))
	for l, s := range cb.lanes {
		st := LaneStatus{Lane: l, State: s.state.String(), Reason: s.reason, LastGood: s.lastGood}
		if !s.lastTrip.IsZero() {
			trip := s.lastTrip
			st.LastTrip = &trip
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lane.String() < out[j].Lane.String() })
	return out
}

// trip opens lane. Callers hold cb.mu.
func (cb *CircuitBreaker) trip(l Lane, s *laneState, reason string) {
	s.state = StateOpen
	s.lastTrip = cb.now()
	s.reason = reason
	s.successCount = 0
	logrus.WithField("lane", l.String()).Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(l, reason)
	}
}
