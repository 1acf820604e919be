// Package validation filters candidate routes before they are offered.
package validation

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/model"
)

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// MaxQuoteAge drops routes quoted longer ago than this.
	MaxQuoteAge time.Duration

	// MaxFeeShare drops routes whose total cost in USD exceeds this share of
	// the transferred amount (0.5 means half of it).
	MaxFeeShare float64

	// MaxDuration drops routes expected to take longer than this.
	MaxDuration time.Duration

	// DropExpired drops routes whose quote already lapsed.
	DropExpired bool

	// EnableOutlierDetection enables statistical outlier detection on cost
	EnableOutlierDetection bool

	// OutlierIQRMultiplier defines sensitivity for outlier detection (1.5 is standard)
	OutlierIQRMultiplier float64
}

// DefaultValidationOptions returns sensible defaults for validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxQuoteAge:            5 * time.Minute,
		MaxFeeShare:            0.5,
		MaxDuration:            time.Hour,
		DropExpired:            true,
		EnableOutlierDetection: false,
		OutlierIQRMultiplier:   1.5,
	}
}

// FilterInvalid removes routes that fail basic validation criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(routes []model.RouteSummary) []model.RouteSummary {
	return FilterInvalidWithOptions(routes, DefaultValidationOptions(), time.Now())
}

// FilterInvalidWithOptions removes routes with custom validation options,
// judging quote age and expiry at now.
func FilterInvalidWithOptions(routes []model.RouteSummary, opts ValidationOptions, now time.Time) []model.RouteSummary {
	valid := make([]model.RouteSummary, 0, len(routes))
	for _, r := range routes {
		if reason := invalidReason(r, opts, now); reason != "" {
			logrus.WithFields(logrus.Fields{
				"route":    r.ID,
				"corridor": r.Corridor,
				"kind":     r.Kind,
				"reason":   reason,
			}).Debug("Filtered invalid route")
			continue
		}
		valid = append(valid, r)
	}

	if opts.EnableOutlierDetection && len(valid) > 3 {
		return filterOutliers(valid, opts.OutlierIQRMultiplier)
	}
	return valid
}

// invalidReason returns why r fails validation, or "".
func invalidReason(r model.RouteSummary, opts ValidationOptions, now time.Time) string {
	if r.ID == "" || r.Corridor == "" {
		return "incomplete route"
	}
	if r.CostUsd() < 0 {
		return "negative cost"
	}
	if opts.DropExpired && r.Expired(now) {
		return "quote expired"
	}
	if opts.MaxQuoteAge > 0 && !r.QuotedAt.IsZero() && now.Sub(r.QuotedAt) > opts.MaxQuoteAge {
		return "quote too old"
	}
	if opts.MaxDuration > 0 && r.Seconds() > opts.MaxDuration.Seconds() {
		return "too slow"
	}
	if opts.MaxFeeShare > 0 && r.Amount.Kind() != nil {
		if value := r.Amount.In("USDC").Float64(); value > 0 && r.CostUsd()/value > opts.MaxFeeShare {
			return "fees exceed allowed share of amount"
		}
	}
	return ""
}

// filterOutliers removes routes whose cost is a statistical outlier using the
// IQR method. Only unusually expensive routes are removed.
func filterOutliers(routes []model.RouteSummary, iqrMultiplier float64) []model.RouteSummary {
	if len(routes) <= 3 {
		return routes
	}

	costs := make([]float64, len(routes))
	for i, r := range routes {
		costs[i] = r.CostUsd()
	}
	sort.Float64s(costs)
	q1 := costs[len(costs)/4]
	q3 := costs[len(costs)*3/4]
	upperBound := q3 + iqrMultiplier*(q3-q1)

	// The bound never falls below twice the mean cost.
	if mean := calculateMean(costs); upperBound < mean*2 {
		upperBound = mean * 2
	}

	valid := make([]model.RouteSummary, 0, len(routes))
	for _, r := range routes {
		if r.CostUsd() <= upperBound {
			valid = append(valid, r)
			continue
		}
		logrus.WithFields(logrus.Fields{
			"route":      r.ID,
			"cost_usd":   r.CostUsd(),
			"upperBound": upperBound,
		}).Info("Filtered outlier route")
	}

	logrus.WithFields(logrus.Fields{
		"total":    len(routes),
		"filtered": len(routes) - len(valid),
	}).Debug("Outlier filtering complete")
	return valid
}

// calculateMean computes the arithmetic mean of a slice of float64
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
