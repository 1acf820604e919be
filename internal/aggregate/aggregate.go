// Package aggregate computes summary statistics over candidate routes.
package aggregate

import (
	"sort"

	"github.com/yourorg/cctpr-engine/internal/model"
)

// Median returns the median of selector over routes, or 0 for none.
// Useful for robust statistics that are less sensitive to outliers.
func Median(routes []model.RouteSummary, selector func(model.RouteSummary) float64) float64 {
	if len(routes) == 0 {
		return 0
	}

	values := make([]float64, len(routes))
	for i, r := range routes {
		values[i] = selector(r)
	}
	sort.Float64s(values)
	n := len(values)

	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// Stats summarizes cost and duration of routes.
func Stats(routes []model.RouteSummary) model.RouteStats {
	if len(routes) == 0 {
		return model.RouteStats{}
	}
	out := model.RouteStats{
		Count:         len(routes),
		MinCostUsd:    routes[0].CostUsd(),
		MaxCostUsd:    routes[0].CostUsd(),
		MinSeconds:    routes[0].Seconds(),
		MaxSeconds:    routes[0].Seconds(),
		MedianCostUsd: Median(routes, model.RouteSummary.CostUsd),
		PerCorridor:   make(map[string]int),
	}
	for corridor, group := range GroupByCorridor(routes) {
		out.PerCorridor[corridor] = len(group)
	}
	for _, r := range routes[1:] {
		cost, secs := r.CostUsd(), r.Seconds()
		if cost < out.MinCostUsd {
			out.MinCostUsd = cost
		}
		if cost > out.MaxCostUsd {
			out.MaxCostUsd = cost
		}
		if secs < out.MinSeconds {
			out.MinSeconds = secs
		}
		if secs > out.MaxSeconds {
			out.MaxSeconds = secs
		}
	}
	return out
}

// GroupByCorridor splits routes by corridor, keeping input order inside each
// group.
func GroupByCorridor(routes []model.RouteSummary) map[string][]model.RouteSummary {
	out := make(map[string][]model.RouteSummary)
	for _, r := range routes {
		out[r.Corridor] = append(out[r.Corridor], r)
	}
	return out
}

// CheapestPerCorridor keeps the cheapest route of every corridor. Ties keep
// the first seen. The result follows the order in which corridors first
// appear in routes.
func CheapestPerCorridor(routes []model.RouteSummary) []model.RouteSummary {
	best := make(map[string]int)
	var order []string
	for i, r := range routes {
		j, ok := best[r.Corridor]
		if !ok {
			best[r.Corridor] = i
			order = append(order, r.Corridor)
			continue
		}
		if r.CostUsd() < routes[j].CostUsd() {
			best[r.Corridor] = i
		}
	}
	out := make([]model.RouteSummary, len(order))
	for i, c := range order {
		out[i] = routes[best[c]]
	}
	return out
}

// Summarize builds the route set answer, marking the fastest and cheapest
// route by ID.
func Summarize(routes []model.RouteSummary, fastest, cheapest int) model.RouteSet {
	set := model.RouteSet{Routes: routes, Stats: Stats(routes)}
	for _, r := range CheapestPerCorridor(routes) {
		set.CheapestPerCorridor = append(set.CheapestPerCorridor, r.ID)
	}
	if fastest >= 0 && fastest < len(routes) {
		set.Fastest = routes[fastest].ID
	}
	if cheapest >= 0 && cheapest < len(routes) {
		set.Cheapest = routes[cheapest].ID
	}
	return set
}
