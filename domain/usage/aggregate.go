package usage

import "time"

// Period is the time range a Stats value covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// NewPeriod returns the range [now - days, now].
// This is a PURE function.
func NewPeriod(now time.Time, days int) Period {
	if days < 0 {
		days = 0
	}
	now = now.UTC()
	return Period{
		Start: now.AddDate(0, 0, -days),
		End:   now,
		Days:  days,
	}
}

// Filter returns the event filter for a key over the period.
func (p Period) Filter(apiKey string, userID int64) Filter {
	return Filter{APIKey: apiKey, UserID: userID, Start: p.Start, End: p.End}
}

// EndpointStats summarizes requests to one endpoint.
type EndpointStats struct {
	Count   int64   `json:"count"`
	AvgTime float64 `json:"avgTime"`
}

// Stats is the derived usage summary for a period (value type, never stored).
type Stats struct {
	Period                Period                   `json:"period"`
	TotalRequests         int64                    `json:"totalRequests"`
	SuccessfulRequests    int64                    `json:"successfulRequests"`
	ErrorRequests         int64                    `json:"errorRequests"`
	SuccessRate           float64                  `json:"successRate"`
	AverageResponseTimeMs float64                  `json:"averageResponseTimeMs"`
	EndpointStats         map[string]EndpointStats `json:"endpointStats"`
}

// Aggregate summarizes the events that fall inside the period.
// A period of zero days is empty. Sums are integers, so the result does
// not depend on event order.
// This is a PURE function.
func Aggregate(events []Event, period Period) Stats {
	stats := Stats{
		Period:        period,
		EndpointStats: map[string]EndpointStats{},
	}
	if period.Days <= 0 {
		return stats
	}

	window := Filter{Start: period.Start, End: period.End}
	var totalTime int64
	endpointTime := map[string]int64{}

	for _, e := range events {
		if !window.Matches(e) {
			continue
		}
		stats.TotalRequests++
		if e.Succeeded() {
			stats.SuccessfulRequests++
		} else {
			stats.ErrorRequests++
		}
		totalTime += e.ProcessingTimeMs

		es := stats.EndpointStats[e.Endpoint]
		es.Count++
		stats.EndpointStats[e.Endpoint] = es
		endpointTime[e.Endpoint] += e.ProcessingTimeMs
	}

	if stats.TotalRequests == 0 {
		return stats
	}

	stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	stats.AverageResponseTimeMs = float64(totalTime) / float64(stats.TotalRequests)
	for endpoint, es := range stats.EndpointStats {
		es.AvgTime = float64(endpointTime[endpoint]) / float64(es.Count)
		stats.EndpointStats[endpoint] = es
	}
	return stats
}

// Query asks for the stats of one key over the last Days days.
type Query struct {
	APIKey string
	UserID int64
	Days   int
}
