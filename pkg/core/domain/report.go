package domain

import "time"

// NoPopularItem is reported when no item has been clicked yet
const NoPopularItem = "none"

// ItemStats is one row of the per-item table
type ItemStats struct {
	Code     string  `json:"code"`
	Searches int64   `json:"searches"`
	Clicks   int64   `json:"clicks"`
	CTR      float64 `json:"ctr"`
}

// DailyBucket counts events for a single calendar day
type DailyBucket struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Searches int64  `json:"searches"`
	Clicks   int64  `json:"clicks"`
}

// KPIs are the dashboard headline numbers
type KPIs struct {
	TotalSearches   int64  `json:"total_searches"`
	TotalClicks     int64  `json:"total_clicks"`
	CTR             string `json:"ctr"`
	MostPopularCode string `json:"most_popular_code"`
}

// Report is the aggregated view served to the operator dashboard
type Report struct {
	KPIs          KPIs          `json:"kpis"`
	PerItem       []ItemStats   `json:"per_item"`
	DailyActivity []DailyBucket `json:"daily_activity"`
	TopByCTR      []ItemStats   `json:"top_by_ctr"`
	WindowDays    int           `json:"window_days"`
	GeneratedAt   time.Time     `json:"generated_at"`
}
