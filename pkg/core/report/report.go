// Package report folds the item registry and the event log into the
// dashboard report. Compute keeps no state between calls.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

const (
	DefaultWindowDays = 7
	DefaultTopN       = 5
	MaxWindowDays     = 366

	dateLayout = "2006-01-02"
)

// Options tunes a single Compute call. Zero values fall back to defaults.
type Options struct {
	WindowDays int
	TopN       int
	Now        time.Time
	Location   *time.Location
}

func (o Options) normalized() Options {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.WindowDays > MaxWindowDays {
		o.WindowDays = MaxWindowDays
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Compute builds the report from full snapshots of items and events.
func Compute(items []domain.Item, events []domain.Event, opts Options) *domain.Report {
	opts = opts.normalized()

	counters := make(map[string]*domain.ItemStats, len(items))
	rows := make([]*domain.ItemStats, 0, len(items))
	for _, it := range items {
		if _, seen := counters[it.ID]; seen {
			continue
		}
		row := &domain.ItemStats{Code: it.Code}
		counters[it.ID] = row
		rows = append(rows, row)
	}

	daily, index := seedBuckets(opts.Now.In(opts.Location), opts.WindowDays)

	for _, ev := range events {
		row, ok := counters[ev.ItemID]
		if !ok {
			continue
		}
		var bucket *domain.DailyBucket
		if i, inWindow := index[ev.Timestamp.In(opts.Location).Format(dateLayout)]; inWindow {
			bucket = &daily[i]
		}
		switch ev.Type {
		case domain.EventEntry:
			row.Searches++
			if bucket != nil {
				bucket.Searches++
			}
		case domain.EventClick:
			row.Clicks++
			if bucket != nil {
				bucket.Clicks++
			}
		}
	}

	perItem := make([]domain.ItemStats, 0, len(rows))
	for _, row := range rows {
		row.CTR = clickThrough(row.Clicks, row.Searches)
		perItem = append(perItem, *row)
	}
	sort.SliceStable(perItem, func(i, j int) bool {
		return domain.CompareCodes(perItem[i].Code, perItem[j].Code) < 0
	})

	return &domain.Report{
		KPIs:          kpis(perItem),
		PerItem:       perItem,
		DailyActivity: daily,
		TopByCTR:      topByCTR(perItem, opts.TopN),
		WindowDays:    opts.WindowDays,
		GeneratedAt:   opts.Now,
	}
}

// seedBuckets returns zeroed buckets for the trailing window ending today,
// oldest first, and an index from date key to bucket position.
func seedBuckets(now time.Time, days int) ([]domain.DailyBucket, map[string]int) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	buckets := make([]domain.DailyBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		key := today.AddDate(0, 0, i-(days-1)).Format(dateLayout)
		buckets[i] = domain.DailyBucket{Date: key}
		index[key] = i
	}
	return buckets, index
}

func kpis(perItem []domain.ItemStats) domain.KPIs {
	k := domain.KPIs{MostPopularCode: domain.NoPopularItem}
	var best int64
	for _, row := range perItem {
		k.TotalSearches += row.Searches
		k.TotalClicks += row.Clicks
		// perItem is in code order, so strict > keeps the lowest code on ties
		if row.Clicks > best {
			best = row.Clicks
			k.MostPopularCode = row.Code
		}
	}
	k.CTR = "0.0"
	if k.TotalSearches > 0 {
		k.CTR = fmt.Sprintf("%.1f", float64(k.TotalClicks)/float64(k.TotalSearches)*100)
	}
	return k
}

func topByCTR(perItem []domain.ItemStats, n int) []domain.ItemStats {
	top := make([]domain.ItemStats, len(perItem))
	copy(top, perItem)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].CTR > top[j].CTR
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}

func clickThrough(clicks, searches int64) float64 {
	if searches == 0 {
		return 0
	}
	return math.Round(float64(clicks)/float64(searches)*1000) / 10
}
