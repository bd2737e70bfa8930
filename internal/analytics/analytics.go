// Package analytics derives dashboard snapshots from the expense log.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"budgetwise/internal/core"
)

const (
	DailyBuckets   = 7
	MonthlyBuckets = 6

	dayLayout   = "2006-01-02"
	monthLayout = "Jan 2006"
)

// Filter selects which records feed a snapshot. An empty Range means all
// time and an empty Categories means every category.
type Filter struct {
	Range      core.TimeRange
	Categories []core.Category
}

type histogramRange struct {
	label string
	min   float64
}

// Ordered from the top down; a confidence lands in the first range whose
// lower bound it reaches.
var histogramRanges = []histogramRange{
	{"90-100%", 0.9},
	{"80-90%", 0.8},
	{"70-80%", 0.7},
	{"60-70%", 0.6},
	{"0-60%", 0},
}

// HistogramLabels returns the confidence bucket labels in display order.
func HistogramLabels() []string {
	out := make([]string, len(histogramRanges))
	for i, r := range histogramRanges {
		out[i] = r.label
	}
	return out
}

// Compute builds a snapshot of records matching f as seen at now. It does
// not modify records and returns the same result for the same inputs.
func Compute(records []core.ExpenseRecord, f Filter, now time.Time) core.AnalyticsSnapshot {
	loc := now.Location()
	selected := Select(records, f, now)

	snap := core.AnalyticsSnapshot{
		CategoryBreakdown:  make(map[core.Category]float64),
		MethodDistribution: make(map[string]int),
		TransactionCount:   len(selected),
	}

	byCategory := make(map[core.Category]decimal.Decimal)
	var confidenceSum float64
	for _, r := range selected {
		byCategory[r.Category] = byCategory[r.Category].Add(decimal.NewFromFloat(r.Amount))
		snap.MethodDistribution[r.Method]++
		confidenceSum += r.Confidence
	}

	total := decimal.Zero
	for _, c := range core.Categories() {
		sum, ok := byCategory[c]
		if !ok {
			continue
		}
		snap.CategoryBreakdown[c] = sum.InexactFloat64()
		total = total.Add(sum)
	}
	snap.TotalAmount = total.InexactFloat64()
	if len(selected) > 0 {
		snap.AverageConfidence = confidenceSum / float64(len(selected))
	}

	snap.DailyTrend = dailyTrend(selected, now, loc)
	snap.MonthlyTrend = monthlyTrend(selected, now, loc)
	snap.ConfidenceHistogram = confidenceHistogram(selected)
	snap.ProcessingTime = processingTime(selected)
	return snap
}

// Select returns the records f admits at now, in log order.
func Select(records []core.ExpenseRecord, f Filter, now time.Time) []core.ExpenseRecord {
	cutoff, bounded := f.Range.Cutoff(now)
	allowed := allowedCategories(f.Categories)

	out := make([]core.ExpenseRecord, 0, len(records))
	for _, r := range records {
		if bounded && r.Timestamp.Before(cutoff) {
			continue
		}
		if !allowed[r.Category] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func allowedCategories(cats []core.Category) map[core.Category]bool {
	if len(cats) == 0 {
		cats = core.Categories()
	}
	allowed := make(map[core.Category]bool, len(cats))
	for _, c := range cats {
		allowed[c] = true
	}
	return allowed
}

func dailyTrend(records []core.ExpenseRecord, now time.Time, loc *time.Location) []core.DailyBucket {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, r := range records {
		day := r.Timestamp.In(loc).Format(dayLayout)
		sums[day] = sums[day].Add(decimal.NewFromFloat(r.Amount))
		counts[day]++
	}

	y, m, d := now.Date()
	out := make([]core.DailyBucket, 0, DailyBuckets)
	for i := DailyBuckets - 1; i >= 0; i-- {
		day := time.Date(y, m, d-i, 0, 0, 0, 0, loc).Format(dayLayout)
		out = append(out, core.DailyBucket{
			Date:   day,
			Amount: sums[day].InexactFloat64(),
			Count:  counts[day],
		})
	}
	return out
}

type monthKey struct {
	year  int
	month time.Month
}

func monthlyTrend(records []core.ExpenseRecord, now time.Time, loc *time.Location) []core.MonthlyBucket {
	sums := make(map[monthKey]map[core.Category]decimal.Decimal)
	for _, r := range records {
		t := r.Timestamp.In(loc)
		k := monthKey{t.Year(), t.Month()}
		if sums[k] == nil {
			sums[k] = make(map[core.Category]decimal.Decimal)
		}
		sums[k][r.Category] = sums[k][r.Category].Add(decimal.NewFromFloat(r.Amount))
	}

	y, m, _ := now.Date()
	out := make([]core.MonthlyBucket, 0, MonthlyBuckets)
	for i := MonthlyBuckets - 1; i >= 0; i-- {
		first := time.Date(y, m-time.Month(i), 1, 0, 0, 0, 0, loc)
		month := sums[monthKey{first.Year(), first.Month()}]
		out = append(out, core.MonthlyBucket{
			Label:   first.Format(monthLayout),
			Needs:   month[core.Needs].InexactFloat64(),
			Wants:   month[core.Wants].InexactFloat64(),
			Savings: month[core.Savings].InexactFloat64(),
		})
	}
	return out
}

func confidenceHistogram(records []core.ExpenseRecord) []core.ConfidenceBucket {
	out := make([]core.ConfidenceBucket, len(histogramRanges))
	for i, r := range histogramRanges {
		out[i].Label = r.label
	}
	for _, rec := range records {
		for i, r := range histogramRanges {
			if rec.Confidence >= r.min || i == len(histogramRanges)-1 {
				out[i].Count++
				break
			}
		}
	}
	return out
}

func processingTime(records []core.ExpenseRecord) core.ProcessingTimeStats {
	var stats core.ProcessingTimeStats
	var sum float64
	n := 0
	for _, r := range records {
		if r.ProcessingTimeMs <= 0 {
			continue
		}
		if n == 0 || r.ProcessingTimeMs < stats.Min {
			stats.Min = r.ProcessingTimeMs
		}
		if r.ProcessingTimeMs > stats.Max {
			stats.Max = r.ProcessingTimeMs
		}
		sum += r.ProcessingTimeMs
		n++
	}
	if n > 0 {
		stats.Avg = sum / float64(n)
	}
	return stats
}
