package analytics

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

// AnalyzeSeasonality aggregates the full history by weekday, hour of day and
// month of year and derives peak periods from those aggregates.
func (e *Engine) AnalyzeSeasonality(sales []models.Sale) *models.SeasonalPatterns {
	loc := e.settings.Location
	byDay := seasonalBuckets(BucketSales(sales, ByWeekday, loc))
	byHour := seasonalBuckets(BucketSales(sales, ByHour, loc))
	byMonth := seasonalBuckets(BucketSales(sales, ByMonth, loc))

	peakDays := e.peaks(byDay)
	peakHours := e.peaks(byHour)

	return &models.SeasonalPatterns{
		ByDayOfWeek: byDay,
		ByHour:      byHour,
		ByMonth:     byMonth,
		Recommendations: models.SeasonalRecommendations{
			PeakDays:               peakDays,
			PeakHours:              peakHours,
			HighSeasonMonths:       e.highSeason(byMonth),
			StaffingRecommendation: staffing(peakDays, peakHours),
		},
	}
}

func seasonalBuckets(b *Buckets) []models.SeasonalBucket {
	sorted := b.Sorted()
	out := make([]models.SeasonalBucket, 0, len(sorted))
	for _, bucket := range sorted {
		idx, err := strconv.Atoi(bucket.Key)
		if err != nil {
			continue
		}
		out = append(out, models.SeasonalBucket{
			Index:        idx,
			Label:        bucket.Label,
			Total:        bucket.Revenue,
			Transactions: bucket.Transactions,
		})
	}
	return out
}

func (e *Engine) peaks(buckets []models.SeasonalBucket) []string {
	ranked := slices.DeleteFunc(slices.Clone(buckets), func(b models.SeasonalBucket) bool {
		return !b.Total.IsPositive()
	})
	if len(ranked) == 0 {
		return []string{}
	}
	slices.SortFunc(ranked, func(a, b models.SeasonalBucket) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})

	count := e.settings.PeakFallbackCount
	if len(buckets) >= e.settings.PeakMinBuckets {
		count = max(int(math.Ceil(float64(len(buckets))*e.settings.PeakQuartile)), 1)
	}
	count = min(count, len(ranked))

	labels := make([]string, 0, count)
	for _, b := range ranked[:count] {
		labels = append(labels, b.Label)
	}
	return labels
}

func (e *Engine) highSeason(months []models.SeasonalBucket) []string {
	out := []string{}
	if len(months) == 0 {
		return out
	}
	sum := decimal.Zero
	for _, m := range months {
		sum = sum.Add(m.Total)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(months))))
	threshold := mean.Mul(e.settings.HighSeasonFactor)
	for _, m := range months {
		if m.Total.GreaterThan(threshold) {
			out = append(out, m.Label)
		}
	}
	return out
}

func staffing(days, hours []string) string {
	if len(days) == 0 || len(hours) == 0 {
		return InsufficientData
	}
	return fmt.Sprintf("Schedule extra staff on %s, especially around %s.",
		strings.Join(days, " and "), strings.Join(hours, " and "))
}
