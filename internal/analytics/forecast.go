package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

type dailyTotal struct {
	date  time.Time
	total decimal.Decimal
}

// Forecast projects daily revenue horizonDays ahead of the dense daily
// history. The history is smoothed with a trailing moving average and
// extended along the least-squares slope of the most recent smoothed days.
func (e *Engine) Forecast(sales []models.Sale, horizonDays int, now time.Time) ([]models.ForecastPoint, error) {
	if horizonDays <= 0 {
		return nil, invalidArgument("forecast horizon must be positive, got %d", horizonDays)
	}

	loc := e.settings.Location
	series := denseDailySeries(BucketSales(sales, ByDay, loc), dayStart(now, loc), loc)
	if len(series) == 0 {
		return []models.ForecastPoint{}, nil
	}

	points := make([]models.ForecastPoint, 0, len(series)+horizonDays)
	values := make([]decimal.Decimal, len(series))
	for i, d := range series {
		points = append(points, models.ForecastPoint{Date: d.date, Total: d.total})
		values[i] = d.total
	}
	if len(series) < 2 {
		return points, nil
	}

	window := e.settings.SmoothingWindow
	smoothed := movingAverage(values, window)
	slope := leastSquaresSlope(smoothed[max(0, len(smoothed)-window):])
	last := smoothed[len(smoothed)-1]
	lastDate := series[len(series)-1].date

	for k := 1; k <= horizonDays; k++ {
		v := last.Add(slope.Mul(decimal.NewFromInt(int64(k))))
		if v.IsNegative() {
			v = decimal.Zero
		}
		points = append(points, models.ForecastPoint{
			Date:      lastDate.AddDate(0, 0, k),
			Total:     v.Round(2),
			Predicted: true,
		})
	}
	return points, nil
}

// denseDailySeries fills every calendar day between the first bucket and
// the later of today and the last bucket.
func denseDailySeries(daily *Buckets, today time.Time, loc *time.Location) []dailyTotal {
	sorted := daily.Sorted()
	if len(sorted) == 0 {
		return nil
	}
	first, err := time.ParseInLocation(time.DateOnly, sorted[0].Key, loc)
	if err != nil {
		return nil
	}
	end := today
	if last, err := time.ParseInLocation(time.DateOnly, sorted[len(sorted)-1].Key, loc); err == nil && last.After(end) {
		end = last
	}

	var series []dailyTotal
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		total := decimal.Zero
		if b, ok := daily.Get(d.Format(time.DateOnly)); ok {
			total = b.Revenue
		}
		series = append(series, dailyTotal{date: d, total: total})
	}
	return series
}

func movingAverage(values []decimal.Decimal, window int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	sum := decimal.Zero
	for i, v := range values {
		sum = sum.Add(v)
		if i >= window {
			sum = sum.Sub(values[i-window])
		}
		n := min(i+1, window)
		out[i] = sum.Div(decimal.NewFromInt(int64(n)))
	}
	return out
}

// leastSquaresSlope fits y = a + b*x with x = 0..n-1 and returns b.
func leastSquaresSlope(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n < 2 {
		return decimal.Zero
	}
	count := decimal.NewFromInt(int64(n))
	meanX := decimal.NewFromInt(int64(n - 1)).Div(decimal.NewFromInt(2))
	meanY := decimal.Sum(values[0], values[1:]...).Div(count)

	num, den := decimal.Zero, decimal.Zero
	for i, y := range values {
		dx := decimal.NewFromInt(int64(i)).Sub(meanX)
		num = num.Add(dx.Mul(y.Sub(meanY)))
		den = den.Add(dx.Mul(dx))
	}
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}
