package analytics

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"sales-insights/internal/models"
)

type BucketKind int

const (
	ByDay BucketKind = iota
	ByWeekday
	ByHour
	ByMonth
	ByYearMonth
)

func (k BucketKind) String() string {
	switch k {
	case ByDay:
		return "day"
	case ByWeekday:
		return "weekday"
	case ByHour:
		return "hour"
	case ByMonth:
		return "month"
	case ByYearMonth:
		return "year_month"
	default:
		return "unknown"
	}
}

// Buckets is an aggregate of sales keyed by calendar bucket. Keys are
// zero-padded so lexical order is calendar order for every kind.
type Buckets struct {
	kind  BucketKind
	order []string
	index map[string]*models.Bucket
}

// BucketSales groups sales by the given calendar bucket in loc. Sales
// without a timestamp are skipped.
func BucketSales(sales []models.Sale, kind BucketKind, loc *time.Location) *Buckets {
	if loc == nil {
		loc = time.Local
	}
	b := &Buckets{
		kind:  kind,
		index: make(map[string]*models.Bucket),
	}
	for _, s := range sales {
		if !s.HasTimestamp() {
			continue
		}
		key, label := bucketKey(s.CreatedAt.In(loc), kind)
		bucket, ok := b.index[key]
		if !ok {
			bucket = &models.Bucket{Key: key, Label: label}
			b.index[key] = bucket
			b.order = append(b.order, key)
		}
		bucket.Revenue = bucket.Revenue.Add(s.ComputedTotal())
		bucket.Transactions++
	}
	return b
}

// Bucket groups sales in the engine's configured location.
func (e *Engine) Bucket(sales []models.Sale, kind BucketKind) *Buckets {
	return BucketSales(sales, kind, e.settings.Location)
}

func bucketKey(t time.Time, kind BucketKind) (string, string) {
	switch kind {
	case ByWeekday:
		return strconv.Itoa(int(t.Weekday())), t.Weekday().String()
	case ByHour:
		return fmt.Sprintf("%02d", t.Hour()), fmt.Sprintf("%02d:00", t.Hour())
	case ByMonth:
		return fmt.Sprintf("%02d", int(t.Month())), t.Month().String()
	case ByYearMonth:
		return t.Format("2006-01"), t.Format("Jan 2006")
	default:
		return t.Format(time.DateOnly), t.Format(time.DateOnly)
	}
}

func (b *Buckets) Kind() BucketKind {
	return b.kind
}

func (b *Buckets) Len() int {
	return len(b.order)
}

func (b *Buckets) Get(key string) (models.Bucket, bool) {
	bucket, ok := b.index[key]
	if !ok {
		return models.Bucket{}, false
	}
	return *bucket, true
}

// All returns buckets in order of first occurrence.
func (b *Buckets) All() []models.Bucket {
	out := make([]models.Bucket, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.index[key])
	}
	return out
}

// Sorted returns buckets in calendar order.
func (b *Buckets) Sorted() []models.Bucket {
	out := b.All()
	slices.SortFunc(out, func(x, y models.Bucket) int {
		return strings.Compare(x.Key, y.Key)
	})
	return out
}
