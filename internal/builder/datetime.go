// Package builder implements the four Expression Builders of spec.md §4.4:
// DateTimeBuilder, FilterBuilder, MeasureBuilder, GroupByBuilder. All four
// are pure functions of their inputs — no builder retains state across
// calls, matching spec.md §5's "all per-compilation state is request-local"
// scheduling model.
package builder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
)

// DateTimeBuilder resolves time-dimension expressions and relative/absolute
// date ranges against a dialect.Adapter (spec.md §4.4 DateTimeBuilder).
type DateTimeBuilder struct {
	Adapter dialect.Adapter
}

// NewDateTimeBuilder binds a DateTimeBuilder to adapter.
func NewDateTimeBuilder(adapter dialect.Adapter) *DateTimeBuilder {
	return &DateTimeBuilder{Adapter: adapter}
}

// BuildTimeDimensionExpression dispatches a resolved base column to the
// adapter's time-bucketing for granularity, or returns base unbucketed
// when granularity is empty.
func (b *DateTimeBuilder) BuildTimeDimensionExpression(base *fragment.Fragment, granularity string) *fragment.Fragment {
	if granularity == "" {
		return base
	}

	g, ok := parseGranularity(granularity)
	if !ok {
		return nil
	}

	return b.Adapter.BuildTimeDimension(g, base)
}

func parseGranularity(s string) (dialect.Granularity, bool) {
	switch strings.ToLower(s) {
	case "second":
		return dialect.Second, true
	case "minute":
		return dialect.Minute, true
	case "hour":
		return dialect.Hour, true
	case "day":
		return dialect.Day, true
	case "week":
		return dialect.Week, true
	case "month":
		return dialect.Month, true
	case "quarter":
		return dialect.Quarter, true
	case "year":
		return dialect.Year, true
	default:
		return 0, false
	}
}

// DateBounds is an absolute, UTC, end-of-day-precise [Start, End] range.
type DateBounds struct {
	Start time.Time
	End   time.Time
}

// ParseRelativeDateRange recognizes the exhaustive relative-range vocabulary
// of spec.md §4.4 and anchors it to now (UTC). Weeks run Monday-Sunday.
func ParseRelativeDateRange(text string, now time.Time) (DateBounds, error) {
	now = now.UTC()
	text = strings.ToLower(strings.TrimSpace(text))

	startOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	endOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, time.UTC)
	}
	mondayOf := func(t time.Time) time.Time {
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7 // Sunday -> 7 so Monday-anchored offset is positive
		}
		return startOfDay(t.AddDate(0, 0, -(wd - 1)))
	}

	switch {
	case text == "today":
		return DateBounds{startOfDay(now), endOfDay(now)}, nil
	case text == "yesterday":
		y := now.AddDate(0, 0, -1)
		return DateBounds{startOfDay(y), endOfDay(y)}, nil
	case text == "this week":
		start := mondayOf(now)
		return DateBounds{start, endOfDay(start.AddDate(0, 0, 6))}, nil
	case text == "last week":
		start := mondayOf(now).AddDate(0, 0, -7)
		return DateBounds{start, endOfDay(start.AddDate(0, 0, 6))}, nil
	case text == "this month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return DateBounds{start, endOfDay(start.AddDate(0, 1, -1))}, nil
	case text == "last month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return DateBounds{start, endOfDay(start.AddDate(0, 1, -1))}, nil
	case text == "this quarter":
		start := quarterStart(now)
		return DateBounds{start, endOfDay(start.AddDate(0, 3, -1))}, nil
	case text == "last quarter":
		start := quarterStart(now).AddDate(0, -3, 0)
		return DateBounds{start, endOfDay(start.AddDate(0, 3, -1))}, nil
	case text == "this year":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return DateBounds{start, endOfDay(start.AddDate(1, 0, -1))}, nil
	case text == "last year":
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC)
		return DateBounds{start, endOfDay(start.AddDate(1, 0, -1))}, nil
	case text == "last 12 months":
		start := startOfDay(now).AddDate(0, -12, 1)
		return DateBounds{start, endOfDay(now)}, nil
	}

	if n, unit, ok := parseLastN(text); ok {
		var start time.Time

		switch unit {
		case "day", "days":
			start = startOfDay(now).AddDate(0, 0, -(n - 1))
		case "week", "weeks":
			start = startOfDay(now).AddDate(0, 0, -(7*n - 1))
		case "month", "months":
			start = startOfDay(now).AddDate(0, -n, 1)
		case "year", "years":
			start = startOfDay(now).AddDate(-n, 0, 1)
		default:
			return DateBounds{}, errs.WrapError("ParseRelativeDateRange", fmt.Errorf("%w: unknown unit %q", errs.ErrInvalidDateRange, unit))
		}

		return DateBounds{start, endOfDay(now)}, nil
	}

	return DateBounds{}, errs.WrapError("ParseRelativeDateRange", fmt.Errorf("%w: %q", errs.ErrInvalidDateRange, text))
}

func quarterStart(t time.Time) time.Time {
	q := (int(t.Month()) - 1) / 3
	return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func parseLastN(text string) (int, string, bool) {
	const prefix = "last "
	if !strings.HasPrefix(text, prefix) {
		return 0, "", false
	}

	rest := strings.TrimPrefix(text, prefix)
	parts := strings.SplitN(rest, " ", 2)

	if len(parts) != 2 {
		return 0, "", false
	}

	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return 0, "", false
	}

	return n, parts[1], true
}

// NormalizeDate accepts a "YYYY-MM-DD" date, an ISO8601 timestamp, an epoch
// number, or a native time.Time and returns the dialect's native
// representation via adapter.PrepareDateValue (spec.md §4.4 normalizeDate).
func (b *DateTimeBuilder) NormalizeDate(v any) (any, error) {
	t, err := toTime(v)
	if err != nil {
		return nil, errs.WrapError("NormalizeDate", err)
	}

	return b.Adapter.PrepareDateValue(t), nil
}

func toTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case int:
		return time.Unix(int64(val), 0).UTC(), nil
	case float64:
		return time.Unix(int64(val), 0).UTC(), nil
	case string:
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t.UTC(), nil
		}

		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC(), nil
		}

		return time.Time{}, fmt.Errorf("%w: cannot parse date %q", errs.ErrInvalidDateRange, val)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported date value type %T", errs.ErrInvalidDateRange, v)
	}
}

// BuildDateRangeCondition builds `expr >= start AND expr <= end` (see
// Between), resolving a
// relative string first, then a single date-only string into
// [00:00:00, 23:59:59.999] UTC, then an explicit [start, end] pair.
func (b *DateTimeBuilder) BuildDateRangeCondition(expr *fragment.Fragment, relative, start, end string, now time.Time) (*fragment.Fragment, error) {
	var bounds DateBounds

	switch {
	case relative != "":
		var err error

		bounds, err = ParseRelativeDateRange(relative, now)
		if err != nil {
			return nil, err
		}
	case start != "" && end == "":
		t, err := toTime(start)
		if err != nil {
			return nil, errs.WrapError("BuildDateRangeCondition", err)
		}

		bounds = DateBounds{
			Start: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			End:   time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, time.UTC),
		}
	case start != "" && end != "":
		s, err := toTime(start)
		if err != nil {
			return nil, errs.WrapError("BuildDateRangeCondition", err)
		}

		e, err := toTime(end)
		if err != nil {
			return nil, errs.WrapError("BuildDateRangeCondition", err)
		}

		bounds = DateBounds{Start: s, End: e}
	default:
		return nil, errs.WrapError("BuildDateRangeCondition", errs.ErrInvalidDateRange)
	}

	lo := b.Adapter.PrepareDateValue(bounds.Start)
	hi := b.Adapter.PrepareDateValue(bounds.End)

	return Between(expr, fragment.Param(lo), fragment.Param(hi)), nil
}

// Between builds "expr >= lo AND expr <= hi" — the BETWEEN operator
// expressed over fragment's closed Infix/And vocabulary rather than adding
// a dedicated Kind for one keyword.
func Between(expr, lo, hi *fragment.Fragment) *fragment.Fragment {
	return fragment.And(
		fragment.Infix(">=", expr, lo),
		fragment.Infix("<=", expr, hi),
	)
}
