package query

import (
	"sort"

	"github.com/shopspring/decimal"

	"sheetdash/internal/format"
	"sheetdash/internal/record"
)

// GrowthMetrics are reported by growth responses.
var GrowthMetrics = []string{"Delivered orders", "Sessions", "CR", "AOV", "Customers", "GMV"}

// DisplayDefaults is used by the builders when no metrics were requested.
var DisplayDefaults = []string{"Delivered orders", "GMV", "AOV"}

var hundred = decimal.NewFromInt(100)

// Build selects the response shape for q and renders rows, which must
// already be filtered and sorted newest first.
func Build(rows []record.MetricRow, q Query) Result {
	switch {
	case q.IsGrowth():
		return BuildGrowth(rows)
	case q.Intent == IntentComparison && len(rows) >= 2:
		return BuildComparison(rows, q.Metrics)
	default:
		return BuildSummary(rows, q.Metrics)
	}
}

// BuildGrowth compares the newest row against the one before it.
func BuildGrowth(rows []record.MetricRow) Result {
	items := []DisplayItem{}
	if len(rows) == 0 {
		return Result{Type: ResultMetrics, Data: items}
	}

	current := rows[0]
	var previous *record.MetricRow
	if len(rows) > 1 {
		previous = &rows[1]
	}

	for _, key := range GrowthMetrics {
		cur, ok := current.Value(key)
		if !ok {
			continue
		}

		item := DisplayItem{
			Metric: key,
			Label:  format.Label(key),
			Value:  format.Number(key, cur),
			Change: format.NotAvailable,
		}

		if previous != nil {
			// A zero previous value counts as missing.
			if prev, ok := previous.Value(key); ok && prev != 0 {
				change := percentChange(cur, prev)
				positive := !change.IsNegative()
				item.Value2 = format.Number(key, prev)
				item.Change = arrow(positive) + change.Abs().StringFixed(1) + "%"
				item.Positive = &positive
			}
		}
		items = append(items, item)
	}

	return Result{Type: ResultMetrics, Data: items}
}

// BuildComparison compares rows[0] against rows[1] metric by metric.
func BuildComparison(rows []record.MetricRow, metrics []string) Result {
	items := []DisplayItem{}
	if len(rows) < 2 {
		return Result{Type: ResultComparison, Data: items}
	}

	first, second := rows[0], rows[1]
	for _, key := range displayMetrics(metrics) {
		a, okA := first.Value(key)
		b, okB := second.Value(key)
		if !okA || !okB {
			continue
		}

		item := DisplayItem{
			Metric: key,
			Label:  format.Label(key),
			Value:  format.Number(key, a),
			Value2: format.Number(key, b),
			Change: format.NotAvailable,
		}
		if b != 0 {
			change := percentChange(a, b)
			positive := !change.IsNegative()
			sign := ""
			if positive {
				sign = "+"
			}
			item.Change = sign + change.StringFixed(1) + "%"
			item.Positive = &positive
		}
		items = append(items, item)
	}

	return Result{Type: ResultComparison, Data: items}
}

// BuildSummary emits one item per row and requested metric.
func BuildSummary(rows []record.MetricRow, metrics []string) Result {
	items := []DisplayItem{}
	keys := displayMetrics(metrics)
	for _, row := range rows {
		for _, key := range keys {
			v, ok := row.Value(key)
			if !ok {
				continue
			}
			items = append(items, DisplayItem{
				Metric: key,
				Label:  format.Label(key) + " (" + row.Date + ")",
				Value:  format.Number(key, v),
			})
		}
	}
	return Result{Type: ResultMetrics, Data: items}
}

// FilterByDates keeps rows whose date is in dates, preserving order.
func FilterByDates(rows []record.MetricRow, dates []string) []record.MetricRow {
	wanted := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		wanted[d] = struct{}{}
	}

	filtered := make([]record.MetricRow, 0, len(dates))
	for _, row := range rows {
		if _, ok := wanted[row.Date]; ok {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// SortNewestFirst orders rows by calendar date descending. Rows whose date
// cannot be parsed keep their relative order at the end.
func (in *Interpreter) SortNewestFirst(rows []record.MetricRow) []record.MetricRow {
	type keyed struct {
		row record.MetricRow
		day int64
		ok  bool
	}

	keyedRows := make([]keyed, len(rows))
	for i, row := range rows {
		day, ok := record.ParseDate(row.Date, in.loc)
		keyedRows[i] = keyed{row: row, day: day.Unix(), ok: ok}
	}

	sort.SliceStable(keyedRows, func(i, j int) bool {
		a, b := keyedRows[i], keyedRows[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.day > b.day
	})

	sorted := make([]record.MetricRow, len(rows))
	for i, k := range keyedRows {
		sorted[i] = k.row
	}
	return sorted
}

func displayMetrics(metrics []string) []string {
	if len(metrics) == 0 {
		return DisplayDefaults
	}
	return metrics
}

func percentChange(current, previous float64) decimal.Decimal {
	cur := decimal.NewFromFloat(current)
	prev := decimal.NewFromFloat(previous)
	return cur.Sub(prev).Div(prev).Mul(hundred)
}

func arrow(positive bool) string {
	if positive {
		return "↑ "
	}
	return "↓ "
}
