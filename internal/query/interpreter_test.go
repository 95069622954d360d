package query

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"sheetdash/internal/record"
)

var fixedNow = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

func testInterpreter() *Interpreter {
	return NewInterpreter(InterpreterOptions{
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	})
}

func dayLabel(daysAgo int) string {
	return fixedNow.AddDate(0, 0, -daysAgo).Format("1/2/2006")
}

func row(date string, values map[string]float64) record.MetricRow {
	r := record.MetricRow{Date: date, Metrics: map[string]*float64{}, Raw: map[string]string{}}
	for k, v := range values {
		v := v
		r.Metrics[k] = &v
	}
	return r
}

func lastNDays(n int) []record.MetricRow {
	rows := make([]record.MetricRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, row(dayLabel(i), map[string]float64{"Delivered orders": float64(100 + i)}))
	}
	return rows
}

func TestInterpretLastWeek(t *testing.T) {
	rows := lastNDays(10)
	for _, text := range []string{"orders last week", "orders last 7 days", "weekly orders"} {
		q := testInterpreter().Interpret(text, rows)

		want := make([]string, 0, 7)
		for i := 0; i < 7; i++ {
			want = append(want, dayLabel(i))
		}
		got := append([]string(nil), q.Dates...)
		sort.Strings(got)
		sort.Strings(want)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%q: dates = %v, want %v", text, got, want)
		}
	}
}

func TestInterpretLastMonth(t *testing.T) {
	rows := lastNDays(40)
	q := testInterpreter().Interpret("GMV this month", rows)
	if len(q.Dates) != 30 {
		t.Fatalf("expected 30 dates, got %d", len(q.Dates))
	}
}

func TestInterpretTodayAndYesterday(t *testing.T) {
	rows := lastNDays(3)
	q := testInterpreter().Interpret("orders today and yesterday", rows)
	got := append([]string(nil), q.Dates...)
	sort.Strings(got)
	want := []string{dayLabel(0), dayLabel(1)}
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
}

func TestInterpretExplicitDates(t *testing.T) {
	rows := []record.MetricRow{
		row("2026-10-13", nil),
		row("10/12/2026", nil),
		row("12-Oct-2026", nil),
	}

	q := testInterpreter().Interpret("GMV on 10/13/2026 and 10/12/26, not 13/45/2026", rows)
	want := []string{"2026-10-13", "10/12/2026"}
	if !reflect.DeepEqual(q.Dates, want) {
		t.Fatalf("dates = %v, want %v", q.Dates, want)
	}
}

func TestInterpretFallsBackToFirstRow(t *testing.T) {
	rows := []record.MetricRow{row("10/01/2026", nil), row(dayLabel(0), nil)}
	q := testInterpreter().Interpret("orders", rows)
	if !reflect.DeepEqual(q.Dates, []string{"10/01/2026"}) {
		t.Fatalf("fallback should pick the first row, got %v", q.Dates)
	}

	q = testInterpreter().Interpret("orders on 1/1/2020", rows)
	if !reflect.DeepEqual(q.Dates, []string{"10/01/2026"}) {
		t.Fatalf("unmatched explicit dates should fall back, got %v", q.Dates)
	}
}

func TestInterpretEmptyDataset(t *testing.T) {
	q := testInterpreter().Interpret("orders yesterday", nil)
	if len(q.Dates) != 0 {
		t.Fatalf("empty dataset must yield no dates, got %v", q.Dates)
	}
}

func TestExtractMetrics(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"orders yesterday", []string{"Delivered orders"}},
		{"new customers last week", []string{"Customers", "New customers"}},
		{"gmv and aov", []string{"AOV", "GMV"}},
		{"GMV trend", []string{GrowthSentinel}},
		{"change in sessions", []string{GrowthSentinel}},
		{"numbers for today", DefaultMetrics},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q := testInterpreter().Interpret(tt.text, nil)
			if !reflect.DeepEqual(q.Metrics, tt.want) {
				t.Fatalf("metrics = %v, want %v", q.Metrics, tt.want)
			}
		})
	}
}

func TestDetectIntent(t *testing.T) {
	tests := map[string]Intent{
		"compare GMV last week":  IntentComparison,
		"GMV today vs yesterday": IntentComparison,
		"compare growth":         IntentComparison,
		"sales trend":            IntentGrowth,
		"list orders":            IntentList,
		"show all sessions":      IntentList,
		"orders yesterday":       IntentSummary,
	}
	for text, want := range tests {
		if got := testInterpreter().Interpret(text, nil).Intent; got != want {
			t.Fatalf("%q: intent = %s, want %s", text, got, want)
		}
	}
}

func TestAnswerOrdersYesterday(t *testing.T) {
	rows := lastNDays(5)
	q, res, err := testInterpreter().Answer("orders yesterday", rows)
	if err != nil {
		t.Fatalf("Answer error: %v", err)
	}
	if q.Intent != IntentSummary {
		t.Fatalf("unexpected intent %s", q.Intent)
	}
	if res.Type != ResultMetrics {
		t.Fatalf("type = %s, want metrics", res.Type)
	}
	if len(res.Data) != 1 {
		t.Fatalf("expected exactly one item, got %+v", res.Data)
	}
	item := res.Data[0]
	if item.Metric != "Delivered orders" {
		t.Fatalf("metric = %q", item.Metric)
	}
	if item.Label != "Orders ("+dayLabel(1)+")" || item.Value != "101" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestAnswerEmptyDataset(t *testing.T) {
	q, res, err := testInterpreter().Answer("orders yesterday", []record.MetricRow{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if len(q.Dates) != 0 {
		t.Fatalf("expected no dates, got %v", q.Dates)
	}
	if res.Type != ResultError || !strings.Contains(strings.ToLower(res.Message), "no data available") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAnswerSortsNewestFirstForGrowth(t *testing.T) {
	rows := []record.MetricRow{
		row(dayLabel(2), map[string]float64{"GMV": 500}),
		row(dayLabel(0), map[string]float64{"GMV": 1100}),
		row(dayLabel(1), map[string]float64{"GMV": 1000}),
	}
	_, res, err := testInterpreter().Answer("GMV growth last week", rows)
	if err != nil {
		t.Fatalf("Answer error: %v", err)
	}
	if len(res.Data) != 1 || res.Data[0].Change != "↑ 10.0%" {
		t.Fatalf("growth should compare the two newest rows, got %+v", res.Data)
	}
}
