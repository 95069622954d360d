package record

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDateColumn is the sheet header holding the row date.
const DefaultDateColumn = "Date"

var (
	sheetErrorTokens = map[string]struct{}{
		"#N/A":    {},
		"#DIV/0!": {},
	}

	numericPrefix = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

	dateLayouts = []string{
		"1/2/2006",
		"1/2/06",
		"2006-01-02",
		"2006/01/02",
		"2-Jan-2006",
		"2-Jan-06",
		"2 Jan 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 January 2006",
	}
)

// MetricRow is one sheet row converted into typed metric values.
// Date keeps the source display string so it round-trips unchanged.
type MetricRow struct {
	Date    string              `json:"date"`
	Metrics map[string]*float64 `json:"metrics"`
	Raw     map[string]string   `json:"raw"`
}

// Value returns the numeric value for key and whether it is present.
func (r MetricRow) Value(key string) (float64, bool) {
	v, ok := r.Metrics[key]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// ParseValue normalises raw cell text into a number. Empty cells, sheet
// error tokens and text without a leading number yield nil.
func ParseValue(raw string) *float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if _, ok := sheetErrorTokens[trimmed]; ok {
		return nil
	}

	cleaned := strings.ReplaceAll(trimmed, ",", "")
	prefix := numericPrefix.FindString(cleaned)
	if prefix == "" {
		return nil
	}

	value, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return nil
	}
	return &value
}

// FromRaw converts a column->text map into a MetricRow. The second return
// is false when the row has no date and must be dropped.
func FromRaw(raw map[string]string, dateColumn string) (MetricRow, bool) {
	if dateColumn == "" {
		dateColumn = DefaultDateColumn
	}

	row := MetricRow{
		Metrics: make(map[string]*float64, len(raw)),
		Raw:     make(map[string]string, len(raw)),
	}

	for column, text := range raw {
		row.Raw[column] = text
		name := strings.TrimSpace(column)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, dateColumn) {
			row.Date = strings.TrimSpace(text)
			continue
		}
		row.Metrics[name] = ParseValue(text)
	}

	if row.Date == "" {
		return MetricRow{}, false
	}
	return row, true
}

// FromRawRows converts every raw row, keeping source order and skipping
// rows without a date.
func FromRawRows(rows []map[string]string, dateColumn string) []MetricRow {
	result := make([]MetricRow, 0, len(rows))
	for _, raw := range rows {
		if row, ok := FromRaw(raw, dateColumn); ok {
			result = append(result, row)
		}
	}
	return result
}

// ParseDate interprets a row date string as a calendar day in loc.
func ParseDate(value string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	candidates := []string{value}
	if idx := strings.IndexByte(value, ' '); idx > 0 && strings.ContainsAny(value[:idx], "/-") {
		// "10/14/2026 0:00:00" style exports carry a time part.
		candidates = append(candidates, value[:idx])
	}

	for _, candidate := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, candidate, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
