package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sheetdash/internal/record"
)

type keywordRule struct {
	keyword string
	metrics []string
}

// metricKeywords maps query substrings to metric keys. Every matching
// keyword contributes; overlapping keywords ("new", "new customer") all fire.
var metricKeywords = []keywordRule{
	{"order", []string{"Delivered orders"}},
	{"orders", []string{"Delivered orders"}},
	{"session", []string{"Sessions"}},
	{"traffic", []string{"Sessions"}},
	{"visit", []string{"Sessions"}},
	{"conversion", []string{"CR"}},
	{"cvr", []string{"CR"}},
	{"aov", []string{"AOV"}},
	{"average order", []string{"AOV"}},
	{"gmv", []string{"GMV"}},
	{"revenue", []string{"GMV"}},
	{"sales", []string{"GMV"}},
	{"customer", []string{"Customers"}},
	{"new customer", []string{"New customers"}},
	{"new", []string{"New customers"}},
	{"repeat", []string{"Repeat customers"}},
	{"add to cart", []string{"ATC"}},
	{"atc", []string{"ATC"}},
	{"atc2p", []string{"ATC2P"}},
	{"cart page", []string{"Cart Page %"}},
	{"checkout", []string{"C2O"}},
	{"c2o", []string{"C2O"}},
	{"asp", []string{"ASP"}},
	{"selling price", []string{"ASP"}},
	{"tpc", []string{"TPC"}},
	{"ito", []string{"ITO"}},
	{"items per order", []string{"ITO"}},
	{"units", []string{"Units"}},
	{"funnel", []string{"Sessions", "ATC", "C2O", "CR"}},
}

// DefaultMetrics is used when no keyword matched.
var DefaultMetrics = []string{"Delivered orders", "Sessions", "CR", "AOV", "Customers"}

var (
	growthWords     = []string{"growth", "change", "trend"}
	comparisonWords = []string{"compare", "vs", "difference"}
	listWords       = []string{"list", "all"}
	weekPhrases     = []string{"last 7 days", "last week", "week"}
	monthPhrases    = []string{"last 30 days", "month"}

	explicitDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})\b`)
)

// InterpreterOptions configure date resolution.
type InterpreterOptions struct {
	// Location defines calendar days; nil means the process local zone.
	Location *time.Location
	Now      func() time.Time
}

// Interpreter maps free text onto dates, metrics and an intent.
type Interpreter struct {
	loc *time.Location
	now func() time.Time
}

// NewInterpreter constructs an interpreter.
func NewInterpreter(opts InterpreterOptions) *Interpreter {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Interpreter{loc: opts.Location, now: opts.Now}
}

// Interpret reads text against rows. Dates come back empty only when rows is empty.
func (in *Interpreter) Interpret(text string, rows []record.MetricRow) Query {
	lower := strings.ToLower(text)
	return Query{
		Dates:        in.extractDates(text, lower, rows),
		Metrics:      extractMetrics(lower),
		Intent:       detectIntent(lower),
		OriginalText: text,
	}
}

type datedRow struct {
	date string
	day  time.Time
	ok   bool
}

type dateIndex []datedRow

func (in *Interpreter) index(rows []record.MetricRow) dateIndex {
	idx := make(dateIndex, len(rows))
	for i, row := range rows {
		day, ok := record.ParseDate(row.Date, in.loc)
		idx[i] = datedRow{date: row.Date, day: day, ok: ok}
	}
	return idx
}

// find returns the date string of the first row on day.
func (idx dateIndex) find(day time.Time) (string, bool) {
	for _, r := range idx {
		if r.ok && record.SameDay(r.day, day) {
			return r.date, true
		}
	}
	return "", false
}

func (in *Interpreter) extractDates(text, lower string, rows []record.MetricRow) []string {
	idx := in.index(rows)
	dates := newOrderedSet()

	for _, m := range explicitDate.FindAllStringSubmatch(text, -1) {
		day, ok := in.explicitDay(m[1], m[2], m[3])
		if !ok {
			continue
		}
		if date, found := idx.find(day); found {
			dates.add(date)
		}
	}

	today := in.today()
	if strings.Contains(lower, "today") {
		if date, found := idx.find(today); found {
			dates.add(date)
		}
	}
	if strings.Contains(lower, "yesterday") {
		if date, found := idx.find(today.AddDate(0, 0, -1)); found {
			dates.add(date)
		}
	}
	if containsAny(lower, weekPhrases) {
		in.addLastDays(dates, idx, today, 7)
	}
	if containsAny(lower, monthPhrases) {
		in.addLastDays(dates, idx, today, 30)
	}

	if dates.len() == 0 && len(rows) > 0 {
		dates.add(rows[0].Date)
	}
	return dates.values()
}

func (in *Interpreter) addLastDays(dates *orderedSet, idx dateIndex, today time.Time, days int) {
	for i := 0; i < days; i++ {
		if date, found := idx.find(today.AddDate(0, 0, -i)); found {
			dates.add(date)
		}
	}
}

func (in *Interpreter) today() time.Time {
	y, m, d := in.now().In(in.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, in.loc)
}

func (in *Interpreter) explicitDay(month, day, year string) (time.Time, bool) {
	mm, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, false
	}
	dd, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}
	yy, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	if len(year) == 2 {
		yy += 2000
	}

	t := time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, in.loc)
	// time.Date normalises 13/40/2026 into a real day; reject those.
	if t.Year() != yy || int(t.Month()) != mm || t.Day() != dd {
		return time.Time{}, false
	}
	return t, true
}

func extractMetrics(lower string) []string {
	if containsAny(lower, growthWords) {
		return []string{GrowthSentinel}
	}

	found := newOrderedSet()
	for _, rule := range metricKeywords {
		if strings.Contains(lower, rule.keyword) {
			for _, key := range rule.metrics {
				found.add(key)
			}
		}
	}
	if found.len() == 0 {
		return append([]string(nil), DefaultMetrics...)
	}
	return found.values()
}

func detectIntent(lower string) Intent {
	switch {
	case containsAny(lower, comparisonWords):
		return IntentComparison
	case containsAny(lower, growthWords):
		return IntentGrowth
	case containsAny(lower, listWords):
		return IntentList
	default:
		return IntentSummary
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) len() int {
	return len(s.items)
}

func (s *orderedSet) values() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}
