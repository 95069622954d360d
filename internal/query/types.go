package query

import (
	"errors"
	"fmt"
)

// Intent is the response shape a query asks for.
type Intent string

const (
	IntentSummary    Intent = "summary"
	IntentComparison Intent = "comparison"
	IntentGrowth     Intent = "growth"
	IntentList       Intent = "list"
)

// GrowthSentinel replaces the metric set when period-over-period change is requested.
const GrowthSentinel = "growth"

// Query is the structured reading of a free-text question.
type Query struct {
	Dates        []string `json:"dates"`
	Metrics      []string `json:"metrics"`
	Intent       Intent   `json:"intent"`
	OriginalText string   `json:"originalText"`
}

// IsGrowth reports whether the metric set is the growth sentinel.
func (q Query) IsGrowth() bool {
	return len(q.Metrics) == 1 && q.Metrics[0] == GrowthSentinel
}

// ResultType tags the response payload.
type ResultType string

const (
	ResultMetrics    ResultType = "metrics"
	ResultComparison ResultType = "comparison"
	ResultError      ResultType = "error"
)

// DisplayItem is one formatted line of a result. Values are always
// pre-formatted strings.
type DisplayItem struct {
	Metric   string `json:"metric,omitempty"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Value2   string `json:"value2,omitempty"`
	Change   string `json:"change,omitempty"`
	Positive *bool  `json:"positive,omitempty"`
}

// Result is the outward answer to a query.
type Result struct {
	Type    ResultType    `json:"type"`
	Data    []DisplayItem `json:"data"`
	Message string        `json:"message,omitempty"`
}

const (
	noDataMessage   = "No data available. The spreadsheet returned no dated rows."
	fetchMessage    = "Unable to load data from the spreadsheet right now. Please try again later."
	guidanceMessage = `Couldn't match that question to any dates in the data. Try "orders yesterday", "GMV last week" or "compare sessions 10/14/2026 vs 10/13/2026".`
)

// ErrNoData is returned when the dataset is empty.
var ErrNoData = errors.New("no data available")

// InterpretationError reports that no date in the data matched the query.
type InterpretationError struct {
	Text string
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("no matching dates for query %q", e.Text)
}

// ErrorResult builds an error-typed result with a message suited to err.
func ErrorResult(err error) Result {
	var interp *InterpretationError
	switch {
	case errors.Is(err, ErrNoData):
		return Result{Type: ResultError, Data: []DisplayItem{}, Message: noDataMessage}
	case errors.As(err, &interp):
		return Result{Type: ResultError, Data: []DisplayItem{}, Message: guidanceMessage}
	default:
		return Result{Type: ResultError, Data: []DisplayItem{}, Message: fetchMessage}
	}
}
