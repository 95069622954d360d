package query

import (
	"sheetdash/internal/record"
)

// Answer interprets text against rows and builds the response. When the
// question cannot be answered the returned Result is error-typed and err
// is ErrNoData or *InterpretationError.
func (in *Interpreter) Answer(text string, rows []record.MetricRow) (Query, Result, error) {
	q := in.Interpret(text, rows)
	if len(rows) == 0 {
		return q, ErrorResult(ErrNoData), ErrNoData
	}
	if len(q.Dates) == 0 {
		err := &InterpretationError{Text: text}
		return q, ErrorResult(err), err
	}

	filtered := FilterByDates(rows, q.Dates)
	if len(filtered) == 0 {
		err := &InterpretationError{Text: text}
		return q, ErrorResult(err), err
	}

	return q, Build(in.SortNewestFirst(filtered), q), nil
}
