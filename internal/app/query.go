package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"sheetdash/internal/query"
)

// Query answers one question against the sheet and prints the result.
// The query is recorded in the query log when a database is configured.
func (a *App) Query(ctx context.Context, opts QueryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	user := opts.User
	if user == "" {
		user = "cli"
	}
	result, err := svc.ProcessQuery(ctx, opts.Text, user)
	if err != nil {
		return err
	}
	return a.printResult(result)
}

func (a *App) printResult(result query.Result) error {
	if result.Type == query.ResultError {
		fmt.Fprintln(a.Out, result.Message)
		return errors.New("query could not be answered")
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	header := "Metric\tValue\tPrevious\tChange"
	if result.Type == query.ResultComparison {
		header = "Metric\tFirst\tSecond\tChange"
	}
	fmt.Fprintln(writer, header)
	for _, item := range result.Data {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", item.Label, item.Value, item.Value2, item.Change)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if result.Message != "" {
		fmt.Fprintln(a.Out, result.Message)
	}
	return nil
}
