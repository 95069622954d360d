package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"sheetdash/internal/format"
	"sheetdash/internal/query"
)

// Data prints the newest dataset rows with the selected metrics.
func (a *App) Data(ctx context.Context, opts DataOptions) error {
	svc, err := a.newService(nil)
	if err != nil {
		return err
	}
	interp, err := a.newInterpreter()
	if err != nil {
		return err
	}

	rows, err := svc.Dataset(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.Out, "no rows found")
		return nil
	}

	rows = interp.SortNewestFirst(rows)
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	keys := opts.Metrics
	if len(keys) == 0 {
		keys = query.DefaultMetrics
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	header := []string{"Date"}
	for _, key := range keys {
		header = append(header, format.Label(key))
	}
	fmt.Fprintln(writer, strings.Join(header, "\t"))

	for _, row := range rows {
		cells := []string{row.Date}
		for _, key := range keys {
			cells = append(cells, format.Value(key, row.Metrics[key]))
		}
		fmt.Fprintln(writer, strings.Join(cells, "\t"))
	}
	return writer.Flush()
}

// History prints recent entries from the query log.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show query history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	entries, err := store.ListRecentQueries(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.Out, "no queries found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tUser\tIntent\tResult\tItems\tDuration\tQuery\tError")

	for _, entry := range entries {
		errMsg := ""
		if entry.Error != nil {
			errMsg = sanitizeInline(*entry.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.UserEmail,
			entry.Intent,
			entry.ResultType,
			entry.ItemCount,
			strconv.FormatInt(entry.DurationMS, 10)+"ms",
			sanitizeInline(entry.Text),
			errMsg,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
