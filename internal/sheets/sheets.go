package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrTableNotFound indicates the named sheet does not exist or is not shared.
	ErrTableNotFound = errors.New("sheets: table not found")
	// ErrEmptyTable indicates the sheet returned no header row.
	ErrEmptyTable = errors.New("sheets: table has no header row")
)

// Source loads every row of a named table as ordered column->text maps.
type Source interface {
	LoadRows(ctx context.Context, table string) ([]map[string]string, error)
}

// tableRows turns a header plus records into column->text maps. Short
// records are padded with empty strings.
func tableRows(table [][]string) ([]map[string]string, error) {
	if len(table) == 0 {
		return nil, ErrEmptyTable
	}

	header := make([]string, len(table[0]))
	for i, h := range table[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]map[string]string, 0, len(table)-1)
	for _, record := range table[1:] {
		row := make(map[string]string, len(header))
		for i, column := range header {
			if column == "" {
				continue
			}
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	table, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return table, nil
}

func statusError(source string, status int, payload []byte) error {
	if status == http.StatusNotFound || status == http.StatusBadRequest {
		return fmt.Errorf("%s (%d): %w", source, status, ErrTableNotFound)
	}
	body := strings.TrimSpace(string(payload))
	if len(body) > 200 {
		body = body[:200]
	}
	if body != "" {
		return fmt.Errorf("%s error (%d): %s", source, status, body)
	}
	return fmt.Errorf("%s error (%d)", source, status)
}
