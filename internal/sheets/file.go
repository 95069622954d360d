package sheets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File reads tables from local CSV files. The table name selects
// <dir>/<table>.csv; when Path points at a file it is used for every table.
type File struct {
	Path string
}

// NewFile constructs a local CSV source.
func NewFile(path string) *File {
	return &File{Path: path}
}

// LoadRows reads the CSV file backing table.
func (f *File) LoadRows(ctx context.Context, table string) ([]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Path == "" {
		return nil, fmt.Errorf("sheet file path not configured")
	}

	path := f.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		name := strings.TrimSpace(table)
		if name == "" {
			return nil, fmt.Errorf("table name required for directory source")
		}
		path = filepath.Join(path, name+".csv")
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", path, ErrTableNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	records, err := readCSV(file)
	if err != nil {
		return nil, err
	}
	return tableRows(records)
}

var _ Source = (*File)(nil)
