package sheets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCSVExportSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/spreadsheets/d/sheet-1/gviz/tq") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("sheet") != "Daily" {
			t.Errorf("sheet 参数错误: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("Date,GMV,CR\n10/14/2026,\"1,000\",2.5\n10/13/2026,900\n"))
	}))
	defer srv.Close()

	src := NewCSVExport(GoogleOptions{BaseURL: srv.URL, SpreadsheetID: "sheet-1", Timeout: time.Second}, noopLogger())
	rows, err := src.LoadRows(context.Background(), "Daily")
	if err != nil {
		t.Fatalf("LoadRows 不应报错: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("期望 2 行, 实际 %d", len(rows))
	}
	if rows[0]["GMV"] != "1,000" || rows[0]["Date"] != "10/14/2026" {
		t.Fatalf("unexpected first row %#v", rows[0])
	}
	if v, ok := rows[1]["CR"]; !ok || v != "" {
		t.Fatalf("short rows should be padded, got %#v", rows[1])
	}
}

func TestCSVExportMissingSheet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html></html>"))
	}))
	defer srv.Close()

	src := NewCSVExport(GoogleOptions{BaseURL: srv.URL, SpreadsheetID: "sheet-1"}, noopLogger())
	if _, err := src.LoadRows(context.Background(), "Nope"); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestCSVExportHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	src := NewCSVExport(GoogleOptions{BaseURL: srv.URL, SpreadsheetID: "sheet-1"}, noopLogger())
	_, err := src.LoadRows(context.Background(), "Daily")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("HTTP 500 应返回错误, 实际 %v", err)
	}

	if _, err := NewCSVExport(GoogleOptions{}, noopLogger()).LoadRows(context.Background(), "Daily"); err == nil {
		t.Fatal("缺少 spreadsheet id 时应报错")
	}
}

func TestValuesAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("api key missing: %s", r.URL.RawQuery)
		}
		if r.URL.Path == "/v4/spreadsheets/sheet-1/values/Missing" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":          "Daily!A1:C3",
			"majorDimension": "ROWS",
			"values": [][]any{
				{"Date", "GMV", "Sessions"},
				{"10/14/2026", "1,200", 300},
				{"10/13/2026"},
			},
		})
	}))
	defer srv.Close()

	src := NewValuesAPI(GoogleOptions{BaseURL: srv.URL, SpreadsheetID: "sheet-1", APIKey: "k"}, noopLogger())
	rows, err := src.LoadRows(context.Background(), "Daily")
	if err != nil {
		t.Fatalf("LoadRows error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Sessions"] != "300" || rows[1]["GMV"] != "" {
		t.Fatalf("unexpected rows %#v", rows)
	}

	if _, err := src.LoadRows(context.Background(), "Missing"); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Daily.csv"), []byte("Date,GMV\n10/14/2026,5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := NewFile(dir).LoadRows(context.Background(), "Daily")
	if err != nil {
		t.Fatalf("LoadRows error: %v", err)
	}
	if len(rows) != 1 || rows[0]["GMV"] != "5" {
		t.Fatalf("unexpected rows %#v", rows)
	}

	if _, err := NewFile(dir).LoadRows(context.Background(), "Weekly"); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

type failingSource struct {
	calls int
}

func (f *failingSource) LoadRows(ctx context.Context, table string) ([]map[string]string, error) {
	f.calls++
	return nil, errors.New("unreachable")
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	src := &failingSource{}
	b := NewBreaker(src, BreakerOptions{FailureThreshold: 2, OpenTimeout: time.Minute}, noopLogger())

	for i := 0; i < 2; i++ {
		if _, err := b.LoadRows(context.Background(), "Daily"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != "open" {
		t.Fatalf("breaker should be open, got %s", b.State())
	}

	_, err := b.LoadRows(context.Background(), "Daily")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("open breaker should not call the source, calls=%d", src.calls)
	}
}
