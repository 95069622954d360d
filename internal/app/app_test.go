package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sheetdash/internal/config"
)

const sheetCSV = `Date,Delivered orders,GMV,Sessions
10/14/2026,120,100000,4000
10/12/2026,90,,3500
not a date,50,5000,100
10/13/2026,100,80000,3800
`

func newTestApp(t *testing.T, contents string) (*App, *bytes.Buffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "daily.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}

	cfg := &config.Config{
		Sheet: config.SheetConfig{
			Mode:       config.SheetModeFile,
			FilePath:   path,
			SheetName:  "Daily",
			DateColumn: "Date",
		},
		Cache:  config.CacheConfig{TTL: time.Hour, Coalesce: true},
		Query:  config.QueryConfig{Timezone: "UTC"},
		Export: config.ExportConfig{MaxDataPoints: 1000},
	}

	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return records
}

func TestExportWritesChronologicalCSV(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)
	out := filepath.Join(t.TempDir(), "nested", "gmv.csv")

	err := a.Export(context.Background(), ExportOptions{Metric: "GMV", CSVPath: out})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records := readCSV(t, out)
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d: %v", len(records), records)
	}
	if got := strings.Join(records[0], ","); got != "date,metric,value,display" {
		t.Fatalf("unexpected header %q", got)
	}
	if records[1][0] != "2026-10-13" || records[2][0] != "2026-10-14" {
		t.Fatalf("rows not chronological: %v", records[1:])
	}
	if records[2][2] != "100000" || records[2][3] != "₹1,00,000" {
		t.Fatalf("unexpected values %v", records[2])
	}
}

func TestExportDownsamples(t *testing.T) {
	var b strings.Builder
	b.WriteString("Date,Sessions\n")
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		b.WriteString(start.AddDate(0, 0, i).Format("1/2/2006"))
		b.WriteString(",")
		b.WriteString(strings.Repeat("1", i+1))
		b.WriteString("\n")
	}

	a, _ := newTestApp(t, b.String())
	out := filepath.Join(t.TempDir(), "sessions.csv")
	if err := a.Export(context.Background(), ExportOptions{Metric: "Sessions", CSVPath: out, MaxPoints: 3}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records := readCSV(t, out)
	if len(records) != 4 {
		t.Fatalf("expected 3 downsampled rows, got %d", len(records)-1)
	}
	if records[1][0] != "2026-09-01" || records[3][0] != "2026-09-10" {
		t.Fatalf("downsampling should keep the endpoints: %v", records[1:])
	}
}

func TestExportRendersPNG(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)
	out := filepath.Join(t.TempDir(), "orders.png")

	if err := a.Export(context.Background(), ExportOptions{Metric: "Delivered orders", PNGPath: out}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read png: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestExportValidation(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)
	ctx := context.Background()

	if err := a.Export(ctx, ExportOptions{Metric: "GMV"}); err == nil {
		t.Fatal("expected error without output paths")
	}
	if err := a.Export(ctx, ExportOptions{CSVPath: filepath.Join(t.TempDir(), "x.csv")}); err == nil {
		t.Fatal("expected error without metric")
	}
	if err := a.Export(ctx, ExportOptions{Metric: "Units", CSVPath: filepath.Join(t.TempDir(), "x.csv")}); err == nil {
		t.Fatal("expected error for metric without values")
	}
}

func TestDownsamplePointsSingle(t *testing.T) {
	points := []point{{Value: 1}, {Value: 2}, {Value: 3}}
	got := downsamplePoints(points, 1)
	if len(got) != 1 || got[0].Value != 3 {
		t.Fatalf("expected the latest point, got %v", got)
	}
}

func TestQueryPrintsSummary(t *testing.T) {
	a, out := newTestApp(t, sheetCSV)

	if err := a.Query(context.Background(), QueryOptions{Text: "orders on 10/14/2026"}); err != nil {
		t.Fatalf("query failed: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Orders (10/14/2026)") || !strings.Contains(text, "120") {
		t.Fatalf("unexpected output:\n%s", text)
	}
	if strings.Contains(text, "10/13/2026") {
		t.Fatalf("other dates leaked into output:\n%s", text)
	}
}

func TestQueryEmptyDataset(t *testing.T) {
	a, out := newTestApp(t, "Date,GMV\n")

	if err := a.Query(context.Background(), QueryOptions{Text: "gmv today"}); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if !strings.Contains(out.String(), "No data available") {
		t.Fatalf("expected no-data message, got %q", out.String())
	}
}

func TestDataPrintsNewestFirst(t *testing.T) {
	a, out := newTestApp(t, sheetCSV)

	if err := a.Data(context.Background(), DataOptions{Limit: 2, Metrics: []string{"Delivered orders", "GMV"}}); err != nil {
		t.Fatalf("data failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[0], "Date") || !strings.Contains(lines[0], "Orders") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "10/14/2026") || !strings.HasPrefix(lines[2], "10/13/2026") {
		t.Fatalf("rows not newest first:\n%s", out.String())
	}
}

func TestDatabaseCommandsRequireDSN(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)
	ctx := context.Background()

	if err := a.Migrate(ctx); err == nil {
		t.Fatal("migrate should fail without database.dsn")
	}
	if err := a.History(ctx, HistoryOptions{Limit: 10}); err == nil {
		t.Fatal("history should fail without database.dsn")
	}
}

func TestServeValidatesAuthConfig(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)
	a.Config.Auth.JWTSecret = "short"

	if err := a.Serve(context.Background()); err == nil {
		t.Fatal("serve should reject a short jwt secret")
	}
}

func TestNewSourceWrapsRemoteModes(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)

	if _, breaker := a.newSource(); breaker != nil {
		t.Fatal("file mode should not use a breaker")
	}

	a.Config.Sheet.Mode = config.SheetModeAPI
	source, breaker := a.newSource()
	if breaker == nil || source == nil {
		t.Fatal("api mode should be wrapped in a breaker")
	}
	if breaker.State() != "closed" {
		t.Fatalf("unexpected breaker state %q", breaker.State())
	}
}

func TestNewNotifierRequiresBothSwitches(t *testing.T) {
	a, _ := newTestApp(t, sheetCSV)
	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}

	if a.newNotifier() != nil {
		t.Fatal("alerting disabled should yield no notifier")
	}
	a.Config.Alerting.Enabled = true
	if a.newNotifier() == nil {
		t.Fatal("expected a notifier")
	}
}
