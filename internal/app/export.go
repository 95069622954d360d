package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"sheetdash/internal/format"
	"sheetdash/internal/record"
)

// point is one dated metric value in an exported trend.
type point struct {
	Day   time.Time
	Value float64
}

// Export renders one metric's history as CSV and/or a PNG line chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Metric == "" {
		return errors.New("--metric must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	svc, err := a.newService(nil)
	if err != nil {
		return err
	}
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	rows, err := svc.Dataset(ctx)
	if err != nil {
		return err
	}

	points := metricSeries(rows, opts.Metric, loc)
	if len(points) == 0 {
		return fmt.Errorf("no values found for metric %q", opts.Metric)
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Str("metric", opts.Metric).Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting metric trend")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, opts.Metric, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, opts.Metric, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// metricSeries collects the dated values of metric in chronological order.
// Rows with an unparseable date or no value are skipped.
func metricSeries(rows []record.MetricRow, metric string, loc *time.Location) []point {
	points := make([]point, 0, len(rows))
	for _, row := range rows {
		day, ok := record.ParseDate(row.Date, loc)
		if !ok {
			continue
		}
		value, ok := row.Value(metric)
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		points = append(points, point{Day: day, Value: value})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Day.Before(points[j].Day)
	})
	return points
}

func downsamplePoints(points []point, max int) []point {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path, metric string, points []point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"date", "metric", "value", "display"}); err != nil {
		return err
	}

	for _, p := range points {
		line := []string{
			p.Day.Format("2006-01-02"),
			metric,
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			format.Number(metric, p.Value),
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path, metric string, points []point) error {
	if len(points) < 2 {
		return errors.New("at least two data points are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Day
		y[i] = p.Value
	}

	label := format.Label(metric)
	valueFormatter := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return format.Number(metric, f)
		}
		return ""
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           label,
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    label,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
