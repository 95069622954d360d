package sheets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	defaultExportBaseURL = "https://docs.google.com"
	defaultAPIBaseURL    = "https://sheets.googleapis.com"
	defaultUserAgent     = "sheetdash/1.0"
)

// GoogleOptions parameterise the Google Sheets sources.
type GoogleOptions struct {
	BaseURL       string
	SpreadsheetID string
	APIKey        string
	Timeout       time.Duration
	UserAgent     string
}

func (o GoogleOptions) client() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o GoogleOptions) baseURL(fallback string) string {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		return fallback
	}
	return base
}

// CSVExport reads a sheet through the public CSV export endpoint. The sheet
// must be shared with "anyone with the link".
type CSVExport struct {
	opts    GoogleOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewCSVExport constructs a CSV export source.
func NewCSVExport(opts GoogleOptions, logger zerolog.Logger) *CSVExport {
	return &CSVExport{
		opts:    opts,
		client:  opts.client(),
		baseURL: opts.baseURL(defaultExportBaseURL),
		logger:  logger.With().Str("component", "sheets_csv").Logger(),
	}
}

// LoadRows downloads the named sheet as CSV.
func (c *CSVExport) LoadRows(ctx context.Context, table string) ([]map[string]string, error) {
	if c.opts.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id not configured")
	}

	query := url.Values{}
	query.Set("tqx", "out:csv")
	query.Set("sheet", table)
	endpoint := fmt.Sprintf("%s/spreadsheets/d/%s/gviz/tq?%s", c.baseURL, url.PathEscape(c.opts.SpreadsheetID), query.Encode())

	payload, err := get(ctx, c.client, endpoint, "text/csv", c.opts.UserAgent)
	if err != nil {
		return nil, err
	}

	// A missing sheet is answered with an HTML login/error page, not CSV.
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("<")) {
		return nil, fmt.Errorf("sheet %q: %w", table, ErrTableNotFound)
	}

	records, err := readCSV(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	rows, err := tableRows(records)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("sheet", table).Int("rows", len(rows)).Msg("sheet downloaded")
	return rows, nil
}

// ValuesAPI reads a sheet through the Sheets v4 values endpoint using an API key.
type ValuesAPI struct {
	opts    GoogleOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewValuesAPI constructs a Sheets API source.
func NewValuesAPI(opts GoogleOptions, logger zerolog.Logger) *ValuesAPI {
	return &ValuesAPI{
		opts:    opts,
		client:  opts.client(),
		baseURL: opts.baseURL(defaultAPIBaseURL),
		logger:  logger.With().Str("component", "sheets_api").Logger(),
	}
}

type valuesResponse struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

// LoadRows fetches the named sheet range.
func (v *ValuesAPI) LoadRows(ctx context.Context, table string) ([]map[string]string, error) {
	if v.opts.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id not configured")
	}
	if v.opts.APIKey == "" {
		return nil, errors.New("sheets api key not configured")
	}

	query := url.Values{}
	query.Set("key", v.opts.APIKey)
	query.Set("majorDimension", "ROWS")
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?%s",
		v.baseURL, url.PathEscape(v.opts.SpreadsheetID), url.PathEscape(table), query.Encode())

	payload, err := get(ctx, v.client, endpoint, "application/json", v.opts.UserAgent)
	if err != nil {
		return nil, err
	}

	var res valuesResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode sheets response: %w", err)
	}

	records := make([][]string, len(res.Values))
	for i, row := range res.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				cells[j] = fmt.Sprint(cell)
			}
		}
		records[i] = cells
	}

	rows, err := tableRows(records)
	if err != nil {
		return nil, err
	}
	v.logger.Debug().Str("sheet", table).Str("range", res.Range).Int("rows", len(rows)).Msg("sheet fetched")
	return rows, nil
}

func get(ctx context.Context, client *http.Client, endpoint, accept, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create sheets request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if ua := strings.TrimSpace(userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send sheets request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sheets response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("sheets", resp.StatusCode, payload)
	}
	return payload, nil
}

var (
	_ Source = (*CSVExport)(nil)
	_ Source = (*ValuesAPI)(nil)
)
