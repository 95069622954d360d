package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger(Config{Level: "loud"}, &bytes.Buffer{})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s", logger.GetLevel())
	}
}

func TestHTTPAccess(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hlog.FromRequest(r).Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})
	chain := HTTPAccess(logger)
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	id := rec.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatal("request id header missing")
	}
	out := buf.String()
	for _, want := range []string{`"status":418`, `"request_id":"` + id + `"`, `"url":"/api/health"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("access log missing %s: %s", want, out)
		}
	}
}

func TestHTTPAccessKeepsValidRequestID(t *testing.T) {
	chain := HTTPAccess(zerolog.Nop())
	var handler http.Handler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	const id = "6f1c2b1e-8d1a-4f3e-9a55-0e7b9d6c1a23"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != id {
		t.Fatalf("request id = %q, want %q", got, id)
	}
}
