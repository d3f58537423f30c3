package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubStoreChecker struct {
	err error
}

func (s stubStoreChecker) Ping(context.Context) error {
	return s.err
}

func TestHealthHandlerOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubStoreChecker{err: nil}, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
}

func TestHealthHandlerStoreError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubStoreChecker{err: errors.New("store down")}, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","store":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerMissingStoreChecker(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, nil, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","store":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerLogsStoreFailure(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	server := NewServer(0, stubStoreChecker{err: errors.New("disk full")}, logrus.NewEntry(logger))

	rr := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "health_store_error" {
		t.Fatalf("expected health_store_error log entry, got %+v", entry)
	}
}

func TestHealthHandlerRejectsWrites(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubStoreChecker{}, logrus.NewEntry(logger))

	rr := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected HTTP 405, got %d", rr.Code)
	}
}

func TestHealthHandlerBoundsPing(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	checker := deadlineChecker{}
	server := NewServer(0, &checker, logrus.NewEntry(logger))

	rr := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !checker.hadDeadline {
		t.Fatalf("expected ping context to carry a deadline")
	}
}

type deadlineChecker struct {
	hadDeadline bool
}

func (d *deadlineChecker) Ping(ctx context.Context) error {
	_, d.hadDeadline = ctx.Deadline()
	return nil
}
