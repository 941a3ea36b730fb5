package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecorderCounters(t *testing.T) {
	m := NewMetrics()

	m.CellRecognized(3)
	m.CellRecognized(0)
	m.OverlayUnresolved()
	m.CellCoerced()
	m.CellCoerced()

	if got := testutil.ToFloat64(m.cells); got != 2 {
		t.Errorf("expected 2 cells, got %v", got)
	}
	if got := testutil.ToFloat64(m.terms); got != 3 {
		t.Errorf("expected 3 terms, got %v", got)
	}
	if got := testutil.ToFloat64(m.unresolved); got != 1 {
		t.Errorf("expected 1 unresolved, got %v", got)
	}
	if got := testutil.ToFloat64(m.coerced); got != 2 {
		t.Errorf("expected 2 coerced, got %v", got)
	}
}

func TestMetrics_SetIndexReplacesVersion(t *testing.T) {
	m := NewMetrics()
	m.SetIndex("2024-01-01", 10, 20)
	m.SetIndex("2024-04-26", 11, 21)

	if n := testutil.CollectAndCount(m.indexTerms); n != 1 {
		t.Fatalf("expected a single version series, got %d", n)
	}
	if got := testutil.ToFloat64(m.indexTerms.WithLabelValues("2024-04-26")); got != 11 {
		t.Errorf("expected 11 terms, got %v", got)
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/terms/:id", func(c echo.Context) error {
		if c.Param("id") == "HP:0000000" {
			return echo.NewHTTPError(http.StatusNotFound, "unknown")
		}
		return c.NoContent(http.StatusOK)
	})

	for _, id := range []string{"HP:0001250", "HP:0001251", "HP:0000000"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/terms/"+id, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/terms/:id", "200")); got != 2 {
		t.Errorf("expected 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/terms/:id", "404")); got != 1 {
		t.Errorf("expected 1 not found request, got %v", got)
	}
	if got := testutil.ToFloat64(m.active); got != 0 {
		t.Errorf("expected no active requests, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.CellRecognized(2)

	e := echo.New()
	e.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"pheno_cells_recognized_total 1", "pheno_terms_recognized_total 2", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}
