package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/m/history/:user_id", func(c *gin.Context) { c.String(http.StatusOK, "[]") })
	r.PUT("/m/history/:user_id/:session_id/title", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		method, path  string
		label, status string
		wantCode      int
	}{
		{http.MethodGet, "/m/history/u1", "/m/history/:user_id", "200", http.StatusOK},
		{http.MethodGet, "/m/history/u2", "/m/history/:user_id", "200", http.StatusOK},
		{http.MethodPut, "/m/history/u1/s1/title", "/m/history/:user_id/:session_id/title", "204", http.StatusNoContent},
		{http.MethodGet, "/m/unknown", "/m/unknown", "404", http.StatusNotFound},
	}

	before := map[string]float64{}
	for _, tc := range cases {
		k := tc.method + tc.label + tc.status
		if _, seen := before[k]; !seen {
			before[k] = testutil.ToFloat64(httpReqs.WithLabelValues(tc.method, tc.label, tc.status))
		}
	}

	want := map[string]float64{}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.wantCode {
			t.Fatalf("%s %s = %d; want %d", tc.method, tc.path, w.Code, tc.wantCode)
		}
		want[tc.method+tc.label+tc.status]++
	}

	// Both user ids share one series: ids never become label values.
	for _, tc := range cases {
		k := tc.method + tc.label + tc.status
		got := testutil.ToFloat64(httpReqs.WithLabelValues(tc.method, tc.label, tc.status))
		if got != before[k]+want[k] {
			t.Fatalf("counter %s %s %s = %v; want %v", tc.method, tc.label, tc.status, got, before[k]+want[k])
		}
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestMetrics_RequestSizeObservedForBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.POST("/size/with-body", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/size/no-body", func(c *gin.Context) { c.Status(http.StatusCreated) })

	before := testutil.CollectAndCount(httpReqSize)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/size/with-body", strings.NewReader("0123456789")))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /size/with-body -> %d", w.Code)
	}
	if got := testutil.CollectAndCount(httpReqSize); got != before+1 {
		t.Fatalf("request size series = %d; want %d", got, before+1)
	}

	// Bodyless requests add no series.
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/size/no-body", nil))
	if got := testutil.CollectAndCount(httpReqSize); got != before+1 {
		t.Fatalf("bodyless request observed: series = %d", got)
	}
}
