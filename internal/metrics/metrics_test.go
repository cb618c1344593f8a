package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New()

	m.DraftGenerated("reply", "ok")
	m.DraftGenerated("reply", "ok")
	m.DraftGenerated("ideas", "error")
	m.PostScheduled()
	m.PostPublished(true)
	m.PostPublished(false)
	m.PostsMissed(4)

	if got := testutil.ToFloat64(m.DraftsTotal.WithLabelValues("reply", "ok")); got != 2 {
		t.Errorf("drafts reply/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ScheduledTotal); got != 1 {
		t.Errorf("scheduled = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("publish error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MissedPosts); got != 4 {
		t.Errorf("missed = %v, want 4", got)
	}
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/items/42")
	if err != nil {
		t.Fatalf("GET item: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	want := `draftr_http_requests_total{method="GET",route="/items/{id}",status="418"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %q", want)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing go collector")
	}
}
