package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gestionale/internal/api"
	"gestionale/internal/listing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rr.Code)
	}
	return rr.Body.String()
}

func TestListingHooks(t *testing.T) {
	m := New(nil, "test")
	h := m.ListingHooks()
	h.OnFetch("expenses", listing.Paged, nil)
	h.OnFetch("expenses", listing.Queried, api.ErrUnauthorized)
	h.OnStale("expenses")
	h.OnMutation(context.Background(), "roles", listing.OpDelete, "1", errors.New("in use"))

	body := scrape(t, m)
	for _, want := range []string{
		`test_listing_fetches_total{mode="paged",resource="expenses",result="ok"} 1`,
		`test_listing_fetches_total{mode="queried",resource="expenses",result="unauthorized"} 1`,
		`test_listing_stale_responses_total{resource="expenses"} 1`,
		`test_listing_mutations_total{operation="delete",resource="roles",result="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestBackendObserverAndInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")
	obs := m.BackendObserver()
	obs("GET", "tickets", 200, 20*time.Millisecond)
	obs("POST", "tickets/store", 0, time.Second)

	h := m.Instrument("/app/{resource}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/app/tickets", nil))

	var hits uint64 = 4
	RegisterCacheStats(reg, "test", "options", func() (uint64, uint64) { return hits, 1 })

	body := scrape(t, m)
	for _, want := range []string{
		`test_backend_requests_total{endpoint="tickets",method="GET",status="200"} 1`,
		`test_backend_requests_total{endpoint="tickets/store",method="POST",status="none"} 1`,
		`test_http_requests_total{method="GET",route="/app/{resource}",status="418"} 1`,
		`test_cache_hits_total{cache="options"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
