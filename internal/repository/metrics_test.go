package repository

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// ===================================================================================================
// Record, aggregate
// ===================================================================================================

func TestMetrics_RecordAndAggregate(t *testing.T) {
	_, client := newRedis(t)
	m := NewMetrics(client)
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	calls := []CallRecord{
		{Route: "/api/hh/:id", Namespace: "HentaiHaven", Status: http.StatusOK, LatencyMs: 40},
		{Route: "/api/hh/:id", Namespace: "HentaiHaven", Status: http.StatusOK, LatencyMs: 10, CacheHit: true},
		{Route: "/api/hh/:id", Namespace: "HentaiHaven", Status: http.StatusTooManyRequests, LatencyMs: 1},
		{Route: "/api/r34/:id", Namespace: "Rule34", Status: http.StatusInternalServerError, LatencyMs: 100},
		{Route: "/api/admin/keys", Status: http.StatusCreated, LatencyMs: 3},
	}
	for _, c := range calls {
		if err := m.Record(ctx, c); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	hh, err := m.Route(ctx, "/api/hh/:id")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if hh.TotalCalls != 3 || hh.SuccessCalls != 2 || hh.ErrorCalls != 0 || hh.RateLimited != 1 {
		t.Errorf("hh route = %+v", hh)
	}
	if hh.MinLatencyMs != 1 || hh.MaxLatencyMs != 40 {
		t.Errorf("latency bounds = %v..%v", hh.MinLatencyMs, hh.MaxLatencyMs)
	}

	site, err := m.Site(ctx, "HentaiHaven")
	if err != nil {
		t.Fatalf("Site() error = %v", err)
	}
	if site.CacheHits != 1 || site.Fetched != 1 || site.RateLimited != 1 || site.CacheHitRate != 50 {
		t.Errorf("hh site = %+v", site)
	}

	m.RecordServerStart(ctx)
	m.now = func() time.Time { return fixed.Add(90 * time.Second) }

	ov, err := m.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if ov.TotalAPICalls != 5 || ov.RateLimited != 1 || ov.TodayAPICalls != 5 {
		t.Errorf("overview = %+v", ov)
	}
	if ov.ErrorRate != 20 {
		t.Errorf("ErrorRate = %v, want 20", ov.ErrorRate)
	}
	if ov.Uptime != 90 {
		t.Errorf("Uptime = %d, want 90", ov.Uptime)
	}
	if len(ov.TopRoutes) != 3 || ov.TopRoutes[0].Route != "/api/hh/:id" {
		t.Errorf("TopRoutes = %+v", ov.TopRoutes)
	}
	if len(ov.Sites) != 2 || ov.Sites[0].Namespace != "HentaiHaven" || ov.Sites[1].Failures != 1 {
		t.Errorf("Sites = %+v", ov.Sites)
	}
	if len(ov.DailyTrend) != 7 || ov.DailyTrend[6].TotalCalls != 5 {
		t.Errorf("DailyTrend = %+v", ov.DailyTrend)
	}
}

func TestMetrics_EmptyOverview(t *testing.T) {
	_, client := newRedis(t)

	ov, err := NewMetrics(client).Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if ov.TotalAPICalls != 0 || ov.TopRoutes == nil || ov.Sites == nil {
		t.Errorf("overview = %+v", ov)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "success"},
		{http.StatusCreated, "success"},
		{http.StatusNotModified, "success"},
		{http.StatusBadRequest, "error"},
		{http.StatusTooManyRequests, "rate_limited"},
		{http.StatusInternalServerError, "error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.status); got != tt.want {
			t.Errorf("outcome(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

// ===================================================================================================
// Reset
// ===================================================================================================

func TestMetrics_Reset(t *testing.T) {
	mr, client := newRedis(t)
	m := NewMetrics(client)
	ctx := context.Background()

	m.Record(ctx, CallRecord{Route: "/api/hanime/:id", Namespace: "Hanime", Status: http.StatusOK, LatencyMs: 5})
	mr.Set(`Hanime-getInfo-["x"]`, "{}")

	deleted, err := m.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if deleted == 0 {
		t.Error("Reset() deleted nothing")
	}
	stats, _ := m.Route(ctx, "/api/hanime/:id")
	if stats.TotalCalls != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
	if !mr.Exists(`Hanime-getInfo-["x"]`) {
		t.Error("reset removed a cache entry")
	}
}
