package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	metricsRoutesKey    = "metrics:routes"
	metricsSitesKey     = "metrics:sites"
	metricsTotalKey     = "metrics:global:total"
	metricsLatencyKey   = "metrics:global:latency_sum"
	metricsLimitedKey   = "metrics:global:rate_limited"
	metricsStartTimeKey = "metrics:server:start_time"

	dailyRetention = 30 * 24 * time.Hour
	trendDays      = 7
	topRoutes      = 10
)

// Metrics stores API analytics in Redis
type Metrics struct {
	client *redis.Client
	now    func() time.Time
}

// CallRecord is one finished API request.
type CallRecord struct {
	Route     string
	Namespace string // upstream site, empty for routes that do not hit one
	Status    int
	LatencyMs float64
	CacheHit  bool
}

// RouteStats aggregates the calls of one route pattern
type RouteStats struct {
	Route        string  `json:"route"`
	TotalCalls   int64   `json:"total_calls"`
	SuccessCalls int64   `json:"success_calls"`
	ErrorCalls   int64   `json:"error_calls"`
	RateLimited  int64   `json:"rate_limited"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	MinLatencyMs float64 `json:"min_latency_ms"`
}

// SiteStats aggregates the calls served for one upstream site
type SiteStats struct {
	Namespace    string  `json:"namespace"`
	TotalCalls   int64   `json:"total_calls"`
	CacheHits    int64   `json:"cache_hits"`
	Fetched      int64   `json:"fetched"`
	Failures     int64   `json:"failures"`
	RateLimited  int64   `json:"rate_limited"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// DailyStats represents daily API statistics
type DailyStats struct {
	Date       string  `json:"date"`
	TotalCalls int64   `json:"total_calls"`
	AvgLatency float64 `json:"avg_latency"`
}

// Overview is the admin analytics payload
type Overview struct {
	TotalAPICalls int64        `json:"total_api_calls"`
	TodayAPICalls int64        `json:"today_api_calls"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
	CacheHitRate  float64      `json:"cache_hit_rate"`
	ErrorRate     float64      `json:"error_rate"`
	RateLimited   int64        `json:"rate_limited"`
	TopRoutes     []RouteStats `json:"top_routes"`
	Sites         []SiteStats  `json:"sites"`
	DailyTrend    []DailyStats `json:"daily_trend"`
	Uptime        int64        `json:"uptime_seconds"`
}

// NewMetrics creates a new Metrics instance
func NewMetrics(client *redis.Client) *Metrics {
	return &Metrics{client: client, now: time.Now}
}

func routeKey(route string) string { return "metrics:route:" + route }

func siteKey(namespace string) string { return "metrics:site:" + namespace }

func dailyKey(date string) string { return "metrics:daily:" + date }

// outcome buckets a status code. Denials are kept apart from failures.
func outcome(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 200 && status < 400:
		return "success"
	default:
		return "error"
	}
}

// Record stores one finished request in a single pipeline.
func (m *Metrics) Record(ctx context.Context, call CallRecord) error {
	result := outcome(call.Status)
	pipe := m.client.Pipeline()

	rk := routeKey(call.Route)
	pipe.HIncrBy(ctx, rk, "total", 1)
	pipe.HIncrBy(ctx, rk, result, 1)
	pipe.HIncrByFloat(ctx, rk, "latency_sum", call.LatencyMs)
	pipe.SAdd(ctx, metricsRoutesKey, call.Route)

	if call.Namespace != "" {
		sk := siteKey(call.Namespace)
		pipe.HIncrBy(ctx, sk, "total", 1)
		switch {
		case result == "rate_limited":
			pipe.HIncrBy(ctx, sk, "rate_limited", 1)
		case result == "error":
			pipe.HIncrBy(ctx, sk, "failures", 1)
		case call.CacheHit:
			pipe.HIncrBy(ctx, sk, "cache_hits", 1)
		default:
			pipe.HIncrBy(ctx, sk, "fetched", 1)
		}
		pipe.SAdd(ctx, metricsSitesKey, call.Namespace)
	}

	dk := dailyKey(m.now().Format("2006-01-02"))
	pipe.HIncrBy(ctx, dk, "total", 1)
	pipe.HIncrByFloat(ctx, dk, "latency_sum", call.LatencyMs)
	pipe.Expire(ctx, dk, dailyRetention)

	pipe.Incr(ctx, metricsTotalKey)
	pipe.IncrByFloat(ctx, metricsLatencyKey, call.LatencyMs)
	if result == "rate_limited" {
		pipe.Incr(ctx, metricsLimitedKey)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline error: %w", err)
	}
	return m.trackLatencyBounds(ctx, rk, call.LatencyMs)
}

// trackLatencyBounds keeps min/max latency per route.
func (m *Metrics) trackLatencyBounds(ctx context.Context, key string, latencyMs float64) error {
	bounds, err := m.client.HMGet(ctx, key, "min_latency", "max_latency").Result()
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if cur, ok := parseBound(bounds[0]); !ok || latencyMs < cur {
		updates["min_latency"] = latencyMs
	}
	if cur, ok := parseBound(bounds[1]); !ok || latencyMs > cur {
		updates["max_latency"] = latencyMs
	}
	if len(updates) == 0 {
		return nil
	}
	return m.client.HSet(ctx, key, updates).Err()
}

func parseBound(v interface{}) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func hashInt(h map[string]string, field string) int64 {
	n, _ := strconv.ParseInt(h[field], 10, 64)
	return n
}

func hashFloat(h map[string]string, field string) float64 {
	f, _ := strconv.ParseFloat(h[field], 64)
	return f
}

// Route returns the stats of one route pattern, zero when never called.
func (m *Metrics) Route(ctx context.Context, route string) (*RouteStats, error) {
	h, err := m.client.HGetAll(ctx, routeKey(route)).Result()
	if err != nil {
		return nil, err
	}

	stats := &RouteStats{
		Route:        route,
		TotalCalls:   hashInt(h, "total"),
		SuccessCalls: hashInt(h, "success"),
		ErrorCalls:   hashInt(h, "error"),
		RateLimited:  hashInt(h, "rate_limited"),
		MaxLatencyMs: hashFloat(h, "max_latency"),
		MinLatencyMs: hashFloat(h, "min_latency"),
	}
	if stats.TotalCalls > 0 {
		stats.AvgLatencyMs = hashFloat(h, "latency_sum") / float64(stats.TotalCalls)
	}
	return stats, nil
}

// Site returns the stats of one upstream namespace.
func (m *Metrics) Site(ctx context.Context, namespace string) (*SiteStats, error) {
	h, err := m.client.HGetAll(ctx, siteKey(namespace)).Result()
	if err != nil {
		return nil, err
	}

	stats := &SiteStats{
		Namespace:   namespace,
		TotalCalls:  hashInt(h, "total"),
		CacheHits:   hashInt(h, "cache_hits"),
		Fetched:     hashInt(h, "fetched"),
		Failures:    hashInt(h, "failures"),
		RateLimited: hashInt(h, "rate_limited"),
	}
	if served := stats.CacheHits + stats.Fetched; served > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(served) * 100
	}
	return stats, nil
}

// Overview gathers the admin analytics.
func (m *Metrics) Overview(ctx context.Context) (*Overview, error) {
	total, err := m.client.Get(ctx, metricsTotalKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	latencySum, _ := m.client.Get(ctx, metricsLatencyKey).Float64()
	limited, _ := m.client.Get(ctx, metricsLimitedKey).Int64()

	ov := &Overview{
		TotalAPICalls: total,
		RateLimited:   limited,
		TopRoutes:     []RouteStats{},
		Sites:         []SiteStats{},
	}
	if total > 0 {
		ov.AvgLatencyMs = latencySum / float64(total)
	}
	ov.TodayAPICalls, _ = m.client.HGet(ctx, dailyKey(m.now().Format("2006-01-02")), "total").Int64()

	routes, _ := m.client.SMembers(ctx, metricsRoutesKey).Result()
	var errorCalls int64
	for _, route := range routes {
		rs, err := m.Route(ctx, route)
		if err != nil || rs.TotalCalls == 0 {
			continue
		}
		errorCalls += rs.ErrorCalls
		ov.TopRoutes = append(ov.TopRoutes, *rs)
	}
	sort.Slice(ov.TopRoutes, func(i, j int) bool {
		return ov.TopRoutes[i].TotalCalls > ov.TopRoutes[j].TotalCalls
	})
	if len(ov.TopRoutes) > topRoutes {
		ov.TopRoutes = ov.TopRoutes[:topRoutes]
	}
	if total > 0 {
		ov.ErrorRate = float64(errorCalls) / float64(total) * 100
	}

	namespaces, _ := m.client.SMembers(ctx, metricsSitesKey).Result()
	sort.Strings(namespaces)
	var hits, served int64
	for _, ns := range namespaces {
		ss, err := m.Site(ctx, ns)
		if err != nil {
			continue
		}
		hits += ss.CacheHits
		served += ss.CacheHits + ss.Fetched
		ov.Sites = append(ov.Sites, *ss)
	}
	if served > 0 {
		ov.CacheHitRate = float64(hits) / float64(served) * 100
	}

	ov.DailyTrend = m.dailyTrend(ctx, trendDays)

	if start, err := m.client.Get(ctx, metricsStartTimeKey).Int64(); err == nil && start > 0 {
		ov.Uptime = m.now().Unix() - start
	}
	return ov, nil
}

// dailyTrend returns the last days, oldest first.
func (m *Metrics) dailyTrend(ctx context.Context, days int) []DailyStats {
	trend := make([]DailyStats, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := m.now().AddDate(0, 0, -i).Format("2006-01-02")
		h, err := m.client.HGetAll(ctx, dailyKey(date)).Result()
		if err != nil {
			continue
		}

		day := DailyStats{Date: date, TotalCalls: hashInt(h, "total")}
		if day.TotalCalls > 0 {
			day.AvgLatency = hashFloat(h, "latency_sum") / float64(day.TotalCalls)
		}
		trend = append(trend, day)
	}
	return trend
}

// RecordServerStart records server start time
func (m *Metrics) RecordServerStart(ctx context.Context) {
	if err := m.client.Set(ctx, metricsStartTimeKey, m.now().Unix(), 0).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to record server start")
	}
}

// Reset deletes every analytics key and returns how many were removed.
func (m *Metrics) Reset(ctx context.Context) (int64, error) {
	return NewCache(m.client, 0).DeletePattern(ctx, "metrics:*")
}
