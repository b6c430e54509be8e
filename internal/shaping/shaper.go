// Package shaping sits between the HTTP handlers and the site adapters. Every
// call is rate limited per client, then served from the Redis cache or fetched,
// validated and stored.
package shaping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/repository"
	"github.com/shimizudev/hentai-api/internal/validation"
)

const (
	// AnonymousLimit is the per-window budget of callers without a key.
	AnonymousLimit = 15
	// KeyedLimit is the per-window budget of callers with a recognized key.
	KeyedLimit = 1500

	DefaultWindow   = 60 * time.Second
	DefaultCacheTTL = 3600 * time.Second
)

// ErrRateLimited is returned when the client spent its budget for the window.
var ErrRateLimited = errors.New("rate limit exceeded")

// Tier selects the rate limit of a client.
type Tier int

const (
	TierAnonymous Tier = iota
	TierKeyed
)

// Limit is the number of calls allowed per window.
func (t Tier) Limit() int64 {
	if t == TierKeyed {
		return KeyedLimit
	}
	return AnonymousLimit
}

func (t Tier) String() string {
	if t == TierKeyed {
		return "keyed"
	}
	return "anonymous"
}

// Client identifies the caller for rate limiting.
type Client struct {
	Address string
	Port    string
	Tier    Tier
}

// Call binds an operation to its arguments and the adapter call that computes it.
// Args only feed the cache key; Fetch must already have them captured.
type Call[T any] struct {
	Op    Operation
	Args  []interface{}
	Fetch func(ctx context.Context) (T, error)
}

// Emptier is implemented by results that can be empty without being a bare
// empty list or object, like a listing page with no results.
type Emptier interface {
	Empty() bool
}

// Shaper holds the stores shared by every call.
type Shaper struct {
	cache   *repository.Cache
	counter *repository.RateCounter
	window  time.Duration
	ttl     time.Duration
	group   singleflight.Group
}

// New creates a Shaper with the default window and cache TTL.
func New(cache *repository.Cache, counter *repository.RateCounter) *Shaper {
	return &Shaper{
		cache:   cache,
		counter: counter,
		window:  DefaultWindow,
		ttl:     DefaultCacheTTL,
	}
}

// CacheKey is "namespace-method-<json args>".
func CacheKey(op Operation, args ...interface{}) string {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", args))
	}
	return op.Namespace() + "-" + op.Method() + "-" + string(encoded)
}

// CachePattern matches every cached result of namespace but none of its rate
// counters, whose suffix is an address instead of a JSON array.
func CachePattern(namespace string) string {
	return namespace + `-*-\[*`
}

// RateKey is "namespace-method-address-port".
func RateKey(op Operation, c Client) string {
	return strings.Join([]string{op.Namespace(), op.Method(), c.Address, c.Port}, "-")
}

// Allow counts the call against the client's budget. The counter is never
// rolled back, even when the call later fails.
func (s *Shaper) Allow(ctx context.Context, op Operation, c Client) (bool, error) {
	key := RateKey(op, c)
	count, err := s.counter.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count > c.Tier.Limit() {
		RateLimitedTotal.WithLabelValues(op.Namespace(), c.Tier.String()).Inc()
		return false, nil
	}
	if err := s.counter.Expire(ctx, key, s.window); err != nil {
		return false, err
	}
	return true, nil
}

// Handle runs call for client: rate limit, then cache, then fetch. Source is
// model.SourceCache or model.SourceFresh.
func Handle[T any](ctx context.Context, s *Shaper, client Client, call Call[T]) (T, string, error) {
	var zero T
	if !call.Op.Valid() {
		return zero, "", fmt.Errorf("shaping: unknown operation %d", int(call.Op))
	}

	allowed, err := s.Allow(ctx, call.Op, client)
	if err != nil {
		return zero, "", fmt.Errorf("shaping: rate limit: %w", err)
	}
	if !allowed {
		return zero, "", ErrRateLimited
	}

	key := CacheKey(call.Op, call.Args...)
	if cached, ok := lookup[T](ctx, s, call.Op, key); ok {
		return cached, model.SourceCache, nil
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		fresh, err := fetchAndStore(ctx, s, call, key)
		return fresh, err
	})
	if err != nil {
		FetchFailuresTotal.WithLabelValues(call.Op.Namespace(), call.Op.Method()).Inc()
		return zero, "", err
	}
	if shared {
		log.Debug().Str("key", key).Msg("Coalesced concurrent miss")
	}
	return v.(T), model.SourceFresh, nil
}

// lookup returns a usable cached value. Entries that fail to decode or decode
// to an empty value are evicted so the caller recomputes them.
func lookup[T any](ctx context.Context, s *Shaper, op Operation, key string) (T, bool) {
	var zero T
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !repository.IsCacheMiss(err) {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		CacheLookupsTotal.WithLabelValues(op.Namespace(), "miss").Inc()
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil || isEmptyPayload(raw) || isEmpty(v) {
		if delErr := s.cache.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("Cache evict failed")
		}
		CacheLookupsTotal.WithLabelValues(op.Namespace(), "evicted").Inc()
		return zero, false
	}

	CacheLookupsTotal.WithLabelValues(op.Namespace(), "hit").Inc()
	return v, true
}

func fetchAndStore[T any](ctx context.Context, s *Shaper, call Call[T], key string) (T, error) {
	var zero T
	v, err := call.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Str("op", call.Op.String()).Msg("Upstream fetch failed")
		return zero, err
	}
	if err := validation.Validate(v); err != nil {
		log.Error().Err(err).Str("op", call.Op.String()).Msg("Result failed schema validation")
		return zero, err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("shaping: encode result: %w", err)
	}
	if isEmptyPayload(payload) || isEmpty(v) {
		return v, nil
	}

	// Cache faults never fail the request.
	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return v, nil
}

func isEmpty(v interface{}) bool {
	if e, ok := v.(Emptier); ok {
		return e.Empty()
	}
	return false
}

// isEmptyPayload reports null, {}, [] and blank strings.
func isEmptyPayload(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return true
	case len(raw) >= 2 && (raw[0] == '{' || raw[0] == '['):
		inner := bytes.TrimSpace(raw[1 : len(raw)-1])
		return len(inner) == 0
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		return strings.TrimSpace(s) == ""
	}
	return false
}
