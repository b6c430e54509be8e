package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/repository"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/pkg/cryptoutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeKeys struct {
	known map[string]bool
	err   error
	calls int
}

func (f *fakeKeys) Exists(ctx context.Context, key string) (bool, error) {
	f.calls++
	return f.known[key], f.err
}

func identityRouter(keys KeyLookup, secret string) *gin.Engine {
	r := gin.New()
	r.Use(ClientIdentity(keys, secret))
	r.GET("/api/x", func(c *gin.Context) {
		client := ClientFrom(c)
		c.JSON(http.StatusOK, gin.H{"tier": client.Tier.String(), "addr": client.Address, "port": client.Port})
	})
	return r
}

// ===================================================================================================
// ClientIdentity
// ===================================================================================================

func TestClientIdentity(t *testing.T) {
	const secret = "s3cret"
	fresh, _ := cryptoutil.SignToken("user", time.Now().Add(time.Hour).Unix(), "partner", secret)
	stale, _ := cryptoutil.SignToken("user", time.Now().Add(-time.Hour).Unix(), "partner", secret)

	tests := []struct {
		name       string
		header     string
		query      string
		secret     string
		keys       *fakeKeys
		wantStatus int
		wantTier   string
	}{
		{"no key", "", "", secret, &fakeKeys{}, http.StatusOK, `"tier":"anonymous"`},
		{"known header key", "k1", "", secret, &fakeKeys{known: map[string]bool{"k1": true}}, http.StatusOK, `"tier":"keyed"`},
		{"known query key", "", "k1", secret, &fakeKeys{known: map[string]bool{"k1": true}}, http.StatusOK, `"tier":"keyed"`},
		{"unknown key", "nope", "", secret, &fakeKeys{}, http.StatusUnauthorized, ""},
		{"lookup failure", "k1", "", secret, &fakeKeys{err: errors.New("mongo down")}, http.StatusInternalServerError, ""},
		{"fresh token", fresh, "", secret, &fakeKeys{}, http.StatusOK, `"tier":"keyed"`},
		{"stale token", stale, "", secret, &fakeKeys{}, http.StatusUnauthorized, ""},
		{"token without secret", fresh, "", "", &fakeKeys{}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := identityRouter(tt.keys, tt.secret)
			target := "/api/x"
			if tt.query != "" {
				target += "?apiKey=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("x-api-key", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body)
			}
			if tt.wantTier != "" && !strings.Contains(w.Body.String(), tt.wantTier) {
				t.Errorf("body = %s, want %s", w.Body, tt.wantTier)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(w.Body.String(), "Invalid API key") {
				t.Errorf("body = %s", w.Body)
			}
		})
	}
}

func TestClientIdentity_TokenSkipsLookup(t *testing.T) {
	keys := &fakeKeys{}
	token, _ := cryptoutil.SignToken("user", time.Now().Add(time.Hour).Unix(), "partner", "k")

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("x-api-key", token)
	w := httptest.NewRecorder()
	identityRouter(keys, "k").ServeHTTP(w, req)

	if w.Code != http.StatusOK || keys.calls != 0 {
		t.Errorf("status = %d, lookups = %d", w.Code, keys.calls)
	}
}

func TestClientFrom_RemoteAddr(t *testing.T) {
	r := identityRouter(&fakeKeys{}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"addr":"192.0.2.7"`) || !strings.Contains(w.Body.String(), `"port":"51234"`) {
		t.Errorf("body = %s", w.Body)
	}
}

func TestClientFrom_ForwardedFor(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		want    string
	}{
		{"no trusted proxies", nil, `"addr":"192.0.2.7"`},
		{"peer is a trusted proxy", []string{"192.0.2.0/24"}, `"addr":"203.0.113.9"`},
		{"peer is not trusted", []string{"198.51.100.1"}, `"addr":"192.0.2.7"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := identityRouter(&fakeKeys{}, "")
			if err := r.SetTrustedProxies(tt.trusted); err != nil {
				t.Fatalf("SetTrustedProxies() error = %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			req.RemoteAddr = "192.0.2.7:51234"
			req.Header.Set("X-Forwarded-For", "203.0.113.9")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want %s", w.Body, tt.want)
			}
		})
	}
}

func TestClientFrom_WithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ClientFrom(c); got.Tier != shaping.TierAnonymous {
		t.Errorf("tier = %v", got.Tier)
	}
}

// ===================================================================================================
// AdminAuth
// ===================================================================================================

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		query      string
		want       int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing", "adm", "", "", http.StatusUnauthorized},
		{"wrong", "adm", "Bearer nope", "", http.StatusForbidden},
		{"bearer", "adm", "Bearer adm", "", http.StatusOK},
		{"apikey prefix", "adm", "ApiKey adm", "", http.StatusOK},
		{"query", "adm", "", "adm", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(AdminAuth(tt.configured))
			r.GET("/api/admin/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			target := "/api/admin/x"
			if tt.query != "" {
				target += "?admin_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ===================================================================================================
// Metrics, RequestID
// ===================================================================================================

type fakeRecorder struct {
	calls []repository.CallRecord
}

func (f *fakeRecorder) Record(ctx context.Context, call repository.CallRecord) error {
	f.calls = append(f.calls, call)
	return nil
}

func TestMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	r := gin.New()
	r.Use(Metrics(rec))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/r34/:id", func(c *gin.Context) {
		c.Set("cache_source", model.SourceCache)
		c.Set("namespace", shaping.NamespaceRule34)
		c.Status(http.StatusOK)
	})

	for _, target := range []string{"/health", "/api/r34/123", "/api/missing/456"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	if len(rec.calls) != 2 {
		t.Fatalf("recorded %d calls, want 2: %+v", len(rec.calls), rec.calls)
	}
	if got := rec.calls[0]; got.Route != "/api/r34/:id" || got.Status != http.StatusOK || !got.CacheHit || got.Namespace != shaping.NamespaceRule34 {
		t.Errorf("call[0] = %+v", got)
	}
	if got := rec.calls[1]; got.Route != "/api/missing/:id" || got.Status != http.StatusNotFound || got.Namespace != "" {
		t.Errorf("call[1] = %+v", got)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	id := w.Header().Get(RequestIDHeader)
	if len(id) != 36 || w.Body.String() != id {
		t.Errorf("generated id = %q, body = %q", id, w.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "upstream-id" {
		t.Errorf("reused id = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	if got := normalizePath("/api/r34/123/x"); got != "/api/r34/:id/x" {
		t.Errorf("normalizePath() = %s", got)
	}
}

// ===================================================================================================
// Logging
// ===================================================================================================

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"page=2", "page=2"},
		{"apiKey=secret&page=2", "apiKey=REDACTED&page=2"},
		{"page=2&admin_key=s3cret", "page=2&admin_key=REDACTED"},
		{"apiKeys=x&myapiKey=y", "apiKeys=x&myapiKey=y"},
		{"apiKey", "apiKey=REDACTED"},
	}
	for _, tt := range tests {
		if got := redactQuery(tt.raw); got != tt.want {
			t.Errorf("redactQuery(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLogging_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := gin.New()
	r.Use(Logging())
	r.GET("/api/r34/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/r34/1?apiKey=topsecret&page=2", nil))

	out := buf.String()
	if strings.Contains(out, "topsecret") {
		t.Errorf("credential leaked into log: %s", out)
	}
	if !strings.Contains(out, "apiKey=REDACTED&page=2") {
		t.Errorf("log line = %s", out)
	}
}
