package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/repository"
	"github.com/shimizudev/hentai-api/internal/service"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/pkg/httpclient"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	mr     *miniredis.Miniredis
	redis  *redis.Client
	shaper *shaping.Shaper
	cache  *repository.Cache
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := repository.NewCache(client, time.Hour)
	return &env{
		mr:     mr,
		redis:  client,
		shaper: shaping.New(cache, repository.NewRateCounter(client)),
		cache:  cache,
	}
}

func upstream(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func testClient() *httpclient.Client {
	return httpclient.NewClient("test", nil, 5*time.Second)
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) model.APIResponse {
	t.Helper()
	var resp model.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body, err)
	}
	return resp
}

func rule34Router(e *env, srv *httptest.Server) *gin.Engine {
	h := NewRule34Handler(service.NewRule34Service(testClient(), srv.URL, srv.URL), e.shaper)
	r := gin.New()
	r.GET("/api/r34/autocomplete/:query", h.Autocomplete)
	r.GET("/api/r34/search/:query", h.Search)
	r.GET("/api/r34/:id", h.Info)
	return r
}

// ===================================================================================================
// Shaped responses
// ===================================================================================================

func TestAutocomplete_FreshThenCached(t *testing.T) {
	e := newEnv(t)
	var hits atomic.Int32
	srv := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"label":"naruto (120)","value":"naruto","type":"copyright"}]`))
	})
	r := rule34Router(e, srv)

	first := get(r, "/api/r34/autocomplete/nar")
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", first.Code, first.Body)
	}
	if resp := decode(t, first); resp.Source != model.SourceFresh || resp.Code != 200 {
		t.Errorf("first response = %+v", resp)
	}
	if !strings.Contains(first.Body.String(), `"completedQuery":"naruto"`) {
		t.Errorf("body = %s", first.Body)
	}

	second := get(r, "/api/r34/autocomplete/nar")
	if resp := decode(t, second); resp.Source != model.SourceCache {
		t.Errorf("second source = %q, want %q", resp.Source, model.SourceCache)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hit %d times, want 1", hits.Load())
	}
}

func TestAutocomplete_RateLimited(t *testing.T) {
	e := newEnv(t)
	srv := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"label":"a","value":"a","type":"general"}]`))
	})
	r := rule34Router(e, srv)

	for i := 0; i < shaping.AnonymousLimit; i++ {
		if w := get(r, "/api/r34/autocomplete/a"); w.Code != http.StatusOK {
			t.Fatalf("call %d status = %d", i+1, w.Code)
		}
	}

	w := get(r, "/api/r34/autocomplete/a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if resp := decode(t, w); resp.Error != "Rate limit exceeded" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestAutocomplete_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantError  string
	}{
		{"upstream error", http.StatusBadGateway, "bad gateway", http.StatusInternalServerError, "Internal server error"},
		{"schema violation", http.StatusOK, `[{"label":"x","value":"","type":"general"}]`, http.StatusUnprocessableEntity, "Upstream response failed validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			srv := upstream(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			w := get(rule34Router(e, srv), "/api/r34/autocomplete/x")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body)
			}
			resp := decode(t, w)
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if tt.wantStatus == http.StatusUnprocessableEntity && resp.Issues == nil {
				t.Error("issues missing")
			}
			if keys := e.mr.Keys(); len(keys) != 1 {
				t.Errorf("redis keys = %v, want only the rate counter", keys)
			}
		})
	}
}

func TestRule34Search_Page(t *testing.T) {
	e := newEnv(t)
	var pid atomic.Value
	srv := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		pid.Store(r.URL.Query().Get("pid"))
		w.Write([]byte(`<html><body><div class="image-list">
<span id="s9"><img src="https://img.example/9.jpg" alt="tag"></span>
</div></body></html>`))
	})

	w := get(rule34Router(e, srv), "/api/r34/search/tag?page=3")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if got := pid.Load(); got != "84" {
		t.Errorf("pid = %v, want 84", got)
	}
	if !e.mr.Exists(shaping.CacheKey(shaping.Rule34Search, "tag", 3)) {
		t.Error("page not cached under its arguments")
	}
}

// ===================================================================================================
// Input validation
// ===================================================================================================

func TestInputValidation(t *testing.T) {
	e := newEnv(t)
	var hits atomic.Int32
	srv := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	hh := NewHentaiHavenHandler(service.NewHentaiHavenService(testClient(), srv.URL, ""), e.shaper)
	hanime := NewHanimeHandler(service.NewHanimeService(testClient(), srv.URL, srv.URL), e.shaper)
	r := gin.New()
	r.GET("/api/hh/sources/:id", hh.Sources)
	r.GET("/api/hh/:id", hh.Info)
	r.GET("/api/hanime/recent", hanime.Recent)
	r.GET("/api/hanime/search/:query", hanime.Search)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad sort", "/api/hh/some-series?sort=sideways", http.StatusBadRequest},
		{"blank id", "/api/hh/%20", http.StatusBadRequest},
		{"page zero", "/api/hanime/recent?page=0", http.StatusBadRequest},
		{"page not a number", "/api/hanime/recent?page=two", http.StatusBadRequest},
		{"perPage too large", "/api/hanime/search/love?perPage=1000", http.StatusBadRequest},
		{"plain episode slug", "/api/hh/sources/episode-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.target)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
		})
	}
	if hits.Load() != 0 {
		t.Errorf("upstream hit %d times for invalid input", hits.Load())
	}
}

func TestHentaiHavenInfo_SortIsPartOfCacheKey(t *testing.T) {
	if shaping.CacheKey(shaping.HentaiHavenInfo, "x", model.SortAsc) == shaping.CacheKey(shaping.HentaiHavenInfo, "x", model.SortDesc) {
		t.Error("ASC and DESC share a cache entry")
	}
}

// ===================================================================================================
// Helpers
// ===================================================================================================

func TestIntQuery(t *testing.T) {
	tests := []struct {
		query  string
		want   int
		wantOK bool
	}{
		{"", 1, true},
		{"page=", 1, true},
		{"page=7", 7, true},
		{"page=0", 0, false},
		{"page=-2", 0, false},
		{"page=1.5", 0, false},
		{"page=11", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)

			got, ok := intQuery(c, "page", 1, 10)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("intQuery() = %d, %v, want %d, %v", got, ok, tt.want, tt.wantOK)
			}
			if !ok && w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestWriteError_Context(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(c, shaping.Rule34Info, context.DeadlineExceeded)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
