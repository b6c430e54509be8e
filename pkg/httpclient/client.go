package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Random User-Agent pool
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Field is one multipart form field. Order is preserved on the wire.
type Field struct {
	Name  string
	Value string
}

// Option customizes a single request.
type Option func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) Option {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// WithCookies sends the given cookies, in order, in one Cookie header.
func WithCookies(cookies ...*http.Cookie) Option {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

// Client is the upstream HTTP client shared by a site adapter. It never
// retries; consecutive server-side failures open a circuit breaker so a dead
// upstream fails fast.
type Client struct {
	httpClient *http.Client
	proxies    []string
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a new HTTP client. name labels the circuit breaker.
func NewClient(name string, proxies []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		proxies:    proxies,
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// getRandomUserAgent returns a random user agent string
func getRandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// proxyURL prefixes targetURL with a random CORS-style proxy, if any are configured.
func (c *Client) proxyURL(targetURL string) string {
	if len(c.proxies) == 0 {
		return targetURL
	}
	proxy := strings.TrimSuffix(c.proxies[rand.Intn(len(c.proxies))], "/")
	return proxy + "/" + targetURL
}

// Fetch makes an HTTP GET request and returns the body.
func (c *Client) Fetch(ctx context.Context, targetURL string, opts ...Option) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.proxyURL(targetURL), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	return c.do(req, targetURL, opts)
}

// FetchJSON GETs targetURL and decodes the JSON body into dest.
func (c *Client) FetchJSON(ctx context.Context, targetURL string, dest interface{}, opts ...Option) error {
	body, err := c.Fetch(ctx, targetURL, append([]Option{WithHeader("Accept", "application/json")}, opts...)...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", targetURL, err)
	}
	return nil
}

// PostJSON POSTs payload as JSON and decodes the response into dest.
func (c *Client) PostJSON(ctx context.Context, targetURL string, payload, dest interface{}, opts ...Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL(targetURL), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, targetURL, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", targetURL, err)
	}
	return nil
}

// PostMultipart POSTs fields as multipart/form-data and decodes the JSON response into dest.
func (c *Client) PostMultipart(ctx context.Context, targetURL string, fields []Field, dest interface{}, opts ...Option) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL(targetURL), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, targetURL, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", targetURL, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, targetURL string, opts []Option) ([]byte, error) {
	req.Header.Set("User-Agent", getRandomUserAgent())
	for _, opt := range opts {
		opt(req)
	}

	return c.breaker.Execute(func() ([]byte, error) {
		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("url", targetURL).Msg("Upstream request failed")
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			log.Warn().
				Int("status", resp.StatusCode).
				Str("url", targetURL).
				Msg("Upstream returned non-2xx")
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: targetURL}
		}

		log.Debug().
			Str("method", req.Method).
			Str("url", targetURL).
			Int("bytes", len(body)).
			Dur("latency", time.Since(start)).
			Msg("Upstream fetched")
		return body, nil
	})
}

// HasProxy returns true if proxies are configured
func (c *Client) HasProxy() bool {
	return len(c.proxies) > 0
}

// ProxyCount returns the number of configured proxies
func (c *Client) ProxyCount() int {
	return len(c.proxies)
}
