package service

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"golang.org/x/net/html"
)

var (
	// ErrBlocked means the upstream served its block page instead of content.
	ErrBlocked = errors.New("upstream page blocked")
	// ErrEmptyBody means the upstream answered 2xx with nothing in it.
	ErrEmptyBody = errors.New("upstream returned an empty body")
	// ErrSourceResolution wraps every failure of the stream decode protocol.
	ErrSourceResolution = errors.New("source resolution failed")
	// ErrEncodedIDRequired rejects raw episode slugs passed where a base64 id is expected.
	ErrEncodedIDRequired = errors.New("episode id must be base64 encoded")
)

// blockMarker is the phrase shown by the interstitial that replaces blocked pages.
const blockMarker = "webpage has been blocked"

// ExtractionError reports a required field missing from an upstream document.
type ExtractionError struct {
	Site     string
	Field    string
	Selector string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: missing %s (%s)", e.Site, e.Field, e.Selector)
}

// loadDocument parses an HTML body, rejecting empty bodies and block pages.
func loadDocument(body []byte, pageURL string) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: GET %s", ErrEmptyBody, pageURL)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	doc := goquery.NewDocumentFromNode(root)

	if strings.Contains(doc.Find("body").Text(), blockMarker) {
		return nil, fmt.Errorf("%w: GET %s", ErrBlocked, pageURL)
	}
	return doc, nil
}

// requireAttr returns the attribute of the first match or an ExtractionError.
func requireAttr(site string, sel *goquery.Selection, selector, attr, field string) (string, error) {
	val, ok := sel.Find(selector).First().Attr(attr)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return "", &ExtractionError{Site: site, Field: field, Selector: selector + "@" + attr}
	}
	return val, nil
}

// requireText returns the trimmed text of selector or an ExtractionError.
func requireText(site string, sel *goquery.Selection, selector, field string) (string, error) {
	val := strings.TrimSpace(sel.Find(selector).Text())
	if val == "" {
		return "", &ExtractionError{Site: site, Field: field, Selector: selector}
	}
	return val, nil
}

func text(sel *goquery.Selection, selector string) string {
	return strings.TrimSpace(sel.Find(selector).Text())
}

func attr(sel *goquery.Selection, selector, name string) string {
	val, _ := sel.Find(selector).First().Attr(name)
	return strings.TrimSpace(val)
}

var digits = regexp.MustCompile(`\d+`)

// numberFromString returns the first run of digits in s.
func numberFromString(s string) (int, bool) {
	m := digits.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// atoi parses a trimmed integer, 0 on failure.
func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// atof parses a trimmed float, 0 on failure.
func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

// pathSegment returns the idx-th "/" separated part of href, or "".
func pathSegment(href string, idx int) string {
	parts := strings.Split(href, "/")
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

// parseUTC parses value with layout in UTC; nil when it does not match.
func parseUTC(layout, value string) *time.Time {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// decodeBase64 accepts padded and unpadded standard base64, like atob.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// flexString decodes a JSON string, number or null into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}
