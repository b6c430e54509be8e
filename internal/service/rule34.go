package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/pkg/dimension"
	"github.com/shimizudev/hentai-api/pkg/httpclient"
)

const (
	rule34Site = "rule34"

	// Rule34PerPage is the upstream's fixed thumbnails per page.
	Rule34PerPage = 42

	postedDateLayout = "2006-01-02 15:04:05"
)

// resizeCookies make the post page serve the original image instead of the sample.
var resizeCookies = []*http.Cookie{
	{Name: "resize-notification", Value: "1"},
	{Name: "resize-original", Value: "1"},
}

// Rule34Service scrapes the Rule34 gallery and its autocomplete API.
type Rule34Service struct {
	client          *httpclient.Client
	baseURL         string
	autocompleteURL string
}

// NewRule34Service creates a new Rule34Service
func NewRule34Service(client *httpclient.Client, baseURL, autocompleteURL string) *Rule34Service {
	return &Rule34Service{
		client:          client,
		baseURL:         NormalizeBaseURL(baseURL),
		autocompleteURL: NormalizeBaseURL(autocompleteURL),
	}
}

// Search lists posts tagged with query. Next and Previous are pid offsets.
func (s *Rule34Service) Search(ctx context.Context, query string, page, perPage int) (model.Paginated[model.Rule34Post], error) {
	if perPage < 1 {
		perPage = Rule34PerPage
	}
	u := fmt.Sprintf("%s/index.php?page=post&s=list&tags=%s&pid=%d",
		s.baseURL, url.QueryEscape(query), model.Offset(page, perPage))

	body, err := s.client.Fetch(ctx, u)
	if err != nil {
		return model.Paginated[model.Rule34Post]{}, fmt.Errorf("rule34: search: %w", err)
	}
	doc, err := loadDocument(body, u)
	if err != nil {
		return model.Paginated[model.Rule34Post]{}, fmt.Errorf("rule34: search: %w", err)
	}

	posts := []model.Rule34Post{}
	doc.Find(".image-list span").Each(func(_ int, el *goquery.Selection) {
		id, _ := el.Attr("id")
		img := el.Find("img").First()
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")
		if id == "" || src == "" {
			return
		}
		tags := strings.Fields(alt)
		if tags == nil {
			tags = []string{}
		}
		posts = append(posts, model.Rule34Post{
			ID:    strings.TrimPrefix(id, "s"),
			Image: src,
			Tags:  tags,
			Type:  "preview",
		})
	})

	info := model.PageByOffset(page, perPage, LastPageOffset(doc.Find("#paginator .pagination")))

	log.Debug().Str("query", query).Int("count", len(posts)).Int("pages", info.Pages).Msg("Fetched rule34 search")
	return model.WithResults(info, posts), nil
}

// LastPageOffset reads the pid of the last pagination link, 0 when absent.
func LastPageOffset(pagination *goquery.Selection) int {
	href, ok := pagination.Find("a").Last().Attr("href")
	if !ok {
		return 0
	}
	_, pid, found := strings.Cut(href, "pid=")
	if !found {
		return 0
	}
	if amp := strings.IndexByte(pid, '&'); amp >= 0 {
		pid = pid[:amp]
	}
	n, err := strconv.Atoi(pid)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type rule34Completion struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Autocomplete returns tag completions for query.
func (s *Rule34Service) Autocomplete(ctx context.Context, query string) ([]model.Rule34Autocomplete, error) {
	u := fmt.Sprintf("%s/autocomplete.php?q=%s", s.autocompleteURL, url.QueryEscape(query))

	var raw []rule34Completion
	if err := s.client.FetchJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("rule34: autocomplete: %w", err)
	}

	out := make([]model.Rule34Autocomplete, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Rule34Autocomplete{
			CompletedQuery: r.Value,
			Label:          r.Label,
			Type:           r.Type,
		})
	}
	return out, nil
}

// Info returns a post. The page is fetched twice concurrently: the default
// variant carries the resized image URL, the resize-cookie variant carries
// the original image and the metadata.
func (s *Rule34Service) Info(ctx context.Context, id string) (*model.Rule34Info, error) {
	u := fmt.Sprintf("%s/index.php?page=post&s=view&id=%s", s.baseURL, url.QueryEscape(id))

	var resizedBody, originalBody []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resizedBody, err = s.client.Fetch(gctx, u)
		return err
	})
	g.Go(func() error {
		var err error
		originalBody, err = s.client.Fetch(gctx, u, httpclient.WithCookies(resizeCookies...))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rule34: info: %w", err)
	}

	resized, err := loadDocument(resizedBody, u)
	if err != nil {
		return nil, fmt.Errorf("rule34: info: %w", err)
	}
	original, err := loadDocument(originalBody, u)
	if err != nil {
		return nil, fmt.Errorf("rule34: info: %w", err)
	}

	info, err := parsePost(id, original.Selection)
	if err != nil {
		return nil, fmt.Errorf("rule34: info: %w", err)
	}
	info.ResizedImageURL = attr(resized.Selection, "#image", "src")
	return info, nil
}

func parsePost(id string, page *goquery.Selection) (*model.Rule34Info, error) {
	fullImage, err := requireAttr(rule34Site, page, "#image", "src", "full image")
	if err != nil {
		return nil, err
	}
	alt, _ := page.Find("#image").First().Attr("alt")
	tags := strings.Fields(alt)
	if tags == nil {
		tags = []string{}
	}

	stats := page.Find("#stats ul")
	createdAt, publishedBy, err := ParsePosted(strings.TrimSpace(stats.Find("li:nth-child(2)").Text()))
	if err != nil {
		return nil, err
	}

	_, size, _ := strings.Cut(strings.TrimSpace(stats.Find("li:nth-child(3)").Text()), "Size: ")
	_, rating, _ := strings.Cut(strings.TrimSpace(stats.Find(`li:contains("Rating:")`).Text()), "Rating: ")

	info := &model.Rule34Info{
		ID:          id,
		FullImage:   fullImage,
		Tags:        tags,
		CreatedAt:   createdAt,
		PublishedBy: publishedBy,
		Rating:      strings.TrimSpace(rating),
		Comments:    ParseComments(page.Find("#comment-list div")),
	}
	if d, ok := dimension.Parse(size); ok {
		info.Sizes = &model.Rule34Sizes{
			Aspect:    d.AspectRatio(),
			Width:     d.Width,
			Height:    d.Height,
			WidthRem:  d.WidthRem(),
			HeightRem: d.HeightRem(),
			FullSize:  d.FullSize(),
			Formatted: d.String(),
		}
	}
	return info, nil
}

// ParsePosted splits "Posted: 2024-01-02 03:04:05 by someone" into a unix
// millisecond timestamp and the uploader. Unlike episode dates, a malformed
// line is an error.
func ParsePosted(line string) (int64, string, error) {
	_, rest, found := strings.Cut(line, "Posted:")
	if !found {
		return 0, "", fmt.Errorf("posted line %q: missing %q", line, "Posted:")
	}
	stamp, author, found := strings.Cut(rest, "by")
	if !found {
		return 0, "", fmt.Errorf("posted line %q: missing %q", line, "by")
	}

	created := parseUTC(postedDateLayout, stamp)
	if created == nil {
		return 0, "", fmt.Errorf("posted line %q: bad timestamp %q", line, strings.TrimSpace(stamp))
	}
	return created.UnixMilli(), strings.TrimSpace(author), nil
}

// ParseComments reads comment nodes, dropping those with an empty body.
func ParseComments(nodes *goquery.Selection) []model.Rule34Comment {
	comments := []model.Rule34Comment{}
	nodes.Each(func(_ int, el *goquery.Selection) {
		body := text(el, ".col2")
		if body == "" {
			return
		}
		user, _, _ := strings.Cut(text(el, ".col1"), "\n")
		id, _ := el.Attr("id")
		comments = append(comments, model.Rule34Comment{
			ID:      strings.TrimPrefix(id, "c"),
			User:    strings.TrimSpace(user),
			Comment: body,
		})
	})
	return comments
}
