package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/pkg/cryptoutil"
	"github.com/shimizudev/hentai-api/pkg/httpclient"
)

const (
	hentaiHavenSite = "hentaihaven"

	// DefaultPlayerAPIBase is used when the decoded player payload carries no uri.
	DefaultPlayerAPIBase = "https://hentaihaven.xxx/wp-content/plugins/player-logic/"

	playerAction      = "zarat_get_data_player_ajax"
	secureTokenPrefix = "sha512-"

	searchDateLayout  = "2006-01-02 15:04:05"
	episodeDateLayout = "January 2, 2006"
)

// HentaiHavenService scrapes the HentaiHaven catalog.
type HentaiHavenService struct {
	client        *httpclient.Client
	baseURL       string
	playerAPIBase string
}

// NewHentaiHavenService creates a new HentaiHavenService
func NewHentaiHavenService(client *httpclient.Client, baseURL, playerAPIBase string) *HentaiHavenService {
	if playerAPIBase == "" {
		playerAPIBase = DefaultPlayerAPIBase
	}
	return &HentaiHavenService{
		client:        client,
		baseURL:       NormalizeBaseURL(baseURL),
		playerAPIBase: playerAPIBase,
	}
}

// Search returns the catalog entries matching query.
func (s *HentaiHavenService) Search(ctx context.Context, query string) ([]model.HentaiSearchResult, error) {
	u := fmt.Sprintf("%s/?s=%s&post_type=wp-manga", s.baseURL, url.QueryEscape(query))

	body, err := s.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("hentaihaven: search: %w", err)
	}
	doc, err := loadDocument(body, u)
	if err != nil {
		return nil, fmt.Errorf("hentaihaven: search: %w", err)
	}

	results := []model.HentaiSearchResult{}
	var extractErr error
	doc.Find(".c-tabs-item__content").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		item, err := s.parseSearchItem(el)
		if err != nil {
			extractErr = err
			return false
		}
		results = append(results, item)
		return true
	})
	if extractErr != nil {
		return nil, fmt.Errorf("hentaihaven: search: %w", extractErr)
	}

	log.Debug().Str("query", query).Int("count", len(results)).Msg("Fetched hentaihaven search")
	return results, nil
}

func (s *HentaiHavenService) parseSearchItem(el *goquery.Selection) (model.HentaiSearchResult, error) {
	href, err := requireAttr(hentaiHavenSite, el, ".c-image-hover a", "href", "id")
	if err != nil {
		return model.HentaiSearchResult{}, err
	}
	id := pathSegment(href, 4)
	if id == "" {
		return model.HentaiSearchResult{}, &ExtractionError{Site: hentaiHavenSite, Field: "id", Selector: ".c-image-hover a@href"}
	}
	title, err := requireText(hentaiHavenSite, el, ".post-title h3", "title")
	if err != nil {
		return model.HentaiSearchResult{}, err
	}

	totalEpisodes, _ := numberFromString(text(el, ".tab-meta .latest-chap .chapter"))
	dateString := text(el, ".tab-meta .post-on")

	return model.HentaiSearchResult{
		ID:            id,
		Title:         title,
		Cover:         strings.ReplaceAll(attr(el, ".c-image-hover img", "src"), " ", "%20"),
		Rating:        atof(text(el, ".tab-meta .rating .total_votes")),
		Released:      atoi(text(el, ".tab-summary .mg_release .summary-content")),
		Genres:        parseGenres(el.Find(".tab-summary .mg_genres .summary-content a")),
		TotalEpisodes: totalEpisodes,
		Date: model.DateField{
			Unparsed: dateString,
			Parsed:   parseUTC(searchDateLayout, dateString),
		},
		Alternative: text(el, ".tab-summary .mg_alternative .summary-content"),
		Author:      text(el, ".tab-summary .mg_author .summary-content"),
	}, nil
}

func parseGenres(links *goquery.Selection) []model.Genre {
	genres := []model.Genre{}
	links.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		name := strings.TrimSpace(strings.ReplaceAll(a.Text(), ",", ""))
		if name == "" {
			return
		}
		genres = append(genres, model.Genre{
			ID:   pathSegment(href, 4),
			URL:  href,
			Name: name,
		})
	})
	return genres
}

// Info returns the series detail page for id with episodes ordered by sortOrder.
func (s *HentaiHavenService) Info(ctx context.Context, id string, sortOrder model.EpisodesSort) (*model.HentaiInfo, error) {
	if id == "" {
		return nil, fmt.Errorf("hentaihaven: info: id is required")
	}

	u := fmt.Sprintf("%s/watch/%s", s.baseURL, id)
	body, err := s.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("hentaihaven: info: %w", err)
	}
	doc, err := loadDocument(body, u)
	if err != nil {
		return nil, fmt.Errorf("hentaihaven: info: %w", err)
	}
	page := doc.Selection

	title, err := requireText(hentaiHavenSite, page, ".post-title h1", "title")
	if err != nil {
		return nil, fmt.Errorf("hentaihaven: info: %w", err)
	}
	views, _ := numberFromString(page.Find(".post-content_item:nth-child(4) .summary-content").Text())

	episodes := ParseEpisodes(page.Find("li.wp-manga-chapter"))
	SortEpisodes(episodes, sortOrder)

	info := &model.HentaiInfo{
		ID:            id,
		Title:         title,
		Cover:         strings.ReplaceAll(attr(page, ".summary_image img", "src"), " ", "%20"),
		Summary:       text(page, ".description-summary p"),
		Views:         views,
		RatingCount:   atoi(text(page, `span[property="ratingCount"]`)),
		Released:      atoi(text(page, ".post-status .summary-content a")),
		Genres:        parseGenres(page.Find(".genres-content a")),
		TotalEpisodes: len(episodes),
		Episodes:      episodes,
	}

	log.Debug().Str("id", id).Int("episodes", info.TotalEpisodes).Msg("Fetched hentaihaven info")
	return info, nil
}

// ParseEpisodes reads newest-first episode nodes. Number is total-index so
// the oldest episode is 1. Nodes without a usable link are skipped, so the
// count reflects what was actually observed.
func ParseEpisodes(nodes *goquery.Selection) []model.HentaiEpisode {
	total := nodes.Length()
	episodes := make([]model.HentaiEpisode, 0, total)

	nodes.Each(func(i int, el *goquery.Selection) {
		href := attr(el, "a", "href")
		series, episode := pathSegment(href, 4), pathSegment(href, 5)
		if series == "" || episode == "" {
			return
		}
		released := text(el, ".chapter-release-date")

		episodes = append(episodes, model.HentaiEpisode{
			ID:               base64.StdEncoding.EncodeToString([]byte(series + "/" + episode)),
			Title:            strings.TrimSpace(el.Find("a").First().Text()),
			Thumbnail:        attr(el, "img", "src"),
			Number:           total - i,
			ReleasedUTC:      parseUTC(episodeDateLayout, released),
			ReleasedRelative: released,
		})
	})
	return episodes
}

// SortEpisodes orders episodes by number, ascending unless order is DESC.
func SortEpisodes(episodes []model.HentaiEpisode, order model.EpisodesSort) {
	sort.SliceStable(episodes, func(i, j int) bool {
		if order == model.SortDesc {
			return episodes[i].Number > episodes[j].Number
		}
		return episodes[i].Number < episodes[j].Number
	})
}

// PlayerPayload is the plaintext hidden in the player's secure token.
type PlayerPayload struct {
	En  string `json:"en"`
	IV  string `json:"iv"`
	URI string `json:"uri"`
}

// DecodeSecureToken reverses the player token obfuscation: three rounds of
// rot13 followed by base64 decoding, then JSON.
func DecodeSecureToken(token string) (*PlayerPayload, error) {
	s := strings.TrimPrefix(strings.TrimSpace(token), secureTokenPrefix)
	for stage := 1; stage <= 3; stage++ {
		b, err := decodeBase64(cryptoutil.Rot13(s))
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", stage, err)
		}
		s = string(b)
	}

	var payload PlayerPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if payload.En == "" || payload.IV == "" {
		return nil, fmt.Errorf("payload: missing en/iv")
	}
	return &payload, nil
}

type playerAPIResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Image   *string              `json:"image"`
		Sources []model.HentaiSource `json:"sources"`
	} `json:"data"`
}

// Sources resolves the playable streams of an episode. encodedID is the
// base64 episode id from Info. Any failure is reported as ErrSourceResolution.
func (s *HentaiHavenService) Sources(ctx context.Context, encodedID string) (*model.HentaiSources, error) {
	sources, err := s.resolveSources(ctx, encodedID)
	if err != nil {
		return nil, fmt.Errorf("hentaihaven: %w: %w", ErrSourceResolution, err)
	}
	return sources, nil
}

func (s *HentaiHavenService) resolveSources(ctx context.Context, encodedID string) (*model.HentaiSources, error) {
	if encodedID == "" || strings.Contains(encodedID, "episode-") {
		return nil, ErrEncodedIDRequired
	}
	path, err := decodeBase64(encodedID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodedIDRequired, err)
	}

	pageURL := fmt.Sprintf("%s/watch/%s", s.baseURL, strings.Trim(string(path), "/"))
	body, err := s.client.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	page, err := loadDocument(body, pageURL)
	if err != nil {
		return nil, err
	}

	frameSrc, err := requireAttr(hentaiHavenSite, page.Selection, ".player_logic_item > iframe", "src", "player frame")
	if err != nil {
		return nil, err
	}
	frameURL, err := resolveReference(pageURL, frameSrc)
	if err != nil {
		return nil, fmt.Errorf("player frame url: %w", err)
	}

	body, err = s.client.Fetch(ctx, frameURL, httpclient.WithHeader("Referer", pageURL))
	if err != nil {
		return nil, fmt.Errorf("player frame: %w", err)
	}
	frame, err := loadDocument(body, frameURL)
	if err != nil {
		return nil, err
	}

	token, err := requireAttr(hentaiHavenSite, frame.Selection, `meta[name="x-secure-token"]`, "content", "secure token")
	if err != nil {
		return nil, err
	}
	payload, err := DecodeSecureToken(token)
	if err != nil {
		return nil, fmt.Errorf("secure token: %w", err)
	}

	apiBase := payload.URI
	if apiBase == "" {
		apiBase = s.playerAPIBase
	}

	var resp playerAPIResponse
	fields := []httpclient.Field{
		{Name: "action", Value: playerAction},
		{Name: "a", Value: payload.En},
		{Name: "b", Value: payload.IV},
	}
	if err := s.client.PostMultipart(ctx, apiBase+"api.php", fields, &resp); err != nil {
		return nil, fmt.Errorf("player api: %w", err)
	}
	if len(resp.Data.Sources) == 0 {
		return nil, fmt.Errorf("player api: no sources (status=%v)", resp.Status)
	}

	result := &model.HentaiSources{Sources: resp.Data.Sources}
	if resp.Data.Image != nil {
		result.Thumbnail = *resp.Data.Image
	}

	log.Debug().Int("sources", len(result.Sources)).Msg("Resolved hentaihaven sources")
	return result, nil
}

func resolveReference(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// NormalizeBaseURL prepends http:// to scheme-less base URLs and drops any trailing slash.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return strings.TrimSuffix(base, "/")
}
