package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/pkg/httpclient"
)

const (
	hanimeSite          = "hanime"
	nuxtStatePrefix     = "window.__NUXT__="
	premiumAlertKind    = "premium_alert"
	hanimeOrderByCreate = "created_at_unix"

	// hits per page of the upstream search index
	hanimeFeedPageSize = 48
)

// HanimeService talks to hanime.tv pages and its search/manifest APIs.
type HanimeService struct {
	client    *httpclient.Client
	baseURL   string
	searchURL string
	now       func() time.Time
}

// NewHanimeService creates a new HanimeService
func NewHanimeService(client *httpclient.Client, baseURL, searchURL string) *HanimeService {
	return &HanimeService{
		client:    client,
		baseURL:   NormalizeBaseURL(baseURL),
		searchURL: NormalizeBaseURL(searchURL),
		now:       time.Now,
	}
}

type hanimeSearchRequest struct {
	Blacklist  []string `json:"blacklist"`
	Brands     []string `json:"brands"`
	OrderBy    string   `json:"order_by"`
	Page       int      `json:"page"`
	Tags       []string `json:"tags"`
	SearchText string   `json:"search_text"`
	TagsMode   string   `json:"tags_mode"`
}

type hanimeSearchResponse struct {
	Page        int    `json:"page"`
	NbPages     int    `json:"nbPages"`
	NbHits      int    `json:"nbHits"`
	HitsPerPage int    `json:"hitsPerPage"`
	Hits        string `json:"hits"` // JSON-encoded array
}

type hanimeRawHit struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Titles      []string   `json:"titles"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	Views       int64      `json:"views"`
	Interests   int64      `json:"interests"`
	PosterURL   string     `json:"poster_url"`
	CoverURL    string     `json:"cover_url"`
	Brand       string     `json:"brand"`
	BrandID     flexString `json:"brand_id"`
	DurationMs  int64      `json:"duration_in_ms"`
	IsCensored  bool       `json:"is_censored"`
	Rating      float64    `json:"rating"`
	Likes       int64      `json:"likes"`
	Dislikes    int64      `json:"dislikes"`
	Downloads   int64      `json:"downloads"`
	MonthlyRank int        `json:"monthly_rank"`
	Tags        []string   `json:"tags"`
	CreatedAt   int64      `json:"created_at"`
	ReleasedAt  int64      `json:"released_at"`
}

// Search pages through the upstream search index: page N of ours is page N-1
// upstream, truncated to perPage hits.
func (s *HanimeService) Search(ctx context.Context, query string, page, perPage int) (model.Paginated[model.HanimeSearchResult], error) {
	info := model.PageByHits(page, perPage, 0)
	resp, hits, err := s.search(ctx, query, info.Page-1)
	if err != nil {
		return model.Paginated[model.HanimeSearchResult]{}, fmt.Errorf("hanime: search: %w", err)
	}

	if len(hits) > perPage && perPage > 0 {
		hits = hits[:perPage]
	}
	return model.WithResults(model.PageByHits(page, perPage, resp.NbHits), hits), nil
}

// Recent lists the newest uploads. Our page is mapped onto the fixed-size
// upstream feed pages, fetching the next one when a page straddles two.
func (s *HanimeService) Recent(ctx context.Context, page, perPage int) (model.Paginated[model.HanimeSearchResult], error) {
	info := model.PageByHits(page, perPage, 0)
	if perPage < 1 {
		perPage = 1
	}
	offset := model.Offset(info.Page, perPage)
	upstreamPage := offset / hanimeFeedPageSize
	skip := offset - upstreamPage*hanimeFeedPageSize

	var (
		total int
		hits  []model.HanimeSearchResult
	)
	for len(hits) < skip+perPage {
		resp, batch, err := s.search(ctx, "", upstreamPage)
		if err != nil {
			return model.Paginated[model.HanimeSearchResult]{}, fmt.Errorf("hanime: recent: %w", err)
		}
		total = resp.NbHits
		hits = append(hits, batch...)
		if len(batch) < hanimeFeedPageSize {
			break
		}
		upstreamPage++
	}

	start, end := skip, skip+perPage
	if start > len(hits) {
		start = len(hits)
	}
	if end > len(hits) {
		end = len(hits)
	}
	return model.WithResults(model.PageByHits(page, perPage, total), hits[start:end]), nil
}

func (s *HanimeService) search(ctx context.Context, query string, upstreamPage int) (*hanimeSearchResponse, []model.HanimeSearchResult, error) {
	req := hanimeSearchRequest{
		Blacklist:  []string{},
		Brands:     []string{},
		OrderBy:    hanimeOrderByCreate,
		Page:       upstreamPage,
		Tags:       []string{},
		SearchText: query,
		TagsMode:   "AND",
	}

	var resp hanimeSearchResponse
	if err := s.client.PostJSON(ctx, s.searchURL, req, &resp); err != nil {
		return nil, nil, err
	}

	var raw []hanimeRawHit
	if resp.Hits != "" {
		if err := json.Unmarshal([]byte(resp.Hits), &raw); err != nil {
			return nil, nil, fmt.Errorf("decode hits: %w", err)
		}
	}

	results := make([]model.HanimeSearchResult, len(raw))
	for i, r := range raw {
		results[i] = mapHit(r)
	}

	log.Debug().Str("query", query).Int("hits", resp.NbHits).Int("page", upstreamPage).Msg("Fetched hanime search")
	return &resp, results, nil
}

func mapHit(r hanimeRawHit) model.HanimeSearchResult {
	return model.HanimeSearchResult{
		ID:          r.ID,
		Name:        r.Name,
		Titles:      r.Titles,
		Slug:        r.Slug,
		Description: r.Description,
		Views:       r.Views,
		Interests:   r.Interests,
		BannerImage: r.PosterURL,
		CoverImage:  r.CoverURL,
		Brand:       model.Brand{Name: r.Brand, ID: string(r.BrandID)},
		DurationMs:  r.DurationMs,
		IsCensored:  r.IsCensored,
		Likes:       r.Likes,
		Rating:      r.Rating,
		Dislikes:    r.Dislikes,
		Downloads:   r.Downloads,
		RankMonthly: r.MonthlyRank,
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt,
		ReleasedAt:  r.ReleasedAt,
	}
}

type hanimeRawEpisode struct {
	ID              int        `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	Views           int64      `json:"views"`
	Interests       int64      `json:"interests"`
	PosterURL       string     `json:"poster_url"`
	CoverURL        string     `json:"cover_url"`
	IsHardSubtitled bool       `json:"is_hard_subtitled"`
	Brand           string     `json:"brand"`
	BrandID         flexString `json:"brand_id"`
	DurationMs      int64      `json:"duration_in_ms"`
	IsCensored      bool       `json:"is_censored"`
	Rating          float64    `json:"rating"`
	Likes           int64      `json:"likes"`
	Dislikes        int64      `json:"dislikes"`
	Downloads       int64      `json:"downloads"`
	MonthlyRank     int        `json:"monthly_rank"`
	IsBannedIn      flexString `json:"is_banned_in"`
	CreatedAtUnix   int64      `json:"created_at_unix"`
	ReleasedAtUnix  int64      `json:"released_at_unix"`
}

type hanimeRawVideo struct {
	hanimeRawEpisode
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	ReleasedAt  string `json:"released_at"`
}

type hanimeNuxtState struct {
	State struct {
		Data struct {
			Video struct {
				HentaiFranchise struct {
					Name string `json:"name"`
					Slug string `json:"slug"`
				} `json:"hentai_franchise"`
				HentaiVideo           hanimeRawVideo     `json:"hentai_video"`
				HentaiTags            []model.HanimeTag  `json:"hentai_tags"`
				FranchiseVideos       []hanimeRawEpisode `json:"hentai_franchise_hentai_videos"`
				NextHentaiVideo       *hanimeRawEpisode  `json:"next_hentai_video"`
				NextRandomHentaiVideo *hanimeRawEpisode  `json:"next_random_hentai_video"`
			} `json:"video"`
		} `json:"data"`
	} `json:"state"`
}

// Video returns the detail record of the video page at slug.
func (s *HanimeService) Video(ctx context.Context, slug string) (*model.HanimeVideo, error) {
	u := fmt.Sprintf("%s/videos/hentai/%s", s.baseURL, slug)

	body, err := s.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("hanime: video: %w", err)
	}
	doc, err := loadDocument(body, u)
	if err != nil {
		return nil, fmt.Errorf("hanime: video: %w", err)
	}

	script := doc.Find(`script:contains("window.__NUXT__")`).First()
	if script.Length() == 0 {
		return nil, fmt.Errorf("hanime: video: %w", &ExtractionError{Site: hanimeSite, Field: "state", Selector: "script window.__NUXT__"})
	}
	state, err := parseNuxtState(script.Text())
	if err != nil {
		return nil, fmt.Errorf("hanime: video: %w", err)
	}

	v := state.State.Data.Video
	hv := v.HentaiVideo
	if v.HentaiFranchise.Name == "" || hv.ID == 0 {
		return nil, fmt.Errorf("hanime: video: %w", &ExtractionError{Site: hanimeSite, Field: "hentai_video", Selector: "state.data.video"})
	}

	all := make([]model.HanimeEpisode, len(v.FranchiseVideos))
	for i, e := range v.FranchiseVideos {
		all[i] = mapEpisode(e)
	}

	tags := v.HentaiTags
	if tags == nil {
		tags = []model.HanimeTag{}
	}

	return &model.HanimeVideo{
		Title:         v.HentaiFranchise.Name,
		Slug:          v.HentaiFranchise.Slug,
		ID:            hv.ID,
		Description:   hv.Description,
		Views:         hv.Views,
		Interests:     hv.Interests,
		PosterURL:     hv.PosterURL,
		CoverURL:      hv.CoverURL,
		Brand:         model.Brand{Name: hv.Brand, ID: string(hv.BrandID)},
		DurationMs:    hv.DurationMs,
		IsCensored:    hv.IsCensored,
		Likes:         hv.Likes,
		Rating:        hv.Rating,
		Dislikes:      hv.Dislikes,
		Downloads:     hv.Downloads,
		RankMonthly:   hv.MonthlyRank,
		Tags:          tags,
		CreatedAt:     hv.CreatedAt,
		ReleasedAt:    hv.ReleasedAt,
		TotalEpisodes: len(all),
		Episodes: model.HanimeEpisodes{
			Next:   mapEpisodePtr(v.NextHentaiVideo),
			All:    all,
			Random: mapEpisodePtr(v.NextRandomHentaiVideo),
		},
	}, nil
}

// parseNuxtState decodes the "window.__NUXT__={...};" assignment of a video page.
func parseNuxtState(script string) (*hanimeNuxtState, error) {
	_, raw, found := strings.Cut(script, nuxtStatePrefix)
	if !found {
		return nil, &ExtractionError{Site: hanimeSite, Field: "state", Selector: nuxtStatePrefix}
	}
	raw = strings.TrimRight(strings.TrimSpace(raw), ";")

	var state hanimeNuxtState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

func mapEpisode(r hanimeRawEpisode) model.HanimeEpisode {
	return model.HanimeEpisode{
		ID:              r.ID,
		Name:            r.Name,
		Slug:            r.Slug,
		Views:           r.Views,
		Interests:       r.Interests,
		ThumbnailURL:    r.PosterURL,
		CoverURL:        r.CoverURL,
		IsHardSubtitled: r.IsHardSubtitled,
		Brand:           model.Brand{Name: r.Brand, ID: string(r.BrandID)},
		DurationMs:      r.DurationMs,
		IsCensored:      r.IsCensored,
		Likes:           r.Likes,
		Rating:          r.Rating,
		Dislikes:        r.Dislikes,
		Downloads:       r.Downloads,
		RankMonthly:     r.MonthlyRank,
		IsBannedIn:      string(r.IsBannedIn),
		CreatedAt:       r.CreatedAtUnix,
		ReleasedAt:      r.ReleasedAtUnix,
	}
}

func mapEpisodePtr(r *hanimeRawEpisode) *model.HanimeEpisode {
	if r == nil || r.ID == 0 {
		return nil
	}
	e := mapEpisode(*r)
	return &e
}

type hanimeManifestResponse struct {
	VideosManifest struct {
		Servers []struct {
			Streams []struct {
				ID           int        `json:"id"`
				ServerID     int        `json:"server_id"`
				Kind         string     `json:"kind"`
				Extension    string     `json:"extension"`
				MimeType     string     `json:"mime_type"`
				Width        int        `json:"width"`
				Height       flexString `json:"height"`
				DurationInMs int64      `json:"duration_in_ms"`
				FilesizeMbs  float64    `json:"filesize_mbs"`
				Filename     string     `json:"filename"`
				URL          string     `json:"url"`
			} `json:"streams"`
		} `json:"servers"`
	} `json:"videos_manifest"`
}

// Streams returns the playable streams of a video, skipping premium
// placeholders and streams without a URL.
func (s *HanimeService) Streams(ctx context.Context, slug string) ([]model.HanimeStream, error) {
	u := fmt.Sprintf("%s/rapi/v7/videos_manifests/%s", s.baseURL, slug)

	var resp hanimeManifestResponse
	err := s.client.FetchJSON(ctx, u, &resp,
		httpclient.WithHeader("x-signature", s.signature()),
		httpclient.WithHeader("x-time", strconv.FormatInt(s.now().Unix(), 10)),
		httpclient.WithHeader("x-signature-version", "web2"),
	)
	if err != nil {
		return nil, fmt.Errorf("hanime: streams: %w", err)
	}

	streams := []model.HanimeStream{}
	for _, server := range resp.VideosManifest.Servers {
		for _, v := range server.Streams {
			if v.URL == "" || v.Kind == premiumAlertKind {
				continue
			}
			streams = append(streams, model.HanimeStream{
				ID:           v.ID,
				ServerID:     v.ServerID,
				Kind:         v.Kind,
				Extension:    v.Extension,
				MimeType:     v.MimeType,
				Width:        v.Width,
				Height:       string(v.Height),
				DurationInMs: v.DurationInMs,
				FilesizeMbs:  v.FilesizeMbs,
				Filename:     v.Filename,
				URL:          v.URL,
			})
		}
	}

	log.Debug().Str("slug", slug).Int("streams", len(streams)).Msg("Fetched hanime manifest")
	return streams, nil
}

// signature is 32 random hex characters.
func (s *HanimeService) signature() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
