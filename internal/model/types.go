package model

import "time"

// ================== Common responses ==================

// APIResponse is the standard API response format
type APIResponse struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Source  string      `json:"source,omitempty"`
	Error   string      `json:"error,omitempty"`
	Issues  interface{} `json:"issues,omitempty"`
}

// Response sources, also used by the metrics middleware to count cache hits.
const (
	SourceCache = "redis-cache"
	SourceFresh = "fresh"
)

// Genre is a tag/genre link scraped from a listing or detail page.
type Genre struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name" validate:"required"`
}

// ================== HentaiHaven ==================

// EpisodesSort orders HentaiInfo episodes.
type EpisodesSort string

const (
	SortAsc  EpisodesSort = "ASC"
	SortDesc EpisodesSort = "DESC"
)

// DateField keeps the raw text alongside the parsed time. Parsed is nil when
// the text did not match the expected layout.
type DateField struct {
	Unparsed string     `json:"unparsed"`
	Parsed   *time.Time `json:"parsed"`
}

// HentaiSearchResult is one row of the HentaiHaven search listing.
type HentaiSearchResult struct {
	ID            string    `json:"id" validate:"required"`
	Title         string    `json:"title" validate:"required"`
	Cover         string    `json:"cover"`
	Rating        float64   `json:"rating" validate:"gte=0"`
	Released      int       `json:"released" validate:"gte=0"`
	Genres        []Genre   `json:"genres" validate:"dive"`
	TotalEpisodes int       `json:"totalEpisodes" validate:"gte=0"`
	Date          DateField `json:"date"`
	Alternative   string    `json:"alternative"`
	Author        string    `json:"author"`
}

// HentaiEpisode is one episode of a HentaiHaven series.
type HentaiEpisode struct {
	// ID is base64("<series-slug>/<episode-slug>"); the site exposes no episode id.
	ID               string     `json:"id" validate:"required,base64"`
	Title            string     `json:"title"`
	Thumbnail        string     `json:"thumbnail,omitempty"`
	Number           int        `json:"number" validate:"gte=1"`
	ReleasedUTC      *time.Time `json:"releasedUTC"`
	ReleasedRelative string     `json:"releasedRelative"`
}

// HentaiInfo is the HentaiHaven series detail record.
type HentaiInfo struct {
	ID            string          `json:"id" validate:"required"`
	Title         string          `json:"title" validate:"required"`
	Cover         string          `json:"cover"`
	Summary       string          `json:"summary"`
	Views         int             `json:"views" validate:"gte=0"`
	RatingCount   int             `json:"ratingCount" validate:"gte=0"`
	Released      int             `json:"released" validate:"gte=0"`
	Genres        []Genre         `json:"genres" validate:"dive"`
	TotalEpisodes int             `json:"totalEpisodes" validate:"gte=0"`
	Episodes      []HentaiEpisode `json:"episodes" validate:"dive"`
}

// HentaiSource is one playable stream.
type HentaiSource struct {
	Label string `json:"label"`
	Src   string `json:"src" validate:"required"`
	Type  string `json:"type"`
}

// HentaiSources is the result of the stream resolution protocol.
type HentaiSources struct {
	Sources   []HentaiSource `json:"sources" validate:"required,dive"`
	Thumbnail string         `json:"thumbnail,omitempty"`
}

// ================== Hanime ==================

// Brand is the studio behind a hanime video.
type Brand struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// HanimeSearchResult is one hit from the hanime search API.
type HanimeSearchResult struct {
	ID          int      `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Titles      []string `json:"titles"`
	Slug        string   `json:"slug" validate:"required"`
	Description string   `json:"description"`
	Views       int64    `json:"views" validate:"gte=0"`
	Interests   int64    `json:"interests"`
	BannerImage string   `json:"bannerImage"`
	CoverImage  string   `json:"coverImage"`
	Brand       Brand    `json:"brand"`
	DurationMs  int64    `json:"durationMs"`
	IsCensored  bool     `json:"isCensored"`
	Likes       int64    `json:"likes"`
	Rating      float64  `json:"rating"`
	Dislikes    int64    `json:"dislikes"`
	Downloads   int64    `json:"downloads"`
	RankMonthly int      `json:"rankMonthly"`
	Tags        []string `json:"tags"`
	CreatedAt   int64    `json:"createdAt"`
	ReleasedAt  int64    `json:"releasedAt"`
}

// HanimeTag is a tag attached to a hanime video.
type HanimeTag struct {
	ID   int    `json:"id"`
	Text string `json:"text" validate:"required"`
}

// HanimeEpisode is a video in a franchise, or a next/random pointer.
type HanimeEpisode struct {
	ID              int     `json:"id" validate:"required"`
	Name            string  `json:"name"`
	Slug            string  `json:"slug" validate:"required"`
	Views           int64   `json:"views"`
	Interests       int64   `json:"interests"`
	ThumbnailURL    string  `json:"thumbnailUrl"`
	CoverURL        string  `json:"coverUrl"`
	IsHardSubtitled bool    `json:"isHardSubtitled"`
	Brand           Brand   `json:"brand"`
	DurationMs      int64   `json:"durationMs"`
	IsCensored      bool    `json:"isCensored"`
	Likes           int64   `json:"likes"`
	Rating          float64 `json:"rating"`
	Dislikes        int64   `json:"dislikes"`
	Downloads       int64   `json:"downloads"`
	RankMonthly     int     `json:"rankMonthly"`
	IsBannedIn      string  `json:"isBannedIn"`
	CreatedAt       int64   `json:"createdAt"`
	ReleasedAt      int64   `json:"releasedAt"`
}

// HanimeEpisodes groups the episode pointers of a video page.
type HanimeEpisodes struct {
	Next   *HanimeEpisode  `json:"next,omitempty"`
	All    []HanimeEpisode `json:"all" validate:"dive"`
	Random *HanimeEpisode  `json:"random,omitempty"`
}

// HanimeVideo is the hanime video detail record.
type HanimeVideo struct {
	Title         string         `json:"title" validate:"required"`
	Slug          string         `json:"slug" validate:"required"`
	ID            int            `json:"id" validate:"required"`
	Description   string         `json:"description"`
	Views         int64          `json:"views" validate:"gte=0"`
	Interests     int64          `json:"interests"`
	PosterURL     string         `json:"posterUrl"`
	CoverURL      string         `json:"coverUrl"`
	Brand         Brand          `json:"brand"`
	DurationMs    int64          `json:"durationMs"`
	IsCensored    bool           `json:"isCensored"`
	Likes         int64          `json:"likes"`
	Rating        float64        `json:"rating"`
	Dislikes      int64          `json:"dislikes"`
	Downloads     int64          `json:"downloads"`
	RankMonthly   int            `json:"rankMonthly"`
	Tags          []HanimeTag    `json:"tags" validate:"dive"`
	CreatedAt     string         `json:"createdAt"`
	ReleasedAt    string         `json:"releasedAt"`
	TotalEpisodes int            `json:"totalEpisodes" validate:"gte=0"`
	Episodes      HanimeEpisodes `json:"episodes"`
}

// HanimeStream is one entry of a videos manifest.
type HanimeStream struct {
	ID           int     `json:"id"`
	ServerID     int     `json:"serverId"`
	Kind         string  `json:"kind"`
	Extension    string  `json:"extension"`
	MimeType     string  `json:"mimeType"`
	Width        int     `json:"width" validate:"gte=0"`
	Height       string  `json:"height"`
	DurationInMs int64   `json:"durationInMs"`
	FilesizeMbs  float64 `json:"filesizeMbs"`
	Filename     string  `json:"filename"`
	URL          string  `json:"url" validate:"required,url"`
}

// ================== Rule34 ==================

// Rule34Post is one thumbnail of a Rule34 search page.
type Rule34Post struct {
	ID    string   `json:"id" validate:"required"`
	Image string   `json:"image" validate:"required"`
	Tags  []string `json:"tags"`
	Type  string   `json:"type" validate:"oneof=preview"`
}

// Rule34Autocomplete is one tag completion.
type Rule34Autocomplete struct {
	CompletedQuery string `json:"completedQuery" validate:"required"`
	Label          string `json:"label"`
	Type           string `json:"type"`
}

// Rule34Sizes is derived from the post's "WxH" size line.
type Rule34Sizes struct {
	Aspect    string  `json:"aspect"`
	Width     int     `json:"width" validate:"gte=0"`
	Height    int     `json:"height" validate:"gte=0"`
	WidthRem  float64 `json:"widthRem"`
	HeightRem float64 `json:"heightRem"`
	FullSize  int     `json:"fullSize"`
	Formatted string  `json:"formatted"`
}

// Rule34Comment is a non-empty comment under a post.
type Rule34Comment struct {
	ID      string `json:"id"`
	User    string `json:"user"`
	Comment string `json:"comment" validate:"required"`
}

// Rule34Info is the Rule34 post detail record.
type Rule34Info struct {
	ID              string          `json:"id" validate:"required"`
	FullImage       string          `json:"fullImage" validate:"required"`
	ResizedImageURL string          `json:"resizedImageUrl"`
	Tags            []string        `json:"tags"`
	CreatedAt       int64           `json:"createdAt"`
	PublishedBy     string          `json:"publishedBy"`
	Rating          string          `json:"rating"`
	Sizes           *Rule34Sizes    `json:"sizes,omitempty"`
	Comments        []Rule34Comment `json:"comments" validate:"dive"`
}
