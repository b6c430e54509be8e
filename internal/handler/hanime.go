package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/service"
	"github.com/shimizudev/hentai-api/internal/shaping"
)

const (
	hanimeDefaultPerPage = 10
	hanimeMaxPerPage     = 100
	maxPage              = 10000
)

// HanimeHandler serves /api/hanime.
type HanimeHandler struct {
	service *service.HanimeService
	shaper  *shaping.Shaper
}

// NewHanimeHandler creates a new HanimeHandler
func NewHanimeHandler(svc *service.HanimeService, shaper *shaping.Shaper) *HanimeHandler {
	return &HanimeHandler{
		service: svc,
		shaper:  shaper,
	}
}

func (h *HanimeHandler) paging(c *gin.Context) (page, perPage int, ok bool) {
	if page, ok = intQuery(c, "page", 1, maxPage); !ok {
		return 0, 0, false
	}
	if perPage, ok = intQuery(c, "perPage", hanimeDefaultPerPage, hanimeMaxPerPage); !ok {
		return 0, 0, false
	}
	return page, perPage, true
}

// Recent lists the newest uploads
// GET /api/hanime/recent?page=1&perPage=10
func (h *HanimeHandler) Recent(c *gin.Context) {
	page, perPage, ok := h.paging(c)
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[model.Paginated[model.HanimeSearchResult]]{
		Op:   shaping.HanimeRecent,
		Args: []interface{}{page, perPage},
		Fetch: func(ctx context.Context) (model.Paginated[model.HanimeSearchResult], error) {
			return h.service.Recent(ctx, page, perPage)
		},
	})
}

// Search queries the search API
// GET /api/hanime/search/:query?page=1&perPage=10
func (h *HanimeHandler) Search(c *gin.Context) {
	query, ok := pathParam(c, "query")
	if !ok {
		return
	}
	page, perPage, ok := h.paging(c)
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[model.Paginated[model.HanimeSearchResult]]{
		Op:   shaping.HanimeSearch,
		Args: []interface{}{query, page, perPage},
		Fetch: func(ctx context.Context) (model.Paginated[model.HanimeSearchResult], error) {
			return h.service.Search(ctx, query, page, perPage)
		},
	})
}

// Video returns the video page of a slug
// GET /api/hanime/:id
func (h *HanimeHandler) Video(c *gin.Context) {
	slug, ok := pathParam(c, "id")
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[*model.HanimeVideo]{
		Op:   shaping.HanimeVideo,
		Args: []interface{}{slug},
		Fetch: func(ctx context.Context) (*model.HanimeVideo, error) {
			return h.service.Video(ctx, slug)
		},
	})
}

// Streams returns the playable streams of a slug
// GET /api/hanime/streams/:id
func (h *HanimeHandler) Streams(c *gin.Context) {
	slug, ok := pathParam(c, "id")
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[[]model.HanimeStream]{
		Op:   shaping.HanimeStreams,
		Args: []interface{}{slug},
		Fetch: func(ctx context.Context) ([]model.HanimeStream, error) {
			return h.service.Streams(ctx, slug)
		},
	})
}
