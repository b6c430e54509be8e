package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/service"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/internal/validation"
)

// HentaiHavenHandler serves /api/hh.
type HentaiHavenHandler struct {
	service *service.HentaiHavenService
	shaper  *shaping.Shaper
}

// NewHentaiHavenHandler creates a new HentaiHavenHandler
func NewHentaiHavenHandler(svc *service.HentaiHavenService, shaper *shaping.Shaper) *HentaiHavenHandler {
	return &HentaiHavenHandler{
		service: svc,
		shaper:  shaper,
	}
}

// Search lists series matching the query
// GET /api/hh/search/:query
func (h *HentaiHavenHandler) Search(c *gin.Context) {
	query, ok := pathParam(c, "query")
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[[]model.HentaiSearchResult]{
		Op:   shaping.HentaiHavenSearch,
		Args: []interface{}{query},
		Fetch: func(ctx context.Context) ([]model.HentaiSearchResult, error) {
			return h.service.Search(ctx, query)
		},
	})
}

// Info returns a series with its episodes
// GET /api/hh/:id?sort=ASC|DESC
func (h *HentaiHavenHandler) Info(c *gin.Context) {
	id, ok := pathParam(c, "id")
	if !ok {
		return
	}

	sortOrder := model.EpisodesSort(strings.ToUpper(c.DefaultQuery("sort", string(model.SortAsc))))
	if err := validation.ValidateVar("sort", string(sortOrder), "oneof=ASC DESC"); err != nil {
		badRequest(c, err)
		return
	}

	serve(c, h.shaper, shaping.Call[*model.HentaiInfo]{
		Op:   shaping.HentaiHavenInfo,
		Args: []interface{}{id, sortOrder},
		Fetch: func(ctx context.Context) (*model.HentaiInfo, error) {
			return h.service.Info(ctx, id, sortOrder)
		},
	})
}

// Sources resolves the player sources of an encoded episode id
// GET /api/hh/sources/:id
func (h *HentaiHavenHandler) Sources(c *gin.Context) {
	id, ok := pathParam(c, "id")
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[*model.HentaiSources]{
		Op:   shaping.HentaiHavenSources,
		Args: []interface{}{id},
		Fetch: func(ctx context.Context) (*model.HentaiSources, error) {
			return h.service.Sources(ctx, id)
		},
	})
}
