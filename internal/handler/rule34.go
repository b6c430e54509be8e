package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/service"
	"github.com/shimizudev/hentai-api/internal/shaping"
)

// Rule34Handler serves /api/r34.
type Rule34Handler struct {
	service *service.Rule34Service
	shaper  *shaping.Shaper
}

// NewRule34Handler creates a new Rule34Handler
func NewRule34Handler(svc *service.Rule34Service, shaper *shaping.Shaper) *Rule34Handler {
	return &Rule34Handler{
		service: svc,
		shaper:  shaper,
	}
}

// Search lists posts for a tag query
// GET /api/r34/search/:query?page=1
func (h *Rule34Handler) Search(c *gin.Context) {
	query, ok := pathParam(c, "query")
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1, maxPage)
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[model.Paginated[model.Rule34Post]]{
		Op:   shaping.Rule34Search,
		Args: []interface{}{query, page},
		Fetch: func(ctx context.Context) (model.Paginated[model.Rule34Post], error) {
			return h.service.Search(ctx, query, page, service.Rule34PerPage)
		},
	})
}

// Autocomplete suggests tags for a partial query
// GET /api/r34/autocomplete/:query
func (h *Rule34Handler) Autocomplete(c *gin.Context) {
	query, ok := pathParam(c, "query")
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[[]model.Rule34Autocomplete]{
		Op:   shaping.Rule34Autocomplete,
		Args: []interface{}{query},
		Fetch: func(ctx context.Context) ([]model.Rule34Autocomplete, error) {
			return h.service.Autocomplete(ctx, query)
		},
	})
}

// Info returns a single post
// GET /api/r34/:id
func (h *Rule34Handler) Info(c *gin.Context) {
	id, ok := pathParam(c, "id")
	if !ok {
		return
	}

	serve(c, h.shaper, shaping.Call[*model.Rule34Info]{
		Op:   shaping.Rule34Info,
		Args: []interface{}{id},
		Fetch: func(ctx context.Context) (*model.Rule34Info, error) {
			return h.service.Info(ctx, id)
		},
	})
}
