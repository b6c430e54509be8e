package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/repository"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/internal/validation"
	"github.com/shimizudev/hentai-api/pkg/cryptoutil"
	"github.com/shimizudev/hentai-api/pkg/httpclient"
)

// KeyManager issues and revokes API keys.
type KeyManager interface {
	Create(ctx context.Context, label string) (*repository.APIKey, error)
	Revoke(ctx context.Context, key string) error
}

// AdminHandler handles admin-related endpoints
type AdminHandler struct {
	metrics     *repository.Metrics
	cache       *repository.Cache
	keys        KeyManager
	tokenSecret string
	upstreams   map[string]*httpclient.Client
	now         func() time.Time
}

// NewAdminHandler creates a new AdminHandler. upstreams maps a namespace to the
// client of that site and is only used for status reporting.
func NewAdminHandler(metrics *repository.Metrics, cache *repository.Cache, keys KeyManager, tokenSecret string, upstreams map[string]*httpclient.Client) *AdminHandler {
	return &AdminHandler{
		metrics:     metrics,
		cache:       cache,
		keys:        keys,
		tokenSecret: tokenSecret,
		upstreams:   upstreams,
		now:         time.Now,
	}
}

// GetStatus returns service status
// GET /api/status
func (h *AdminHandler) GetStatus(c *gin.Context) {
	proxies := 0
	for _, client := range h.upstreams {
		if client.ProxyCount() > proxies {
			proxies = client.ProxyCount()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"proxy_enabled":  proxies > 0,
		"proxy_count":    proxies,
		"tokens_enabled": h.tokenSecret != "",
		"namespaces":     shaping.Namespaces(),
	})
}

// GetAnalytics returns API analytics
// GET /api/admin/analytics
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	stats, err := h.metrics.Overview(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read analytics")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code: 200,
		Data: stats,
	})
}

// GetRouteStats returns stats for a specific route pattern
// GET /api/admin/analytics/route?route=/api/r34/:id
func (h *AdminHandler) GetRouteStats(c *gin.Context) {
	route := c.Query("route")
	if err := validation.ValidateVar("route", route, "required,startswith=/"); err != nil {
		badRequest(c, err)
		return
	}

	stats, err := h.metrics.Route(c.Request.Context(), route)
	if err != nil {
		log.Error().Err(err).Str("route", route).Msg("Failed to read route stats")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code: 200,
		Data: stats,
	})
}

// ResetAnalytics resets all analytics data
// DELETE /api/admin/analytics
func (h *AdminHandler) ResetAnalytics(c *gin.Context) {
	deleted, err := h.metrics.Reset(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to reset analytics")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	log.Info().Int64("keys", deleted).Msg("Analytics reset")
	c.JSON(http.StatusOK, model.APIResponse{
		Code:    200,
		Message: "All analytics data has been reset",
		Data:    gin.H{"deleted": deleted},
	})
}

type createKeyRequest struct {
	Label string `json:"label" validate:"required,max=64"`
}

// CreateKey issues a new API key
// POST /api/admin/keys {"label": "partner"}
func (h *AdminHandler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errors.New("request body must be a JSON object"))
		return
	}
	if err := validation.Validate(req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := h.keys.Create(c.Request.Context(), req.Label)
	if err != nil {
		log.Error().Err(err).Str("label", req.Label).Msg("Failed to create API key")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	log.Info().Str("label", key.Label).Msg("API key created")
	c.JSON(http.StatusCreated, model.APIResponse{
		Code: 201,
		Data: key,
	})
}

// RevokeKey deletes an API key
// DELETE /api/admin/keys/:key
func (h *AdminHandler) RevokeKey(c *gin.Context) {
	key, ok := pathParam(c, "key")
	if !ok {
		return
	}

	err := h.keys.Revoke(c.Request.Context(), key)
	switch {
	case errors.Is(err, repository.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, model.APIResponse{
			Code:  404,
			Error: "API key not found",
		})
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to revoke API key")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    200,
		Message: "API key revoked",
	})
}

type createTokenRequest struct {
	Data       string `json:"data" validate:"required,excludes=."`
	Label      string `json:"label" validate:"required,excludes=."`
	TTLSeconds int64  `json:"ttlSeconds" validate:"gte=1,lte=31536000"` // at most a year
}

// CreateToken signs an expiring access token usable as an API key
// POST /api/admin/tokens {"data": "...", "label": "...", "ttlSeconds": 3600}
func (h *AdminHandler) CreateToken(c *gin.Context) {
	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errors.New("request body must be a JSON object"))
		return
	}
	if err := validation.Validate(req); err != nil {
		badRequest(c, err)
		return
	}

	expiry := h.now().Add(time.Duration(req.TTLSeconds) * time.Second).Unix()
	token, err := cryptoutil.SignToken(req.Data, expiry, req.Label, h.tokenSecret)
	if errors.Is(err, cryptoutil.ErrMissingSecret) {
		c.JSON(http.StatusServiceUnavailable, model.APIResponse{
			Code:  503,
			Error: "Token signing is not configured",
		})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign token")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	c.JSON(http.StatusCreated, model.APIResponse{
		Code: 201,
		Data: gin.H{
			"token":          token,
			"expirationTime": expiry,
		},
	})
}

// PurgeCache deletes every cached result of one namespace
// DELETE /api/admin/cache/:namespace
func (h *AdminHandler) PurgeCache(c *gin.Context) {
	namespace := c.Param("namespace")
	valid := false
	for _, ns := range shaping.Namespaces() {
		if ns == namespace {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusNotFound, model.APIResponse{
			Code:  404,
			Error: "Unknown namespace",
			Data:  shaping.Namespaces(),
		})
		return
	}

	deleted, err := h.cache.DeletePattern(c.Request.Context(), shaping.CachePattern(namespace))
	if err != nil {
		log.Error().Err(err).Str("namespace", namespace).Msg("Failed to purge cache")
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:  500,
			Error: "Internal server error",
		})
		return
	}

	log.Info().Str("namespace", namespace).Int64("keys", deleted).Msg("Cache purged")
	c.JSON(http.StatusOK, model.APIResponse{
		Code:    200,
		Message: "Cache purged",
		Data:    gin.H{"namespace": namespace, "deleted": deleted},
	})
}
