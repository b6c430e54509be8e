package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/middleware"
	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/service"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/internal/validation"
)

// serve runs call through the shaper for the requesting client and writes the
// standard envelope.
func serve[T any](c *gin.Context, s *shaping.Shaper, call shaping.Call[T]) {
	c.Set("namespace", call.Op.Namespace())
	data, source, err := shaping.Handle(c.Request.Context(), s, middleware.ClientFrom(c), call)
	if err != nil {
		writeError(c, call.Op, err)
		return
	}

	c.Set("cache_source", source)
	c.JSON(http.StatusOK, model.APIResponse{
		Code:   200,
		Data:   data,
		Source: source,
	})
}

func writeError(c *gin.Context, op shaping.Operation, err error) {
	if errors.Is(err, shaping.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, model.APIResponse{
			Code:  429,
			Error: "Rate limit exceeded",
		})
		return
	}

	if errors.Is(err, service.ErrEncodedIDRequired) {
		c.JSON(http.StatusBadRequest, model.APIResponse{
			Code:  400,
			Error: "Invalid episode id",
		})
		return
	}

	var ve *validation.RequestValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusUnprocessableEntity, model.APIResponse{
			Code:   422,
			Error:  "Upstream response failed validation",
			Issues: ve.Issues(),
		})
		return
	}

	log.Error().Err(err).Str("op", op.String()).Str("path", c.Request.URL.Path).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, model.APIResponse{
		Code:  500,
		Error: "Internal server error",
	})
}

func badRequest(c *gin.Context, err error) {
	resp := model.APIResponse{Code: 400, Error: err.Error()}
	var ve *validation.RequestValidationError
	if errors.As(err, &ve) {
		resp.Error = "Invalid request"
		resp.Issues = ve.Issues()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// pathParam returns a required, non-blank path parameter.
func pathParam(c *gin.Context, name string) (string, bool) {
	v := strings.TrimSpace(c.Param(name))
	if err := validation.ValidateVar(name, v, "required"); err != nil {
		badRequest(c, err)
		return "", false
	}
	return v, true
}

// intQuery reads an optional positive integer query parameter.
func intQuery(c *gin.Context, name string, def, max int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		if verr := validation.ValidateVar(name, raw, "number"); verr != nil {
			err = verr
		}
		badRequest(c, err)
		return 0, false
	}
	if err := validation.ValidateVar(name, n, "gte=1,lte="+strconv.Itoa(max)); err != nil {
		badRequest(c, err)
		return 0, false
	}
	return n, true
}
