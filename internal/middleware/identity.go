package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/pkg/cryptoutil"
)

const clientKey = "shaping_client"

// KeyLookup reports whether an API key has been issued.
type KeyLookup interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// ClientIdentity resolves the caller's rate-limit tier from the x-api-key
// header or apiKey query parameter. No key means the anonymous tier. A key
// is accepted when it is a valid unexpired signed token (only when
// tokenSecret is set) or when keys knows it; anything else gets a 401.
func ClientIdentity(keys KeyLookup, tokenSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := shaping.Client{Tier: shaping.TierAnonymous}
		client.Address, client.Port = remoteAddr(c)

		apiKey := c.GetHeader("x-api-key")
		if apiKey == "" {
			apiKey = c.Query("apiKey")
		}

		if apiKey != "" {
			ok, err := recognized(c.Request.Context(), keys, tokenSecret, apiKey)
			if err != nil {
				log.Error().Err(err).Msg("API key lookup failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, model.APIResponse{
					Code:  http.StatusInternalServerError,
					Error: "Internal server error",
				})
				return
			}
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, model.APIResponse{
					Code:  http.StatusUnauthorized,
					Error: "Invalid API key",
				})
				return
			}
			client.Tier = shaping.TierKeyed
		}

		c.Set(clientKey, client)
		c.Next()
	}
}

func recognized(ctx context.Context, keys KeyLookup, tokenSecret, apiKey string) (bool, error) {
	if tokenSecret != "" && cryptoutil.LooksLikeToken(apiKey) {
		claims, err := cryptoutil.VerifyFreshToken(apiKey, tokenSecret, time.Now())
		if errors.Is(err, cryptoutil.ErrTokenExpired) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if claims != nil {
			return true, nil
		}
	}
	if keys == nil {
		return false, nil
	}
	return keys.Exists(ctx, apiKey)
}

// remoteAddr returns the client address and the port of the connection.
func remoteAddr(c *gin.Context) (string, string) {
	_, port, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		port = ""
	}
	return c.ClientIP(), port
}

// ClientFrom returns the identity stored by ClientIdentity, or an anonymous
// client built from the connection when the middleware did not run.
func ClientFrom(c *gin.Context) shaping.Client {
	if v, ok := c.Get(clientKey); ok {
		if client, ok := v.(shaping.Client); ok {
			return client
		}
	}
	address, port := remoteAddr(c)
	return shaping.Client{Address: address, Port: port, Tier: shaping.TierAnonymous}
}
