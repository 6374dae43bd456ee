package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/internal/middleware"
	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (models.Actor, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	return claims.Actor(), nil
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" parameter")
	}
	return value, nil
}

func withMeta(c *gin.Context, cacheHit bool) map[string]interface{} {
	meta := middleware.MetaFor(c)
	meta.SetCacheHit(cacheHit)
	return meta.Map()
}
