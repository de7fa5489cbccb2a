package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// Principal is the authenticated identity attached to a request's
// context on a successful Bearer-token match.
type Principal struct {
	APIKeyID    int
	Description string
}

const principalContextKey = "auth_principal"

// Authenticator validates the Authorization header against the active
// api_keys rows. Every failure mode yields the same generic 401; the
// distinction between unknown and inactive keys lives in the logs only.
type Authenticator struct {
	database *db.Database
}

// NewAuthenticator builds an Authenticator bound to the given database.
func NewAuthenticator(database *db.Database) *Authenticator {
	return &Authenticator{database: database}
}

// RequireBearer returns Gin middleware enforcing Bearer-token auth.
func (a *Authenticator) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			unauthorized(c)
			return
		}

		key := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		if err := ValidateKeyFormat(key); err != nil {
			unauthorized(c)
			return
		}

		keys, err := db.ListActiveAPIKeys(c.Request.Context(), a.database)
		if err != nil {
			logger.HTTP().Error().Err(err).Msg("failed to load active api keys")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "storage",
				"message": "internal error",
			})
			return
		}

		for _, k := range keys {
			if CompareAPIKey(key, k.KeyHash) {
				principal := Principal{APIKeyID: k.ID, Description: k.Description}
				c.Set(principalContextKey, principal)

				// Fire-and-forget: never block or fail the request on this write.
				go func(id int) {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := db.TouchAPIKeyLastUsed(ctx, a.database, id); err != nil {
						logger.HTTP().Warn().Err(err).Int("api_key_id", id).Msg("failed to update last_used_at")
					}
				}(k.ID)

				c.Next()
				return
			}
		}

		unauthorized(c)
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "authentication",
		"message": "invalid or missing API key",
	})
}

// GetPrincipal retrieves the authenticated principal from a request
// context previously passed through RequireBearer.
func GetPrincipal(c *gin.Context) (Principal, bool) {
	v, exists := c.Get(principalContextKey)
	if !exists {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
