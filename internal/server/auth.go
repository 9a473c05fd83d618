package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
)

const contextActorKey = "actor"

// accessClaims is the operator bearer token. sub carries the user id.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate resolves the caller from an HS256 bearer token. Without a
// configured secret every request runs as the system actor.
func (s *Server) Authenticate() gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(s.cfg.AuthJWTSecret))
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
	)

	return func(c *gin.Context) {
		if len(secret) == 0 {
			setActor(c, Actor{Type: ActorSystem, ID: "system"})
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims := &accessClaims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		subject, err := claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		setActor(c, Actor{Type: ActorUser, ID: strings.TrimSpace(subject), Role: claims.Role})
		c.Next()
	}
}

func setActor(c *gin.Context, actor Actor) {
	c.Set(contextActorKey, actor)
	ctx := obscontext.WithActor(c.Request.Context(), string(actor.Type), actor.ID)
	c.Request = c.Request.WithContext(ctx)
}
