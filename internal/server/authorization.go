package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
)

type ActorType string

const (
	ActorUser   ActorType = obscontext.ActorTypeUser
	ActorSystem ActorType = obscontext.ActorTypeSystem
)

type Actor struct {
	Type ActorType
	ID   string
	Role string
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.subject(), actor.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil {
		return Actor{}, false
	}
	v, ok := c.Get(contextActorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}

func (a Actor) subject() string {
	switch a.Type {
	case ActorUser:
		return "user:" + a.ID
	case ActorSystem:
		return "system"
	default:
		return ""
	}
}

// appliedBy is the actor recorded on history entries and rule updates.
func (a Actor) appliedBy() string {
	if a.Type == ActorUser && strings.TrimSpace(a.ID) != "" {
		return a.ID
	}
	return auditdomain.AppliedBySystem
}

func currentActor(c *gin.Context) Actor {
	actor, ok := actorFromContext(c)
	if !ok {
		return Actor{Type: ActorSystem, ID: "system"}
	}
	return actor
}
