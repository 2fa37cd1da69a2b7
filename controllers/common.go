package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/models"
)

// actor is the authenticated (or anonymous, zero-valued) caller of a request.
type actor struct {
	ID       uint
	Username string
	Role     string
}

func (a actor) anonymous() bool { return a.ID == 0 }

// currentActor reads the actor injected by the auth middleware. With
// OptionalAuth the returned actor may be anonymous.
func currentActor(ctx *gin.Context) actor {
	var a actor
	if v, ok := ctx.Get(middleware.ContextUserIDKey); ok {
		switch id := v.(type) {
		case uint:
			a.ID = id
		case int:
			a.ID = uint(id)
		case float64:
			a.ID = uint(id)
		}
	}
	if v, ok := ctx.Get(middleware.ContextUsernameKey); ok {
		a.Username, _ = v.(string)
	}
	if v, ok := ctx.Get(middleware.ContextRoleKey); ok {
		a.Role, _ = v.(string)
	}
	return a
}

func (a actor) isAdmin() bool { return models.IsAdmin(a.Role) }

// slugify lowercases a name and collapses non-alphanumeric runs into dashes.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
