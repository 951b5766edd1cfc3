// Package authz carries the authenticated actor through request contexts.
// Authentication itself happens upstream; the identity proxy forwards the
// verified user in trusted headers.
package authz

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Header names set by the upstream identity proxy.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID int64
	Role   string
}

// Privileged reports whether the actor may perform operator actions.
func (a Actor) Privileged() bool {
	return a.Role == queries.RoleSupervisor || a.Role == queries.RoleAdmin
}

type contextKey struct{}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext returns the request actor, or false when the request was
// anonymous.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}

// ActorFromHeaders parses the identity proxy headers. A request without them
// is anonymous, not an error.
func ActorFromHeaders(r *http.Request) (Actor, bool) {
	rawID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if rawID == "" {
		return Actor{}, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, false
	}
	role := strings.TrimSpace(r.Header.Get(HeaderRole))
	if role == "" {
		role = queries.RoleUser
	}
	return Actor{UserID: id, Role: role}, true
}

// RequireActor returns the actor or ErrUnauthenticated.
func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// RequirePrivileged returns the actor if it may perform operator actions.
func RequirePrivileged(ctx context.Context) (Actor, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return Actor{}, err
	}
	if !actor.Privileged() {
		return Actor{}, ErrForbidden
	}
	return actor, nil
}
