// Package graph serves the read side of the matching engine over GraphQL:
// matches and candidates queries plus the matchCreated subscription.
package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// ProfileLoadFunc starts loading a profile and returns a thunk that waits
// for it. Loads started before the first thunk runs are batched together.
type ProfileLoadFunc func(ctx context.Context, id uuid.UUID) func() (*matching.Profile, error)

// Resolver holds the dependencies of the GraphQL schema.
type Resolver struct {
	Engine        *matching.Engine
	Subscriptions *SubscriptionManager
	LoadProfile   ProfileLoadFunc

	log zerolog.Logger
}

func NewResolver(eng *matching.Engine, subs *SubscriptionManager, load ProfileLoadFunc) *Resolver {
	return &Resolver{
		Engine:        eng,
		Subscriptions: subs,
		LoadProfile:   load,
		log:           logging.Component("graphql"),
	}
}

type contextKey string

const userIDKey contextKey = "userID"

// WithUser marks ctx as authenticated for id.
func WithUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserFromContext returns the authenticated viewer, if any.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

var errUnauthenticated = errors.New("authentication required")

// Error codes in the "code" extension of GraphQL errors.
const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeBadInput        = "BAD_USER_INPUT"
	codeNotFound        = "NOT_FOUND"
	codeUnavailable     = "UNAVAILABLE"
	codeInternal        = "INTERNAL"
)

// toGQLError maps engine errors onto GraphQL errors at path. Unexpected
// errors are logged and reported without detail.
func (r *Resolver) toGQLError(path ast.Path, err error) *gqlerror.Error {
	gerr := &gqlerror.Error{Err: err, Message: err.Error(), Path: path}
	var verr *matching.ValidationError
	switch {
	case errors.Is(err, errUnauthenticated):
		gerr.Extensions = map[string]any{"code": codeUnauthenticated}
	case errors.As(err, &verr):
		gerr.Extensions = map[string]any{"code": codeBadInput, "field": verr.Field}
	case errors.Is(err, matching.ErrNotFound):
		gerr.Extensions = map[string]any{"code": codeNotFound}
	case errors.Is(err, matching.ErrStoreUnavailable):
		gerr.Message = "store unavailable"
		gerr.Extensions = map[string]any{"code": codeUnavailable}
	default:
		r.log.Error().Err(err).Str("path", path.String()).Msg("resolver failed")
		gerr.Message = "internal error"
		gerr.Extensions = map[string]any{"code": codeInternal}
	}
	return gerr
}
