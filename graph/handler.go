package graph

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HandlerConfig wires request authentication into the GraphQL endpoint.
type HandlerConfig struct {
	// UserFromRequest authenticates POST requests and websocket upgrades.
	UserFromRequest func(*http.Request) (uuid.UUID, bool)
	// UserFromToken authenticates the connection_init payload of a
	// websocket that was upgraded without credentials.
	UserFromToken func(string) (uuid.UUID, bool)
	CheckOrigin   func(*http.Request) bool
	// ComplexityLimit rejects operations above it; zero disables the check.
	ComplexityLimit int
}

// NewHandler serves queries over POST and subscriptions over websockets
// speaking graphql-transport-ws or the older graphql-ws protocol.
func NewHandler(r *Resolver, cfg HandlerConfig) http.Handler {
	srv := handler.New(NewExecutableSchema(r))
	srv.AddTransport(transport.Websocket{
		Upgrader: websocket.Upgrader{
			CheckOrigin:  cfg.CheckOrigin,
			Subprotocols: []string{"graphql-transport-ws", "graphql-ws"},
		},
		KeepAlivePingInterval: 10 * time.Second,
		InitFunc: func(ctx context.Context, payload transport.InitPayload) (context.Context, *transport.InitPayload, error) {
			if _, ok := UserFromContext(ctx); ok {
				return ctx, &payload, nil
			}
			id, ok := cfg.UserFromToken(strings.TrimPrefix(payload.Authorization(), "Bearer "))
			if !ok {
				return ctx, nil, errUnauthenticated
			}
			return WithUser(ctx, id), &payload, nil
		},
	})
	srv.AddTransport(transport.POST{})
	if cfg.ComplexityLimit > 0 {
		srv.Use(extension.FixedComplexityLimit(cfg.ComplexityLimit))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id, ok := cfg.UserFromRequest(req); ok {
			req = req.WithContext(WithUser(req.Context(), id))
		}
		srv.ServeHTTP(w, req)
	})
}
