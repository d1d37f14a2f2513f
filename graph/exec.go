package graph

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/99designs/gqlgen/graphql"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

//go:embed schema.graphqls
var schemaSDL string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSDL})

// defaultPageCost prices a candidates page when pageSize is not given.
const defaultPageCost = 20

// NewExecutableSchema binds r to the schema for the gqlgen handler.
func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolver: r}
}

type executableSchema struct {
	resolver *Resolver
}

func (e *executableSchema) Schema() *ast.Schema { return parsedSchema }

// Complexity charges list fields per element so the limit bounds page sizes.
func (e *executableSchema) Complexity(_ context.Context, typeName, field string, childComplexity int, args map[string]any) (int, bool) {
	if typeName == "Query" && field == "candidates" {
		size, ok := intArg(args["pageSize"])
		if !ok || size <= 0 {
			size = defaultPageCost
		}
		return 1 + childComplexity*size, true
	}
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	switch opCtx.Operation.Operation {
	case ast.Query:
		first := true
		return func(ctx context.Context) *graphql.Response {
			if !first {
				return nil
			}
			first = false
			ec := &executionContext{op: opCtx, resolver: e.resolver}
			data := ec.query(ctx, opCtx.Operation.SelectionSet)
			return ec.response(data)
		}
	case ast.Subscription:
		return e.subscribe(ctx, opCtx)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

// subscribe registers the viewer before returning so no event published
// after the subscribe message is missed.
func (e *executableSchema) subscribe(ctx context.Context, opCtx *graphql.OperationContext) graphql.ResponseHandler {
	fields := graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 || fields[0].Name != "matchCreated" {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "subscriptions take exactly one field"))
	}
	field := fields[0]
	path := ast.Path{ast.PathName(field.Alias)}

	viewer, ok := UserFromContext(ctx)
	if !ok {
		return graphql.OneShot(&graphql.Response{
			Errors: gqlerror.List{e.resolver.toGQLError(path, errUnauthenticated)},
		})
	}

	matches, cleanup := e.resolver.Subscriptions.SubscribeToMatches(viewer)
	context.AfterFunc(ctx, cleanup)

	return func(ctx context.Context) *graphql.Response {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-matches:
			if !ok {
				return nil
			}
			ec := &executionContext{op: opCtx, resolver: e.resolver}
			data := object{{field.Alias, ec.matchEvent(ctx, field.Selections, path, evt)}}
			return ec.response(data)
		}
	}
}

// object is a selection result that marshals with its keys in query order.
type object []objectField

type objectField struct {
	key   string
	value any
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// deferred is a field whose value waits on a batched load. Every deferred
// field of a response is started before any of them is awaited.
type deferred struct {
	path ast.Path
	wait func() (any, error)
}

type executionContext struct {
	op       *graphql.OperationContext
	resolver *Resolver
	errs     gqlerror.List
}

func (ec *executionContext) fail(path ast.Path, err error) {
	ec.errs = append(ec.errs, ec.resolver.toGQLError(path, err))
}

// response waits on every deferred field and encodes the result.
func (ec *executionContext) response(data object) *graphql.Response {
	settled := ec.settle(data)
	raw, err := json.Marshal(settled)
	if err != nil {
		return &graphql.Response{Errors: append(ec.errs, gqlerror.Errorf("encode response: %v", err))}
	}
	return &graphql.Response{Data: raw, Errors: ec.errs}
}

func (ec *executionContext) settle(v any) any {
	switch v := v.(type) {
	case object:
		for i := range v {
			v[i].value = ec.settle(v[i].value)
		}
		return v
	case []any:
		for i := range v {
			v[i] = ec.settle(v[i])
		}
		return v
	case *deferred:
		res, err := v.wait()
		if err != nil {
			ec.fail(v.path, err)
			return nil
		}
		return ec.settle(res)
	}
	return v
}

func at(path ast.Path, elem ast.PathElement) ast.Path {
	return append(path[:len(path):len(path)], elem)
}

func (ec *executionContext) query(ctx context.Context, sel ast.SelectionSet) object {
	fields := graphql.CollectFields(ec.op, sel, []string{"Query"})
	out := make(object, 0, len(fields))
	for _, f := range fields {
		path := ast.Path{ast.PathName(f.Alias)}
		var (
			v   any
			err error
		)
		switch f.Name {
		case "__typename":
			v = "Query"
		case "__schema", "__type":
			err = errors.New("introspection disabled")
		case "matches":
			v, err = ec.matches(ctx, f.Selections, path)
		case "candidates":
			v, err = ec.candidates(ctx, f.ArgumentMap(ec.op.Variables), f.Selections, path)
		case "quota":
			v, err = ec.quota(ctx, f.Selections)
		default:
			err = fmt.Errorf("unknown field %q", f.Name)
		}
		if err != nil {
			ec.fail(path, err)
			v = nil
		}
		out = append(out, objectField{f.Alias, v})
	}
	return out
}

func (ec *executionContext) viewer(ctx context.Context) (uuid.UUID, error) {
	id, ok := UserFromContext(ctx)
	if !ok {
		return uuid.Nil, errUnauthenticated
	}
	return id, nil
}

func (ec *executionContext) matches(ctx context.Context, sel ast.SelectionSet, path ast.Path) (any, error) {
	viewer, err := ec.viewer(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := ec.resolver.Engine.ListMatches(ctx, viewer)
	if err != nil {
		return nil, err
	}
	now := ec.resolver.Engine.Now()
	out := make([]any, len(matches))
	for i, m := range matches {
		itemPath := at(path, ast.PathIndex(i))
		fields := graphql.CollectFields(ec.op, sel, []string{"Match"})
		obj := make(object, 0, len(fields))
		for _, f := range fields {
			var v any
			switch f.Name {
			case "__typename":
				v = "Match"
			case "id":
				v = m.ID.String()
			case "createdAt":
				v = formatTime(m.CreatedAt)
			case "partner":
				v = ec.partner(ctx, f.Selections, at(itemPath, ast.PathName(f.Alias)), m.Counterpart(viewer), now)
			}
			obj = append(obj, objectField{f.Alias, v})
		}
		out[i] = obj
	}
	return out, nil
}

// partner starts the profile load now and resolves it when the response
// settles. A deleted partner resolves to null.
func (ec *executionContext) partner(ctx context.Context, sel ast.SelectionSet, path ast.Path, id uuid.UUID, now time.Time) *deferred {
	thunk := ec.resolver.LoadProfile(ctx, id)
	return &deferred{path: path, wait: func() (any, error) {
		p, err := thunk()
		if errors.Is(err, matching.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return ec.profile(sel, p, now), nil
	}}
}

func (ec *executionContext) profile(sel ast.SelectionSet, p *matching.Profile, now time.Time) object {
	fields := graphql.CollectFields(ec.op, sel, []string{"Profile"})
	out := make(object, 0, len(fields))
	for _, f := range fields {
		var v any
		switch f.Name {
		case "__typename":
			v = "Profile"
		case "id":
			v = p.ID.String()
		case "displayName":
			v = p.DisplayName
		case "age":
			v = matching.AgeOn(p.BirthDate, now)
		case "gender":
			v = string(p.Gender)
		}
		out = append(out, objectField{f.Alias, v})
	}
	return out
}

func (ec *executionContext) candidates(ctx context.Context, args map[string]any, sel ast.SelectionSet, path ast.Path) (any, error) {
	viewer, err := ec.viewer(ctx)
	if err != nil {
		return nil, err
	}
	page, ok := intArg(args["page"])
	if !ok {
		page = 1
	}
	pageSize, _ := intArg(args["pageSize"])

	found, err := ec.resolver.Engine.DiscoverCandidates(ctx, viewer, page, pageSize)
	if err != nil {
		return nil, err
	}
	fields := graphql.CollectFields(ec.op, sel, []string{"Candidate"})
	out := make([]any, len(found))
	for i, c := range found {
		obj := make(object, 0, len(fields))
		for _, f := range fields {
			var v any
			switch f.Name {
			case "__typename":
				v = "Candidate"
			case "id":
				v = c.ID.String()
			case "displayName":
				v = c.DisplayName
			case "age":
				v = c.Age
			case "gender":
				v = string(c.Gender)
			case "distanceKm":
				v = c.DistanceKm
			case "boosted":
				v = c.Boosted
			}
			obj = append(obj, objectField{f.Alias, v})
		}
		out[i] = obj
	}
	return out, nil
}

func (ec *executionContext) quota(ctx context.Context, sel ast.SelectionSet) (any, error) {
	viewer, err := ec.viewer(ctx)
	if err != nil {
		return nil, err
	}
	status, err := ec.resolver.Engine.QuotaStatus(ctx, viewer)
	if err != nil {
		return nil, err
	}
	usage := func(sel ast.SelectionSet, u matching.QuotaUsage) object {
		fields := graphql.CollectFields(ec.op, sel, []string{"QuotaUsage"})
		out := make(object, 0, len(fields))
		for _, f := range fields {
			var v any
			switch f.Name {
			case "__typename":
				v = "QuotaUsage"
			case "used":
				v = u.Used
			case "limit":
				if !u.Unlimited {
					v = u.Limit
				}
			case "unlimited":
				v = u.Unlimited
			}
			out = append(out, objectField{f.Alias, v})
		}
		return out
	}

	fields := graphql.CollectFields(ec.op, sel, []string{"Quota"})
	out := make(object, 0, len(fields))
	for _, f := range fields {
		var v any
		switch f.Name {
		case "__typename":
			v = "Quota"
		case "plan":
			v = string(status.Plan)
		case "swipes":
			v = usage(f.Selections, status.Swipes)
		case "messages":
			v = usage(f.Selections, status.Messages)
		}
		out = append(out, objectField{f.Alias, v})
	}
	return out, nil
}

func (ec *executionContext) matchEvent(ctx context.Context, sel ast.SelectionSet, path ast.Path, evt *MatchEvent) object {
	now := ec.resolver.Engine.Now()
	fields := graphql.CollectFields(ec.op, sel, []string{"MatchEvent"})
	out := make(object, 0, len(fields))
	for _, f := range fields {
		var v any
		switch f.Name {
		case "__typename":
			v = "MatchEvent"
		case "matchId":
			v = evt.MatchID.String()
		case "createdAt":
			v = formatTime(evt.CreatedAt)
		case "partner":
			v = ec.partner(ctx, f.Selections, at(path, ast.PathName(f.Alias)), evt.PartnerID, now)
		}
		out = append(out, objectField{f.Alias, v})
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// intArg reads an Int argument. Literals arrive as int64, variables as
// whatever the transport decoded.
func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return intArg(i)
	}
	return 0, false
}
