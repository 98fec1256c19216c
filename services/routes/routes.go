package routes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"feedroutes/lib/feed"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("feedroutes/services/routes")

var (
	ErrUnknownRoute  = errors.New("unknown route")
	ErrMissingParam  = errors.New("missing required parameter")
	ErrTooManyParams = errors.New("too many parameters")
	ErrInvalidItem   = errors.New("route produced an invalid item")
)

type Param struct {
	Name        string
	Description string
	// Default is used when an optional parameter is absent.
	Default  string
	Optional bool
}

type Handler func(ctx context.Context, params map[string]string) (feed.Feed, error)

type Route struct {
	// Name is the route's path prefix, for example "nga/post2".
	Name    string
	Title   string
	Example string
	Params  []Param
	Handler Handler
}

// Path is the route's path pattern with its parameters, optional ones are
// suffixed with "?".
func (r Route) Path() string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(r.Name)
	for _, p := range r.Params {
		sb.WriteString("/:")
		sb.WriteString(p.Name)
		if p.Optional {
			sb.WriteString("?")
		}
	}
	return sb.String()
}

func (r Route) resolveParams(params map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(r.Params))
	for _, p := range r.Params {
		value := strings.TrimSpace(params[p.Name])
		if value == "" {
			if !p.Optional {
				return nil, fmt.Errorf("%w: %s", ErrMissingParam, p.Name)
			}
			value = p.Default
		}
		out[p.Name] = value
	}
	return out, nil
}

// Run executes the route with params, absent optional parameters take their
// defaults.
func (r Route) Run(ctx context.Context, params map[string]string) (feed.Feed, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	span.SetAttributes(attribute.String("route", r.Name))

	fail := func(err error) (feed.Feed, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}

	resolved, err := r.resolveParams(params)
	if err != nil {
		return fail(err)
	}
	out, err := r.Handler(ctx, resolved)
	if err != nil {
		return fail(err)
	}
	for _, item := range out.Items {
		err = item.Validate()
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrInvalidItem, err))
		}
	}
	span.SetAttributes(attribute.Int("items", len(out.Items)))
	return out, nil
}

type Registry struct {
	routes map[string]Route
}

func NewRegistry(routes ...Route) Registry {
	r := Registry{routes: make(map[string]Route, len(routes))}
	for _, route := range routes {
		r.routes[route.Name] = route
	}
	return r
}

func (r Registry) Lookup(name string) (Route, bool) {
	route, ok := r.routes[strings.Trim(name, "/")]
	return route, ok
}

// Routes returns every route sorted by name.
func (r Registry) Routes() []Route {
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Match finds the route named by the longest prefix of path and assigns
// the remaining segments to its parameters in order.
func (r Registry) Match(path string) (Route, map[string]string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for n := len(segments); n > 0; n-- {
		route, ok := r.routes[strings.Join(segments[:n], "/")]
		if !ok {
			continue
		}
		rest := segments[n:]
		if len(rest) > len(route.Params) {
			return Route{}, nil, fmt.Errorf("%w: %s takes at most %d", ErrTooManyParams, route.Name, len(route.Params))
		}
		params := make(map[string]string, len(rest))
		for i, value := range rest {
			params[route.Params[i].Name] = value
		}
		return route, params, nil
	}
	return Route{}, nil, fmt.Errorf("%w: %s", ErrUnknownRoute, path)
}
