// Package router dispatches the admin surface's fixed paths over
// fasthttp. Routes are exact-match; an unknown method on a known path
// answers 405 with an Allow header.
package router

import (
	"sort"
	"strings"

	"github.com/valyala/fasthttp"
)

// Router maps method+path pairs to handlers.
type Router struct {
	paths    map[string]map[string]fasthttp.RequestHandler
	notFound fasthttp.RequestHandler
}

// New constructs an empty router.
func New() *Router {
	return &Router{paths: make(map[string]map[string]fasthttp.RequestHandler)}
}

// GET registers a GET handler for path.
func (r *Router) GET(path string, h fasthttp.RequestHandler) {
	r.add(fasthttp.MethodGet, path, h)
}

// POST registers a POST handler for path.
func (r *Router) POST(path string, h fasthttp.RequestHandler) {
	r.add(fasthttp.MethodPost, path, h)
}

// DELETE registers a DELETE handler for path.
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) {
	r.add(fasthttp.MethodDelete, path, h)
}

// NotFound sets the handler for unknown paths.
func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

// Handler is the fasthttp entry point.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	methods, ok := r.paths[string(ctx.Path())]
	if !ok {
		if r.notFound != nil {
			r.notFound(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	h, ok := methods[string(ctx.Method())]
	if !ok {
		ctx.Response.Header.Set(fasthttp.HeaderAllow, allowed(methods))
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	h(ctx)
}

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	m, ok := r.paths[path]
	if !ok {
		m = make(map[string]fasthttp.RequestHandler)
		r.paths[path] = m
	}
	m[method] = h
}

func allowed(methods map[string]fasthttp.RequestHandler) string {
	names := make([]string, 0, len(methods))
	for m := range methods {
		names = append(names, m)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
