package router

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, path string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	r.Handler(&ctx)
	return &ctx
}

func TestRouterDispatchesByMethodAndPath(t *testing.T) {
	r := New()
	var hits []string
	r.GET("/v1/types", func(ctx *fasthttp.RequestCtx) { hits = append(hits, "get") })
	r.POST("/v1/edges", func(ctx *fasthttp.RequestCtx) { hits = append(hits, "post") })
	r.DELETE("/v1/edges", func(ctx *fasthttp.RequestCtx) { hits = append(hits, "delete") })

	serve(r, fasthttp.MethodGet, "/v1/types")
	serve(r, fasthttp.MethodPost, "/v1/edges")
	serve(r, fasthttp.MethodDelete, "/v1/edges")
	if len(hits) != 3 || hits[0] != "get" || hits[1] != "post" || hits[2] != "delete" {
		t.Fatalf("dispatch order: %v", hits)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := New()
	r.POST("/v1/edges", func(ctx *fasthttp.RequestCtx) {})
	r.DELETE("/v1/edges", func(ctx *fasthttp.RequestCtx) {})

	ctx := serve(r, fasthttp.MethodGet, "/v1/edges")
	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek(fasthttp.HeaderAllow)); got != "DELETE, POST" {
		t.Fatalf("Allow = %q", got)
	}
}

func TestRouterNotFound(t *testing.T) {
	r := New()
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {})

	ctx := serve(r, fasthttp.MethodGet, "/nope")
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("default status = %d, want 404", ctx.Response.StatusCode())
	}

	var custom bool
	r.NotFound(func(ctx *fasthttp.RequestCtx) { custom = true })
	serve(r, fasthttp.MethodGet, "/nope")
	if !custom {
		t.Fatalf("custom not-found handler not invoked")
	}
}
