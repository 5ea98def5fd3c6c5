package app

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/aurodev/usergrid/internal/audit"
	"github.com/aurodev/usergrid/pkg/config/banner"
	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/index/weaviate"
	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/pipeline"
	"github.com/aurodev/usergrid/pkg/pipeline/cursor"
	"github.com/aurodev/usergrid/pkg/pipeline/search"
	"github.com/aurodev/usergrid/pkg/router"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/keys"
	"github.com/aurodev/usergrid/pkg/store/metadata"
	"github.com/aurodev/usergrid/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		_, _ = ctx.WriteString(`{"error":"encode response"}`)
		return
	}
	_, _ = ctx.Write(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// healthzHandlerFast handles the /healthz endpoint.
func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.WriteString(`{"status":"ok"}`)
}

// readyzHandlerFast handles the /readyz endpoint.
func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	if !store.Ready() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		_, _ = ctx.WriteString(`{"status":"not ready"}`)
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	_, _ = ctx.WriteString(`{"status":"ok","version":"` + ver + `"}`)
}

type edgeRequest struct {
	Application models.Id `json:"application"`
	Source      models.Id `json:"source"`
	Type        string    `json:"type"`
	Target      models.Id `json:"target"`
	Version     uuid.UUID `json:"version"`
}

// writeEdgeHandler creates a new edge (fresh version unless one is
// supplied) and writes both edge rows plus the type-discovery columns.
func (a *App) writeEdgeHandler(ctx *fasthttp.RequestCtx) {
	var req edgeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	edge := models.Edge{Source: req.Source, Target: req.Target, Type: req.Type, Version: req.Version}
	if edge.Version == uuid.Nil {
		edge = models.NewEdge(req.Source, req.Type, req.Target)
	}
	scope := models.NewApplicationScope(req.Application)
	if err := metadata.ApplyEdgeWrite(scope, edge, true); err != nil {
		if errors.Is(err, metadata.ErrIndexWrite) {
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, edge)
}

// removeEdgeHandler deletes both rows of an existing edge version.
func (a *App) removeEdgeHandler(ctx *fasthttp.RequestCtx) {
	var req edgeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	if req.Version == uuid.Nil {
		writeError(ctx, fasthttp.StatusBadRequest, "version required")
		return
	}
	edge := models.Edge{Source: req.Source, Target: req.Target, Type: req.Type, Version: req.Version}
	scope := models.NewApplicationScope(req.Application)
	if err := metadata.ApplyEdgeRemove(scope, edge, true); err != nil {
		if errors.Is(err, metadata.ErrIndexWrite) {
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "removed"})
}

type indexRequest struct {
	Application models.Id              `json:"application"`
	Entity      models.Id              `json:"entity"`
	Version     uuid.UUID              `json:"version"`
	Node        models.Id              `json:"node"`
	Name        string                 `json:"name"`
	Direction   string                 `json:"direction"`
	Content     string                 `json:"content"`
	Properties  map[string]interface{} `json:"properties"`
}

func parseIndexDirection(s string) (index.Direction, error) {
	switch s {
	case "", "src":
		return index.FromSource, nil
	case "tgt":
		return index.ToTarget, nil
	}
	return 0, errors.New("direction must be src or tgt")
}

// indexEntityHandler writes one entity document into the search index
// under the named edge.
func (a *App) indexEntityHandler(ctx *fasthttp.RequestCtx) {
	var req indexRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Entity.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "entity: "+err.Error())
		return
	}
	if err := req.Node.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "node: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "name required")
		return
	}
	dir, err := parseIndexDirection(req.Direction)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	version := req.Version
	if version == uuid.Nil {
		version = uuid.Must(uuid.NewV7())
	}
	edge := index.SearchEdge{Node: req.Node, Name: req.Name, Direction: dir}
	if a.wvIdx != nil {
		doc := weaviateDocument(req, version, edge)
		if _, err := a.wvIdx.IndexDocuments(ctx, []weaviate.Document{doc}); err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
	} else {
		a.memIdx.Add(req.Entity, version, edge, req.Content)
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{
		"entity":  req.Entity.String(),
		"version": version.String(),
	})
}

func weaviateDocument(req indexRequest, version uuid.UUID, edge index.SearchEdge) weaviate.Document {
	return weaviate.Document{
		Entity:      req.Entity,
		Version:     version,
		Application: req.Application,
		Edge:        edge,
		Content:     req.Content,
		Properties:  req.Properties,
	}
}

// deindexEntityHandler removes entity documents from the search index.
// With an edge named it removes that document only; without one it
// removes every document of the entity.
func (a *App) deindexEntityHandler(ctx *fasthttp.RequestCtx) {
	var req indexRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	if req.Entity == (models.Id{}) {
		if req.Application.Validate() != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "entity or application required")
			return
		}
		if a.wvIdx == nil {
			writeError(ctx, fasthttp.StatusBadRequest, "application deindex requires the weaviate backend")
			return
		}
		if err := a.wvIdx.DeindexApplication(ctx, req.Application); err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "removed"})
		return
	}
	if err := req.Entity.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "entity: "+err.Error())
		return
	}
	if req.Node == (models.Id{}) && req.Name == "" {
		if a.wvIdx != nil {
			if err := a.wvIdx.DeindexEntity(ctx, req.Entity); err != nil {
				writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
				return
			}
		} else {
			a.memIdx.RemoveEntity(req.Entity)
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "removed"})
		return
	}
	if err := req.Node.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "node: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "name required")
		return
	}
	dir, err := parseIndexDirection(req.Direction)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	edge := index.SearchEdge{Node: req.Node, Name: req.Name, Direction: dir}
	if a.wvIdx != nil {
		if err := a.wvIdx.DeindexEdge(ctx, req.Entity, edge); err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
	} else {
		a.memIdx.Remove(req.Entity, edge)
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "removed"})
}

// typesHandler pages through the type-discovery columns of a node.
// Query args: app, node, direction (src|tgt), kind (et|it), edge_type
// (it only), last, limit.
func (a *App) typesHandler(ctx *fasthttp.RequestCtx) {
	app, err := models.ParseId(string(ctx.QueryArgs().Peek("app")))
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid app id")
		return
	}
	node, err := models.ParseId(string(ctx.QueryArgs().Peek("node")))
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid node id")
		return
	}
	scope := models.NewApplicationScope(app)
	direction := string(ctx.QueryArgs().Peek("direction"))
	kind := string(ctx.QueryArgs().Peek("kind"))
	last := string(ctx.QueryArgs().Peek("last"))
	limit := ctx.QueryArgs().GetUintOrZero("limit")
	if limit <= 0 {
		limit = a.eff.Config.Graph.DefaultLimit
	}

	base := models.SearchEdgeType{Node: node, Last: last, Limit: limit}
	var (
		iter    *metadata.TypeIterator
		iterErr error
	)
	switch {
	case direction == keys.DirSource && kind != keys.KindIdType:
		iter, iterErr = metadata.GetEdgeTypesFromSource(scope, base)
	case direction == keys.DirTarget && kind != keys.KindIdType:
		iter, iterErr = metadata.GetEdgeTypesToTarget(scope, base)
	case direction == keys.DirSource:
		iter, iterErr = metadata.GetIdTypesFromSource(scope, models.SearchIdType{SearchEdgeType: base, EdgeType: string(ctx.QueryArgs().Peek("edge_type"))})
	case direction == keys.DirTarget:
		iter, iterErr = metadata.GetIdTypesToTarget(scope, models.SearchIdType{SearchEdgeType: base, EdgeType: string(ctx.QueryArgs().Peek("edge_type"))})
	default:
		writeError(ctx, fasthttp.StatusBadRequest, "direction must be src or tgt")
		return
	}
	if iterErr != nil {
		writeError(ctx, fasthttp.StatusBadRequest, iterErr.Error())
		return
	}
	defer iter.Close()

	types := []string{}
	for iter.Next() {
		types = append(types, iter.Value())
	}
	if err := iter.Err(); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	telemetry.TypeScans.Inc()
	resp := map[string]interface{}{"types": types}
	if len(types) > 0 {
		resp["last"] = types[len(types)-1]
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

type queryRequest struct {
	Application models.Id `json:"application"`
	Node        models.Id `json:"node"`
	// Kind selects the strategy: collection, connection or incoming.
	Kind   string   `json:"kind"`
	Name   string   `json:"name"`
	Types  []string `json:"types"`
	Query  string   `json:"query"`
	Limit  int      `json:"limit"`
	Cursor string   `json:"cursor"`
}

type queryCandidate struct {
	ID      string  `json:"id"`
	Version string  `json:"version"`
	Score   float64 `json:"score"`
}

// queryHandler runs one page of a candidate traversal and returns a
// resume cursor for the next page.
func (a *App) queryHandler(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("query")
	defer tr.Finish()

	var req queryRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	tr.Mark("decode")
	if err := req.Node.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = a.eff.Config.Graph.DefaultLimit
	}
	if limit > metadata.MaxLimit {
		limit = metadata.MaxLimit
	}

	var strat search.Strategy
	switch req.Kind {
	case "collection":
		strat = search.CollectionStrategy{Collection: req.Name, Types: req.Types}
	case "connection":
		strat = search.ConnectionStrategy{Connection: req.Name, Types: req.Types}
	case "incoming":
		strat = search.IncomingStrategy{Connection: req.Name, Types: req.Types}
	default:
		writeError(ctx, fasthttp.StatusBadRequest, "kind must be collection, connection or incoming")
		return
	}

	filter := &search.CandidateFilter{Index: a.searchIdx, Strategy: strat, Query: req.Query}
	p := pipeline.New[models.Id, index.Candidate](limit, filter)

	stream, err := p.Execute(ctx, req.Cursor, pipeline.NewResult(req.Node))
	if err != nil {
		if errors.Is(err, cursor.ErrMalformedCursor) {
			writeError(ctx, fasthttp.StatusBadRequest, "malformed cursor")
			return
		}
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	out := []queryCandidate{}
	var lastResult *pipeline.FilterResult[index.Candidate]
	for r := range stream.C {
		out = append(out, queryCandidate{ID: r.Value.Result.ID, Version: r.Value.Result.Version.String(), Score: r.Value.Result.Score})
		lastResult = &r
		if len(out) >= limit {
			break
		}
	}
	if len(out) >= limit {
		stream.Close()
	}
	tr.Mark("traverse")
	if err := stream.Err(); err != nil {
		if errors.Is(err, index.ErrQueryRejected) {
			writeError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{"candidates": out}
	if lastResult != nil && len(out) >= limit {
		token, terr := pipeline.CursorToken(*lastResult, p.Stages())
		if terr == nil {
			resp["cursor"] = token
		}
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

// auditRunHandler triggers an immediate metadata sweep.
func (a *App) auditRunHandler(ctx *fasthttp.RequestCtx) {
	if err := audit.RunImmediate(); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

// startHTTP builds and starts the fasthttp server, returning a channel
// that delivers errors.
func (a *App) startHTTP() <-chan error {
	r := router.New()
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	r.POST("/v1/edges", a.writeEdgeHandler)
	r.DELETE("/v1/edges", a.removeEdgeHandler)
	r.POST("/v1/index", a.indexEntityHandler)
	r.DELETE("/v1/index", a.deindexEntityHandler)
	r.GET("/v1/types", a.typesHandler)
	r.POST("/v1/query", a.queryHandler)
	r.POST("/v1/audit/run", a.auditRunHandler)

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	})

	const (
		readBufferSize     = 64 * 1024       // 64 KiB read buffer per connection
		maxRequestBodySize = 5 * 1024 * 1024 // 5 MiB max request body
		readTimeout        = 10 * time.Second
		writeTimeout       = 10 * time.Second
		idleTimeout        = 30 * time.Second
	)
	a.srvFast = &fasthttp.Server{
		Handler:            r.Handler,
		ReadBufferSize:     readBufferSize,
		MaxRequestBodySize: maxRequestBodySize,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.ListenAndServe(a.eff.Config.Addr())
	}()
	return errCh
}
