// Package gatewayhttp exposes the federated schema over HTTP: a single
// POST/GET GraphQL endpoint backed by the solve/plan/execute/response
// pipeline, wrapped in CORS and request-scoped telemetry. Grounded on the
// teacher's gateway.ServeHTTP (gateway/gateway.go): parse the incoming
// document, validate field accessibility, plan, execute, encode — rebuilt
// here against our own solver/planner/executor instead of the teacher's V2
// planner and gqlgen-era validation helpers.
package gatewayhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/n9te9/federation-gateway/internal/cache"
	"github.com/n9te9/federation-gateway/internal/config"
	"github.com/n9te9/federation-gateway/internal/execute"
	"github.com/n9te9/federation-gateway/internal/gqlerr"
	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/registry"
	"github.com/n9te9/federation-gateway/internal/schema"
	"github.com/n9te9/federation-gateway/internal/solve"
	"github.com/n9te9/federation-gateway/internal/telemetry"
)

// Gateway serves GraphQL operations against a live schema registry.
type Gateway struct {
	Registry  *registry.Registry
	Executor  *execute.Executor
	PlanCache *cache.PlanCache
	Telemetry *telemetry.Telemetry
	CORS      CORSSettings
	Auth      config.AuthConfig
}

// CORSSettings mirrors internal/config.CORSConfig; the caller copies the
// configured origins and headers into it.
type CORSSettings struct {
	AllowedOrigins []string
	AllowedHeaders []string
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   map[string]any  `json:"data,omitempty"`
	Errors []*gqlerr.Error `json:"errors,omitempty"`
}

// Handler builds the CORS-wrapped GraphQL HTTP handler.
func (g *Gateway) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: g.CORS.AllowedOrigins,
		AllowedHeaders: g.CORS.AllowedHeaders,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	})
	return c.Handler(AuthMiddleware(g.Auth, http.HandlerFunc(g.serveGraphQL)))
}

func (g *Gateway) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()

	var req graphQLRequest
	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrors(w, http.StatusBadRequest, gqlerr.Validation("malformed request body: "+err.Error()))
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			_ = json.Unmarshal([]byte(raw), &req.Variables)
		}
	default:
		writeErrors(w, http.StatusMethodNotAllowed, gqlerr.Validation("method not allowed"))
		return
	}

	sch := g.Registry.Current()

	varNames := make([]string, 0, len(req.Variables))
	for k := range req.Variables {
		varNames = append(varNames, k)
	}
	cacheKey := cache.Key(req.Query, varNames)

	entry, hit := g.PlanCache.Get(cacheKey)
	if hit {
		g.Telemetry.CacheHits.Add(ctx, 1)
	} else {
		g.Telemetry.CacheMisses.Add(ctx, 1)
		var err *gqlerr.Error
		entry, err = g.prepare(ctx, sch, req)
		if err != nil {
			g.Telemetry.RecordError(ctx, string(err.Code))
			writeErrors(w, http.StatusOK, err)
			return
		}
		g.PlanCache.Put(cacheKey, entry)
	}

	result, execErr := g.Executor.Execute(ctx, entry.Plan, entry.Compiled, req.Variables)
	if execErr != nil {
		g.Telemetry.RecordError(ctx, string(gqlerr.CodeInternal))
		writeErrors(w, http.StatusOK, gqlerr.Internal(execErr))
		return
	}

	resp := graphQLResponse{Data: renderFields(result, entry.Compiled)}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e)
	}

	status := telemetry.StatusSuccess
	if len(result.Errors) > 0 {
		status = telemetry.StatusFieldError
	}
	g.Telemetry.RecordOperation(ctx, operationTypeOf(req.Query), req.OperationName, status, started)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// prepare parses, plans and shape-compiles one operation, the work a
// cache hit skips entirely.
func (g *Gateway) prepare(ctx context.Context, sch *schema.Schema, req graphQLRequest) (*cache.Entry, *gqlerr.Error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return nil, gqlerr.Parsing(err)
	}

	op, gqlErr := selectOperation(doc, req.OperationName)
	if gqlErr != nil {
		return nil, gqlErr
	}

	if gqlErr := validateAccessibility(ctx, sch, op); gqlErr != nil {
		return nil, gqlErr
	}

	sp, err := solve.Build(sch, op)
	if err != nil {
		return nil, gqlerr.Validation(err.Error())
	}
	if err := sp.Validate(); err != nil {
		return nil, gqlerr.Validation(err.Error())
	}

	sol, err := solve.Solve(sp)
	if err != nil {
		return nil, gqlerr.Validation(err.Error())
	}

	pl, err := plan.Build(sp, sol, sch, string(op.Operation))
	if err != nil {
		return nil, gqlerr.Internal(err)
	}

	compiled, err := plan.CompileShapes(sch, pl)
	if err != nil {
		return nil, gqlerr.Internal(err)
	}

	return &cache.Entry{Plan: pl, Compiled: compiled}, nil
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, *gqlerr.Error) {
	if len(doc.Operations) == 0 {
		return nil, gqlerr.Validation("document has no operations")
	}
	if name == "" {
		if len(doc.Operations) > 1 {
			return nil, gqlerr.Validation("operationName is required when a document defines more than one operation")
		}
		return doc.Operations[0], nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, gqlerr.Validation("unknown operation " + name)
}

// validateAccessibility rejects a query that selects a field marked
// @inaccessible, or an @authorized field the caller's principal can't
// reach, mirroring the teacher's checkFieldAccessibility walk in
// gateway/gateway.go, extended with the scope check authorizeField
// performs against the request's Principal.
func validateAccessibility(ctx context.Context, sch *schema.Schema, op *ast.OperationDefinition) *gqlerr.Error {
	return walkAccessibility(ctx, sch, sch.RootTypeName(op.Operation), op.SelectionSet)
}

func walkAccessibility(ctx context.Context, sch *schema.Schema, parentType string, sel ast.SelectionSet) *gqlerr.Error {
	for _, raw := range sel {
		switch f := raw.(type) {
		case *ast.Field:
			if f.Name == "__typename" {
				continue
			}
			rec, ok := sch.Field(parentType, f.Name)
			if !ok {
				return gqlerr.Validation("unknown field " + parentType + "." + f.Name)
			}
			if rec.Inaccessible {
				return gqlerr.Validation("field " + parentType + "." + f.Name + " is @inaccessible")
			}
			if gqlErr := authorizeField(ctx, rec); gqlErr != nil {
				return gqlErr
			}
			if len(f.SelectionSet) > 0 {
				if gqlErr := walkAccessibility(ctx, sch, rec.ReturnType, f.SelectionSet); gqlErr != nil {
					return gqlErr
				}
			}
		case *ast.InlineFragment:
			cond := parentType
			if f.TypeCondition != "" {
				cond = f.TypeCondition
			}
			if gqlErr := walkAccessibility(ctx, sch, cond, f.SelectionSet); gqlErr != nil {
				return gqlErr
			}
		case *ast.FragmentSpread:
			if f.Definition != nil {
				cond := f.Definition.TypeCondition
				if cond == "" {
					cond = parentType
				}
				if gqlErr := walkAccessibility(ctx, sch, cond, f.Definition.SelectionSet); gqlErr != nil {
					return gqlErr
				}
			}
		}
	}
	return nil
}

func operationTypeOf(query string) string {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil || len(doc.Operations) == 0 {
		return "query"
	}
	return string(doc.Operations[0].Operation)
}

func writeErrors(w http.ResponseWriter, status int, errs ...*gqlerr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(graphQLResponse{Errors: errs})
}
