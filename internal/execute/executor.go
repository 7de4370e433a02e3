// Package execute implements the execution state machine (C5) and plan
// executor (C6): a cooperative loop that walks the partition DAG wave by
// wave, firing every partition whose dependencies are satisfied, decoding
// each subgraph response through internal/response, and merging entity
// fetch results back into their parent objects. Grounded on the teacher's
// ExecutorV2.Execute (Kahn's-algorithm DAG validation, errgroup-driven
// concurrent step execution, recursive findReadySteps) in
// federation/executor/executor_v2.go.
package execute

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/n9te9/federation-gateway/internal/gqlerr"
	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/response"
	"github.com/n9te9/federation-gateway/internal/schema"
)

// subscriptionConcurrencyLimit bounds how many in-flight subscription
// response builds may run at once, per the spec's back-pressure window.
const subscriptionConcurrencyLimit = 3

// Endpoints maps a subgraph name to the URL its partitions are sent to.
type Endpoints map[string]string

// Executor runs one operation's Plan to completion.
type Executor struct {
	Schema    *schema.Schema
	Subgraph  Subgraph
	Endpoints Endpoints
	Semaphore *semaphore.Weighted // subscription back-pressure; unused on the request/response path
}

// NewExecutor builds an Executor with the standard subscription
// back-pressure window.
func NewExecutor(sch *schema.Schema, sg Subgraph, endpoints Endpoints) *Executor {
	return &Executor{
		Schema:    sch,
		Subgraph:  sg,
		Endpoints: endpoints,
		Semaphore: semaphore.NewWeighted(subscriptionConcurrencyLimit),
	}
}

// Result is the merged outcome of executing a Plan: the decoded top-level
// field values keyed by their root response key, plus every error
// accumulated along the way (subgraph transport/protocol failures surface
// here rather than aborting the whole request, per §6's partial-success
// model).
type Result struct {
	Fields map[string]response.Value
	Arena  *response.Arena
	Errors []*gqlerr.Error
}

// Execute runs every partition of pl to completion and merges the results
// into one top-level field map.
//
// Each wave runs in two strictly separated phases: a concurrent fetch
// phase, where every goroutine only performs a subgraph round trip (and,
// for entity partitions, a read-only scan of already-settled arena
// objects to harvest key-field representations), and a sequential ingest
// phase, run back on this goroutine, where fetched bytes are decoded into
// the shared arena. No goroutine ever writes to the arena: decode.go's
// arena.NewObject append and the entity merge-back write are both confined
// to the ingest phase, so two concurrent root fetches (or root + entity
// fetches) never race on response.Arena.Objects.
func (e *Executor) Execute(ctx context.Context, pl *plan.Plan, compiled *plan.Compiled, variables map[string]any) (*Result, error) {
	arena := &response.Arena{}
	state := NewState(pl)
	decoded := make(map[plan.PartitionID]response.Value)

	result := &Result{Fields: make(map[string]response.Value), Arena: arena}
	for k, v := range pl.LocalFields {
		result.Fields[k] = response.Value{Kind: response.ValueString, Str: v}
	}

	for !state.AllSettled() {
		wave := state.Executable()
		if len(wave) == 0 {
			return nil, &plan.InternalError{Msg: "execution stalled: no partition is executable but some are still pending"}
		}

		g, gctx := errgroup.WithContext(ctx)
		type outcome struct {
			id     plan.PartitionID
			fetch  *fetchResult
			failed bool
			err    error
		}
		outcomes := make([]outcome, len(wave))

		for i, id := range wave {
			i, id := i, id
			state.MarkRunning(id)
			g.Go(func() error {
				part := pl.Partitions[id]
				fr, err := e.fetchPartition(gctx, pl, compiled, arena, part, variables)
				if err != nil {
					outcomes[i] = outcome{id: id, failed: true, err: err}
					return nil // partition failures degrade to null, they never abort the group
				}
				outcomes[i] = outcome{id: id, fetch: fr}
				return nil
			})
		}
		_ = g.Wait()

		// Ingest runs single-threaded: every arena write for this wave
		// happens here, after every concurrent fetch has returned.
		for _, o := range outcomes {
			part := pl.Partitions[o.id]
			if o.failed {
				result.Errors = append(result.Errors, gqlerr.SubgraphRequest(part.Subgraph, o.err))
				state.MarkFailed(o.id)
				continue
			}
			v, errs := e.ingestPartition(compiled, arena, part, o.fetch)
			result.Errors = append(result.Errors, errs...)
			decoded[o.id] = v
			state.MarkDone(o.id)
		}
	}

	for _, part := range pl.Partitions {
		if part.HasParent {
			continue
		}
		v, ok := decoded[part.ID]
		if !ok || v.Kind != response.ValueObject {
			continue
		}
		shapeID := compiled.PartitionShape[part.ID]
		concrete := compiled.Shapes[shapeID].Concrete
		obj := arena.Get(v.Object)
		for i, fs := range concrete.Fields {
			result.Fields[fs.ResponseKey] = obj.Values[i]
		}
	}

	return result, nil
}

// fetchResult is everything a concurrent fetch produces for one partition:
// raw subgraph bytes plus whatever bookkeeping its ingest phase needs. It
// never holds a reference into the arena that outlives the read used to
// build it.
type fetchResult struct {
	raw *RawResponse

	isEntity    bool
	targets     []response.ObjectID // arena objects to merge the decoded entities back into
	parentField int                 // field index within the parent shape to write each merged result
	elems       []json.RawMessage   // one _entities element per target, already split
}

// fetchPartition performs one partition's subgraph round trip. It may read
// the arena (to harvest entity representations from already-settled
// objects of a prior, already-ingested wave) but never writes to it —
// decoding and every other arena mutation is deferred to ingestPartition,
// which Execute calls back on its own goroutine once every fetch in the
// wave has returned.
func (e *Executor) fetchPartition(ctx context.Context, pl *plan.Plan, compiled *plan.Compiled, arena *response.Arena, part *plan.Partition, variables map[string]any) (*fetchResult, error) {
	if part.HasParent {
		return e.fetchEntityPartition(ctx, pl, compiled, arena, part)
	}
	return e.fetchRootPartition(ctx, pl, part, variables)
}

func (e *Executor) fetchRootPartition(ctx context.Context, pl *plan.Plan, part *plan.Partition, variables map[string]any) (*fetchResult, error) {
	query := BuildQuery(e.Schema, pl, part)
	url, ok := e.Endpoints[part.Subgraph]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for subgraph %q", part.Subgraph)
	}

	raw, err := e.Subgraph.Execute(ctx, Request{Subgraph: part.Subgraph, URL: url, Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}
	return &fetchResult{raw: raw}, nil
}

// fetchEntityPartition harvests key-field representations from every arena
// object produced by a prior wave whose shape matches the partition's
// entity type (a read-only scan: no prior wave's ingest can still be in
// flight once this wave's fetch phase starts, so no writer ever races
// this), issues one batched `_entities` call, and splits the response
// into one element per harvested object.
func (e *Executor) fetchEntityPartition(ctx context.Context, pl *plan.Plan, compiled *plan.Compiled, arena *response.Arena, part *plan.Partition) (*fetchResult, error) {
	parentShapeID, parentChildIdx, keyIdx, ok := locateMergeTarget(compiled, part)
	if !ok {
		return nil, &plan.InternalError{Msg: fmt.Sprintf("entity partition %d: no parent shape exposes field %q", part.ID, part.ParentField)}
	}

	var targets []response.ObjectID
	var representations []map[string]any
	for id := range arena.Objects {
		oid := response.ObjectID(id)
		obj := arena.Get(oid)
		if obj.Shape != parentShapeID {
			continue
		}
		targets = append(targets, oid)
		rep := map[string]any{"__typename": part.EntityType}
		for _, kf := range part.KeyFields.Names() {
			if idx, found := keyIdx[kf]; found {
				rep[kf] = toJSONValue(obj.Values[idx])
			}
		}
		representations = append(representations, rep)
	}

	if len(targets) == 0 {
		return &fetchResult{isEntity: true}, nil
	}

	url, ok2 := e.Endpoints[part.Subgraph]
	if !ok2 {
		return nil, fmt.Errorf("no endpoint configured for subgraph %q", part.Subgraph)
	}
	query := BuildQuery(e.Schema, pl, part)
	raw, err := e.Subgraph.Execute(ctx, Request{
		Subgraph:  part.Subgraph,
		URL:       url,
		Query:     query,
		Variables: map[string]any{"representations": representations},
	})
	if err != nil {
		return nil, err
	}

	elems, err := splitEntitiesList(raw.Data)
	if err != nil {
		return nil, err
	}

	return &fetchResult{
		raw:         raw,
		isEntity:    true,
		targets:     targets,
		parentField: parentChildIdx,
		elems:       elems,
	}, nil
}

// ingestPartition decodes a fetched subgraph response into the arena and,
// for entity partitions, merges each decoded result back into its parent
// object. Execute calls this only from its own goroutine, one partition at
// a time, after every fetch in the current wave has returned — the sole
// place response.Arena is ever mutated.
func (e *Executor) ingestPartition(compiled *plan.Compiled, arena *response.Arena, part *plan.Partition, fr *fetchResult) (response.Value, []*gqlerr.Error) {
	if fr.isEntity {
		if len(fr.targets) == 0 {
			return response.Null, nil
		}
		dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: part.Subgraph}
		shapeID := compiled.PartitionShape[part.ID]
		var errs []*gqlerr.Error
		for i, target := range fr.targets {
			if i >= len(fr.elems) {
				break
			}
			v, decErrs := dec.DecodeRoot(fr.elems[i], shapeID)
			errs = append(errs, decErrs...)
			arena.Get(target).Values[fr.parentField] = v
		}
		errs = append(errs, subgraphEnvelopeErrors(part.Subgraph, fr.raw)...)
		return response.Value{Kind: response.ValueBool, Bool: true}, errs
	}

	dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: part.Subgraph}
	shapeID := compiled.PartitionShape[part.ID]
	v, errs := dec.DecodeRoot(fr.raw.Data, shapeID)
	errs = append(errs, subgraphEnvelopeErrors(part.Subgraph, fr.raw)...)
	return v, errs
}

// locateMergeTarget finds the parent ConcreteShape carrying part.EntityType,
// the field index of part.ParentField within it (where the decoded entity
// result is written back), and the index of each of the entity's own key
// fields (used to read representation values back out of a parent object).
func locateMergeTarget(compiled *plan.Compiled, part *plan.Partition) (parentShapeID plan.ShapeID, parentChildIdx int, keyIdx map[string]int, ok bool) {
	keyNames := part.KeyFields.Names()
	for _, shape := range compiled.Shapes {
		if shape.Kind != plan.ShapeConcrete || shape.Concrete.TypeName != part.EntityType {
			continue
		}
		childIdx := -1
		idx := make(map[string]int)
		for i, fs := range shape.Concrete.Fields {
			if fs.ResponseKey == part.ParentField {
				childIdx = i
			}
			idx[fs.ExpectedKey] = i
		}
		if childIdx < 0 {
			continue
		}
		if hasAllKeys(idx, keyNames) {
			return shape.Concrete.ID, childIdx, idx, true
		}
		// remember as a fallback candidate in case no shape has every key field
		parentShapeID, parentChildIdx, keyIdx, ok = shape.Concrete.ID, childIdx, idx, true
	}
	return parentShapeID, parentChildIdx, keyIdx, ok
}

func hasAllKeys(idx map[string]int, names []string) bool {
	for _, n := range names {
		if _, found := idx[n]; !found {
			return false
		}
	}
	return true
}

func toJSONValue(v response.Value) any {
	switch v.Kind {
	case response.ValueString, response.ValueEnum:
		return v.Str
	case response.ValueInt:
		return v.Int
	case response.ValueFloat:
		return v.Float
	case response.ValueBool:
		return v.Bool
	case response.ValueList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = toJSONValue(e)
		}
		return out
	default:
		return nil
	}
}
