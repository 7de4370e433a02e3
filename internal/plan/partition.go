// Package plan turns a solved solution-space tree (internal/solve) into an
// executable plan: a DAG of query partitions (C3), one per subgraph round
// trip, plus the response shape each partition's data will be decoded
// against (C4). Grounded on the teacher's federation/planner/planner_v2.go
// (StepV2/PlanV2 step grouping) and federation/planner/planner_v2_optimized.go
// (entity step construction via @provides shortcuts), generalized from a
// single fixed planning pass into one driven by the Steiner solution.
package plan

import (
	"fmt"
	"sort"

	"github.com/n9te9/federation-gateway/internal/schema"
	"github.com/n9te9/federation-gateway/internal/solve"
)

// PartitionID indexes into Plan.Partitions.
type PartitionID int

// DataField is one scalar/object field this partition's subgraph request
// must select, ordered by (parent entity, response key) per §4.3.
type DataField struct {
	ResponseKey string
	FieldName   string
	ParentType  string
	Typename    bool // client-requested literal __typename on a concrete type, answered from the schema without asking the subgraph
	Child       PartitionID
	HasChild    bool
}

// Partition is one subgraph round trip: either a root-operation partition
// (Query/Mutation/Subscription field group) or an entity partition fetched
// through the federation `_entities` lookup (or an `@lookup` field).
type Partition struct {
	ID         PartitionID
	Subgraph   string
	ResolverID int
	Kind       schema.ResolverKind
	EntityType string          // the resolver's parent type; for root partitions the root operation type (e.g. "Query")
	KeyFields  *schema.FieldSet // representation fields required to invoke an entity/lookup resolver
	RootField  string          // root field name for ResolverRoot/ResolverLookup partitions
	Operation  string          // "query" | "mutation" | "subscription"
	Fields     []DataField

	ParentPartition PartitionID
	ParentField     string
	HasParent       bool

	// MutationExecutedAfter orders sibling mutation partitions so that
	// root mutation fields execute in the client's requested left-to-right
	// order, per the spec's mutation serialization invariant.
	MutationExecutedAfter PartitionID
	HasMutationPredecessor bool
}

// Plan is the full partition DAG produced for one solved operation.
type Plan struct {
	Partitions []*Partition
	Root       PartitionID

	// LocalFields holds top-level response keys answered entirely without
	// a subgraph round trip (currently just a literal root `__typename`,
	// response key -> rendered type name). Populated only when the whole
	// operation resolves this way, i.e. Partitions is empty.
	LocalFields map[string]string
}

// InternalError marks a planner invariant violation (e.g. a mutation chain
// that cannot be totally ordered because a partition never got a parent).
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "plan: internal error: " + e.Msg }

type builder struct {
	space *solve.Space
	sol   *solve.Solution
	sch   *schema.Schema

	resolverPartition map[solve.NodeIndex]PartitionID
	plan              *Plan
	opKind            string
}

// Build partitions the solved Space into an executable Plan.
func Build(sp *solve.Space, sol *solve.Solution, sch *schema.Schema, opKind string) (*Plan, error) {
	b := &builder{
		space:             sp,
		sol:               sol,
		sch:               sch,
		resolverPartition: make(map[solve.NodeIndex]PartitionID),
		plan:              &Plan{},
		opKind:            opKind,
	}

	root := sp.Nodes[sp.Root()]
	var rootChildren []solve.NodeIndex
	for _, qf := range root.Children {
		if sol.Included[qf] {
			rootChildren = append(rootChildren, qf)
		}
	}
	localRoot := b.localTypenameFields(root.Children)

	byResolver := map[solve.NodeIndex][]solve.NodeIndex{}
	var resolverOrder []solve.NodeIndex
	for _, qf := range rootChildren {
		pf := b.winningProvidableField(qf)
		if pf < 0 {
			return nil, &InternalError{Msg: fmt.Sprintf("query field %q has no winning providable field", sp.Nodes[qf].FieldName)}
		}
		resNode := sp.Nodes[pf].ProvidingResolver
		if _, seen := byResolver[resNode]; !seen {
			resolverOrder = append(resolverOrder, resNode)
		}
		byResolver[resNode] = append(byResolver[resNode], qf)
	}

	var prevMutationPartition PartitionID
	hasPrevMutation := false
	for i, resNode := range resolverOrder {
		partID, err := b.buildResolverPartition(resNode, byResolver[resNode], -1, "", false)
		if err != nil {
			return nil, err
		}
		if opKind == "mutation" {
			if hasPrevMutation {
				b.plan.Partitions[partID].MutationExecutedAfter = prevMutationPartition
				b.plan.Partitions[partID].HasMutationPredecessor = true
			}
			prevMutationPartition = partID
			hasPrevMutation = true
		}
		if i == 0 {
			b.plan.Root = partID
		}
	}
	if len(resolverOrder) == 0 {
		if len(localRoot) == 0 {
			return nil, &InternalError{Msg: "operation selects no fields"}
		}
		// The whole operation is answered locally (e.g. `{ __typename }`):
		// no partition, no subgraph round trip at all.
		rootType := b.sch.RootTypeName(operationKind(opKind))
		b.plan.LocalFields = map[string]string{"__typename": rootType}
		return b.plan, nil
	}
	if len(localRoot) > 0 {
		rootPartition := b.plan.Partitions[b.plan.Root]
		for _, df := range localRoot {
			rootPartition.Fields = appendSortedField(rootPartition.Fields, df)
		}
	}
	return b.plan, nil
}

// localTypenameFields converts every LocalTypename child in children into a
// literal DataField (Typename: true), the same zero-wire-cost marker the
// shape compiler and query builder already use to render `__typename`
// without asking a subgraph for it.
func (b *builder) localTypenameFields(children []solve.NodeIndex) []DataField {
	var out []DataField
	for _, c := range children {
		n := b.space.Nodes[c]
		if !n.LocalTypename {
			continue
		}
		out = append(out, DataField{ResponseKey: "__typename", FieldName: "__typename", ParentType: n.ParentType, Typename: true})
	}
	return out
}

// winningProvidableField returns the ProvidableField node that serves qf in
// the solution, i.e. the From endpoint of qf's spanning EdgeField edge.
func (b *builder) winningProvidableField(qf solve.NodeIndex) solve.NodeIndex {
	eIdx, ok := b.sol.SpanningEdge[qf]
	if !ok {
		return -1
	}
	return b.space.Edges[eIdx].From
}

// buildResolverPartition materializes (or reuses) the Partition for a
// Resolver node, attaching every included query field reachable through
// it at this point in the tree, recursing into nested resolvers when a
// field's own children resolve through a different resolver node.
func (b *builder) buildResolverPartition(resNode solve.NodeIndex, queryFields []solve.NodeIndex, parent PartitionID, parentField string, hasParent bool) (PartitionID, error) {
	partID, exists := b.resolverPartition[resNode]
	if !exists {
		resolver, ok := b.sch.Resolver(b.space.Nodes[resNode].ResolverID)
		if !ok {
			return 0, &InternalError{Msg: "resolver node references unknown resolver id"}
		}
		p := &Partition{
			ID:         PartitionID(len(b.plan.Partitions)),
			Subgraph:   resolver.Subgraph,
			ResolverID: resolver.ID,
			Kind:       resolver.Kind,
			EntityType: resolver.EntityType,
			KeyFields:  resolver.KeyFields,
			RootField:  resolver.RootField,
			Operation:  b.opKind,
		}
		if hasParent {
			p.ParentPartition = parent
			p.ParentField = parentField
			p.HasParent = true
		}
		b.plan.Partitions = append(b.plan.Partitions, p)
		partID = p.ID
		b.resolverPartition[resNode] = partID
	}

	for _, qf := range queryFields {
		if err := b.attachField(partID, qf); err != nil {
			return 0, err
		}
	}
	return partID, nil
}

// attachField adds a DataField for qf to the partition, recursing into a
// fresh or shared nested partition whenever qf's own children resolve
// through a resolver other than the current one.
func (b *builder) attachField(partID PartitionID, qf solve.NodeIndex) error {
	n := b.space.Nodes[qf]
	df := DataField{ResponseKey: n.FieldName, FieldName: n.FieldName, ParentType: n.ParentType}

	pf := b.winningProvidableField(qf)
	var childQueryFields []solve.NodeIndex
	if pf >= 0 {
		for _, child := range b.space.Nodes[pf].Children {
			if b.sol.Included[child] {
				childQueryFields = append(childQueryFields, child)
			}
		}
		for _, local := range b.localTypenameFields(b.space.Nodes[pf].Children) {
			part := b.plan.Partitions[partID]
			part.Fields = appendSortedField(part.Fields, local)
		}
	}

	if len(childQueryFields) > 0 {
		byResolver := map[solve.NodeIndex][]solve.NodeIndex{}
		var order []solve.NodeIndex
		for _, child := range childQueryFields {
			childPF := b.winningProvidableField(child)
			if childPF < 0 {
				return &InternalError{Msg: fmt.Sprintf("query field %q has no winning providable field", b.space.Nodes[child].FieldName)}
			}
			resNode := b.space.Nodes[childPF].ProvidingResolver
			if _, seen := byResolver[resNode]; !seen {
				order = append(order, resNode)
			}
			byResolver[resNode] = append(byResolver[resNode], child)
		}
		currentResNode := b.space.Nodes[pf].ProvidingResolver
		for _, resNode := range order {
			if resNode == currentResNode {
				for _, child := range byResolver[resNode] {
					if err := b.attachField(partID, child); err != nil {
						return err
					}
				}
				continue
			}
			childPartID, err := b.buildResolverPartition(resNode, byResolver[resNode], partID, df.ResponseKey, true)
			if err != nil {
				return err
			}
			df.Child = childPartID
			df.HasChild = true
		}
	}

	part := b.plan.Partitions[partID]
	part.Fields = appendSortedField(part.Fields, df)
	return nil
}

// appendSortedField inserts df keeping Fields ordered by (ParentType,
// ResponseKey), the ordering the shape compiler and response decoder both
// rely on for sorted-offset field lookup (§4.4, §7).
func appendSortedField(fields []DataField, df DataField) []DataField {
	for _, existing := range fields {
		if existing.ParentType == df.ParentType && existing.ResponseKey == df.ResponseKey {
			return fields // already attached (shared providable field reused across alternatives)
		}
	}
	fields = append(fields, df)
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].ParentType != fields[j].ParentType {
			return fields[i].ParentType < fields[j].ParentType
		}
		return fields[i].ResponseKey < fields[j].ResponseKey
	})
	return fields
}
