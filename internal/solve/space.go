// Package solve implements the Solution Space graph (C1) and the Steiner
// tree solver (C2) that picks, for every requested query field, which
// subgraph resolver will serve it.
package solve

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/n9te9/federation-gateway/internal/schema"
)

// NodeKind is the variant tag of a SpaceNode.
type NodeKind int

const (
	NodeRoot NodeKind = iota
	NodeResolver
	NodeProvidableField
	NodeQueryField
)

// EdgeKind is the variant tag of a SpaceEdge.
type EdgeKind int

const (
	EdgeCreateChildResolver EdgeKind = iota // cost 1: crossing into a different resolver
	EdgeCanProvide                          // cost 0: a resolver node can serve a providable field
	EdgeProvides                            // cost 0 shortcut: a providable field also yields another field for free
	EdgeField                               // cost 0: parent providable field -> child query field
	EdgeHasChildResolver                    // cost 0: providable field -> the same resolver that serves it (no resolver boundary crossed)
	EdgeRequires                            // requirement of source on a query field target; never part of the spanning tree itself
	EdgeTypenameField                       // cost 0: providable field -> synthetic __typename requirement
)

func (k EdgeKind) baseCost() int {
	if k == EdgeCreateChildResolver {
		return 1
	}
	return 0
}

// NodeIndex/EdgeIndex are typed arena indices — never back-references.
type NodeIndex int
type EdgeIndex int

const invalidIndex NodeIndex = -1

// SpaceNode is one node in the solution-space graph.
type SpaceNode struct {
	Kind NodeKind

	// NodeResolver
	ResolverID int

	// NodeProvidableField / NodeQueryField
	ParentType  string
	FieldName   string
	QueryPos    int  // position in the client document's selection order; -1 if not user-requested
	Indispensable bool // true iff this QueryField has a query position (directly requested)
	Leaf        bool // true iff this QueryField has no sub-selections

	// NodeQueryField only: true for a literal `__typename` selection on a
	// concrete (non-abstract) type. Its value is known statically from the
	// schema, so it never needs a providable-field/resolver chain and is
	// excluded from Steiner spanning (never Indispensable, no OutEdges) —
	// internal/plan attaches it to whichever partition ends up answering
	// its parent type directly, with no subgraph round trip of its own.
	LocalTypename bool

	// NodeProvidableField only: which resolver serves it, and the
	// QueryField nodes created directly under its selection set (used by
	// internal/plan to cut partitions at resolver boundaries without
	// re-deriving the selection tree from scratch).
	ProvidingResolver NodeIndex
	Children          []NodeIndex

	OutEdges []EdgeIndex
}

// SpaceEdge is one directed edge. Cost is mutated in place during Steiner
// fixed-point iteration (§4.2); BaseCost never changes.
type SpaceEdge struct {
	Kind        EdgeKind
	From, To    NodeIndex
	BaseCost    int
	AdjustedCost int
	RequirementSubgraph string // for EdgeRequires: which subgraph's requirement this satisfies
}

func (e *SpaceEdge) Cost() int { return e.BaseCost + e.AdjustedCost }

// Space is the arena-backed solution space graph.
type Space struct {
	Schema *schema.Schema
	Nodes  []SpaceNode
	Edges  []SpaceEdge

	root NodeIndex

	// indices for fast lookup during construction
	resolverNode map[int]NodeIndex               // resolver id -> node
	providable   map[providableKey]NodeIndex     // (parentType, fieldName, resolverID) -> node
	queryField   map[queryFieldKey]NodeIndex     // (parentType, fieldName) -> node (one per distinct field occurrence)

	Terminals []NodeIndex // indispensable leaf query-field nodes
}

type providableKey struct {
	parentType, fieldName string
	resolverID             int
}

type queryFieldKey struct {
	parentType, fieldName string
	queryPos               int
}

func (s *Space) addNode(n SpaceNode) NodeIndex {
	s.Nodes = append(s.Nodes, n)
	return NodeIndex(len(s.Nodes) - 1)
}

func (s *Space) addEdge(from, to NodeIndex, kind EdgeKind) EdgeIndex {
	e := SpaceEdge{Kind: kind, From: from, To: to, BaseCost: kind.baseCost()}
	s.Edges = append(s.Edges, e)
	idx := EdgeIndex(len(s.Edges) - 1)
	s.Nodes[from].OutEdges = append(s.Nodes[from].OutEdges, idx)
	return idx
}

// Root returns the root node index.
func (s *Space) Root() NodeIndex { return s.root }

// Build constructs the solution space graph for one operation's selection
// set against the composed schema, per §4.1's construction contract.
func Build(sch *schema.Schema, op *ast.OperationDefinition) (*Space, error) {
	s := &Space{
		Schema:       sch,
		resolverNode: make(map[int]NodeIndex),
		providable:   make(map[providableKey]NodeIndex),
		queryField:   make(map[queryFieldKey]NodeIndex),
	}
	s.root = s.addNode(SpaceNode{Kind: NodeRoot})

	rootType := sch.RootTypeName(op.Operation)
	posCounter := 0
	if err := s.walkSelectionSet(op.SelectionSet, rootType, s.root, &posCounter); err != nil {
		return nil, err
	}
	if err := s.linkRequirements(); err != nil {
		return nil, err
	}
	s.collectTerminals()
	return s, nil
}

// walkSelectionSet processes one selection set whose parent is identified
// by parentType, wiring CreateChildResolver/CanProvide/Field edges from
// every resolver reachable at the given entry node.
func (s *Space) walkSelectionSet(sel ast.SelectionSet, parentType string, entry NodeIndex, posCounter *int) error {
	for _, raw := range sel {
		switch f := raw.(type) {
		case *ast.Field:
			if f.Name == "__typename" {
				if s.Schema.IsConcreteType(parentType) {
					s.addLocalTypename(parentType, entry)
				}
				continue
			}
			*posCounter++
			if err := s.addQueryField(f, parentType, entry, *posCounter); err != nil {
				return err
			}
		case *ast.InlineFragment:
			cond := parentType
			if f.TypeCondition != "" {
				cond = f.TypeCondition
			}
			if err := s.walkSelectionSet(f.SelectionSet, cond, entry, posCounter); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if f.Definition != nil {
				cond := f.Definition.TypeCondition
				if cond == "" {
					cond = parentType
				}
				if err := s.walkSelectionSet(f.Definition.SelectionSet, cond, entry, posCounter); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// addQueryField creates the QueryField node for one client-requested field
// and a ProvidableField/Resolver chain for every subgraph able to serve it.
func (s *Space) addQueryField(f *ast.Field, parentType string, entryFromParent NodeIndex, queryPos int) error {
	rec, ok := s.Schema.Field(parentType, f.Name)
	if !ok || len(rec.Subgraphs) == 0 {
		return &schema.CompositionError{Type: parentType, Field: f.Name, Msg: "no subgraph can resolve this field"}
	}

	qfIdx := s.addNode(SpaceNode{
		Kind:          NodeQueryField,
		ParentType:    parentType,
		FieldName:     f.Name,
		QueryPos:      queryPos,
		Indispensable: true,
		Leaf:          len(f.SelectionSet) == 0,
	})
	s.queryField[queryFieldKey{parentType, f.Name, queryPos}] = qfIdx

	for _, sg := range rec.Subgraphs {
		resolverDef := rec.Resolvers[sg]
		resNode := s.resolverNodeFor(resolverDef, entryFromParent)
		pfIdx := s.providableFieldNode(parentType, f.Name, resolverDef, resNode)
		s.addEdge(pfIdx, qfIdx, EdgeField)
		s.Nodes[entryFromParent].Children = appendNodeUnique(s.Nodes[entryFromParent].Children, qfIdx)
	}

	if len(f.SelectionSet) > 0 {
		childPos := queryPos * 1000 // keep child positions monotonically increasing without clashing with siblings
		// children attach to every providable-field node created above
		for _, sg := range rec.Subgraphs {
			resolverDef := rec.Resolvers[sg]
			resNode := s.resolverNode[resolverDef.ID]
			pfIdx := s.providable[providableKey{parentType, f.Name, resolverDef.ID}]
			fieldType := rec.ReturnType
			if err := s.walkSelectionSet(f.SelectionSet, fieldType, pfIdx, &childPos); err != nil {
				_ = resNode
				return err
			}
		}
	}
	return nil
}

// addLocalTypename records a literal `__typename` selection on a concrete
// type as a child of entry, without routing it through any resolver: its
// value (parentType itself) is known at plan time, so it costs nothing to
// answer regardless of which partition ends up owning parentType's fields.
func (s *Space) addLocalTypename(parentType string, entry NodeIndex) {
	idx := s.addNode(SpaceNode{
		Kind:          NodeQueryField,
		ParentType:    parentType,
		FieldName:     "__typename",
		QueryPos:      -1,
		LocalTypename: true,
		Leaf:          true,
	})
	s.Nodes[entry].Children = appendNodeUnique(s.Nodes[entry].Children, idx)
}

// resolverNodeFor returns (creating if needed) the Resolver node for a
// resolver definition, wiring a CreateChildResolver edge (cost 1) from the
// parent entry point when the resolver differs from whatever resolver
// currently "owns" entryFromParent, or a HasChildResolver edge (cost 0)
// otherwise.
func (s *Space) resolverNodeFor(def *schema.ResolverDefinition, entryFromParent NodeIndex) NodeIndex {
	if idx, ok := s.resolverNode[def.ID]; ok {
		s.wireEntry(entryFromParent, idx)
		return idx
	}
	idx := s.addNode(SpaceNode{Kind: NodeResolver, ResolverID: def.ID})
	s.resolverNode[def.ID] = idx
	s.wireEntry(entryFromParent, idx)
	return idx
}

func (s *Space) wireEntry(entryFromParent, resolverNode NodeIndex) {
	switch s.Nodes[entryFromParent].Kind {
	case NodeRoot:
		s.addEdge(entryFromParent, resolverNode, EdgeCreateChildResolver)
	case NodeProvidableField:
		providingResolver := s.Nodes[entryFromParent].ProvidingResolver
		if providingResolver == resolverNode {
			s.addEdge(entryFromParent, resolverNode, EdgeHasChildResolver)
		} else {
			s.addEdge(entryFromParent, resolverNode, EdgeCreateChildResolver)
		}
	default:
		s.addEdge(entryFromParent, resolverNode, EdgeCreateChildResolver)
	}
}

func (s *Space) providableFieldNode(parentType, fieldName string, def *schema.ResolverDefinition, resNode NodeIndex) NodeIndex {
	key := providableKey{parentType, fieldName, def.ID}
	if idx, ok := s.providable[key]; ok {
		return idx
	}
	idx := s.addNode(SpaceNode{
		Kind:              NodeProvidableField,
		ParentType:        parentType,
		FieldName:         fieldName,
		ProvidingResolver: resNode,
	})
	s.providable[key] = idx
	s.addEdge(resNode, idx, EdgeCanProvide)

	if fr, ok := s.Schema.Field(parentType, fieldName); ok && fr.Provides != nil {
		for _, provided := range fr.Provides.Names() {
			// @provides shortcuts are resolved once the corresponding
			// query field node exists; recorded lazily via linkRequirements.
			_ = provided
		}
	}
	return idx
}

// linkRequirements adds Requires edges from providable fields/resolvers to
// the query-field nodes that satisfy their @requires field set. Because a
// required field is itself just another field of the same parent object,
// it is modeled by synthesizing an extra QueryField (indispensable=false)
// when the requirement targets a field the user did not already request.
func (s *Space) linkRequirements() error {
	for key, pfIdx := range s.providable {
		def, ok := s.Schema.Field(key.parentType, key.fieldName)
		if !ok {
			continue
		}
		for sg, reqSet := range def.Requires {
			resolverDef := def.Resolvers[sg]
			if resolverDef == nil || resolverDef.ID != key.resolverID {
				continue
			}
			for _, reqName := range reqSet.Names() {
				targetIdx := s.ensureRequiredQueryField(key.parentType, reqName, s.Nodes[pfIdx].ProvidingResolver)
				e := s.addEdge(pfIdx, targetIdx, EdgeRequires)
				s.Edges[e].RequirementSubgraph = sg
			}
		}
	}
	return nil
}

// ensureRequiredQueryField returns the QueryField node for (parentType,
// fieldName), creating a non-indispensable one (and its providable/resolver
// fan-out) if the user never directly requested that field.
func (s *Space) ensureRequiredQueryField(parentType, fieldName string, resolverEntry NodeIndex) NodeIndex {
	for key, idx := range s.queryField {
		if key.parentType == parentType && key.fieldName == fieldName {
			return idx
		}
	}
	rec, ok := s.Schema.Field(parentType, fieldName)
	if !ok {
		idx := s.addNode(SpaceNode{Kind: NodeQueryField, ParentType: parentType, FieldName: fieldName, QueryPos: -1, Leaf: true})
		s.queryField[queryFieldKey{parentType, fieldName, -1}] = idx
		return idx
	}
	qfIdx := s.addNode(SpaceNode{Kind: NodeQueryField, ParentType: parentType, FieldName: fieldName, QueryPos: -1, Leaf: true})
	s.queryField[queryFieldKey{parentType, fieldName, -1}] = qfIdx
	for _, sg := range rec.Subgraphs {
		resolverDef := rec.Resolvers[sg]
		resNode := s.resolverNodeFor(resolverDef, resolverEntry)
		pfIdx := s.providableFieldNode(parentType, fieldName, resolverDef, resNode)
		s.addEdge(pfIdx, qfIdx, EdgeField)
	}
	return qfIdx
}

func appendNodeUnique(list []NodeIndex, v NodeIndex) []NodeIndex {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func (s *Space) collectTerminals() {
	for i, n := range s.Nodes {
		if n.Kind == NodeQueryField && n.Indispensable {
			s.Terminals = append(s.Terminals, NodeIndex(i))
		}
	}
}

// Validate checks the invariants from §3: every indispensable QueryField is
// reachable from Root by at least one non-Requires path.
func (s *Space) Validate() error {
	reachable := s.reachableFromRoot()
	for _, t := range s.Terminals {
		if !reachable[t] {
			n := s.Nodes[t]
			return &schema.CompositionError{Type: n.ParentType, Field: n.FieldName, Msg: "unreachable from root"}
		}
	}
	return nil
}

func (s *Space) reachableFromRoot() map[NodeIndex]bool {
	seen := map[NodeIndex]bool{s.root: true}
	queue := []NodeIndex{s.root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, eIdx := range s.Nodes[cur].OutEdges {
			e := s.Edges[eIdx]
			if e.Kind == EdgeRequires {
				continue
			}
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

func (s *Space) String() string {
	return fmt.Sprintf("Space{nodes=%d edges=%d terminals=%d}", len(s.Nodes), len(s.Edges), len(s.Terminals))
}
