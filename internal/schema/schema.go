// Package schema models the composed supergraph schema: a mapping from
// type name to type record, where every field records the subgraphs that
// can resolve it and the resolver definitions that do so.
package schema

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// TypeKind mirrors the composite/leaf type kinds the solver cares about.
type TypeKind int

const (
	KindObject TypeKind = iota
	KindInterface
	KindUnion
	KindEnum
	KindScalar
	KindInputObject
)

// WrappingTier is one layer of a field's return type, innermost-to-outermost.
type WrappingTier int

const (
	WrapNone WrappingTier = iota
	WrapList
	WrapNonNull
)

// Wrapping is the ordered (innermost-first) list of type modifiers.
type Wrapping []WrappingTier

func (w Wrapping) IsNonNull() bool {
	return len(w) > 0 && w[len(w)-1] == WrapNonNull
}

func (w Wrapping) IsList() bool {
	for _, t := range w {
		if t == WrapList {
			return true
		}
	}
	return false
}

// FieldArgument is a single argument of a field.
type FieldArgument struct {
	Name string
	Type *ast.Type
}

// ResolverKind distinguishes how a subgraph entry point answers a field set.
type ResolverKind int

const (
	// ResolverRoot resolves a root field (Query/Mutation/Subscription).
	ResolverRoot ResolverKind = iota
	// ResolverEntity resolves an entity by its @key via the federation _entities lookup.
	ResolverEntity
	// ResolverLookup resolves a field via an explicit @lookup batch field.
	ResolverLookup
)

// ResolverDefinition describes how one subgraph entry-point resolves a
// concrete set of (entity, fields).
type ResolverDefinition struct {
	ID          int
	Kind        ResolverKind
	Subgraph    string
	EntityType  string          // the object type this resolver can provide fields for
	RootField   string          // for ResolverRoot/ResolverLookup: the field name on Query/Mutation/Subscription
	KeyFields   *FieldSet       // the @key fieldset required to invoke this resolver (entity/lookup resolvers)
	Injection   map[string]string // for @lookup: arg name -> source field name (populated via @is)
}

// FieldRecord describes one field of a composite type across the supergraph.
type FieldRecord struct {
	Name         string
	ParentType   string
	ReturnType   string
	Wrapping     Wrapping
	Arguments    []FieldArgument
	Subgraphs    []string             // subgraphs that can resolve this field directly
	Resolvers    map[string]*ResolverDefinition // subgraph name -> resolver that can serve this field
	Requires     map[string]*FieldSet // subgraph name -> required field set (may be nil)
	Provides     *FieldSet            // @provides field set, if any (first subgraph wins; rare to differ)
	Shareable    bool
	Inaccessible bool
	External     map[string]bool // subgraph name -> true if @external there
	IsDerived    bool            // synthetic scalar-as-field derivation (e.g. _id aliasing id)
	DerivedFrom  string
	Authorized   bool     // @authorized is present on this field
	RequiredScopes []string // @authorized(scopes: [...]); empty means "authenticated, any scope"
}

// TypeRecord is one named type in the composed schema.
type TypeRecord struct {
	Name            string
	Kind            TypeKind
	Fields          map[string]*FieldRecord
	Interfaces      []string
	PossibleTypes   []string // for interface/union: concrete object type names
	KeyFields       map[string]*FieldSet // subgraph -> @key fieldset (entities only)
	EnumValues      map[string]bool
	InaccessibleObj bool
}

// Schema is the immutable, process-wide composed supergraph.
type Schema struct {
	Types          map[string]*TypeRecord
	QueryType      string
	MutationType   string
	SubscriptionType string
	resolversByID  map[int]*ResolverDefinition
	nextResolverID int
}

// CompositionError is raised when the composed schema is internally inconsistent
// (e.g. a queryable field has no resolver in any subgraph).
type CompositionError struct {
	Type  string
	Field string
	Msg   string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition error at %s.%s: %s", e.Type, e.Field, e.Msg)
}

// New creates an empty composed schema with the standard root type names.
func New() *Schema {
	return &Schema{
		Types:         make(map[string]*TypeRecord),
		QueryType:     "Query",
		MutationType:  "Mutation",
		SubscriptionType: "Subscription",
		resolversByID: make(map[int]*ResolverDefinition),
	}
}

// ParseSubgraphSDL parses one subgraph's SDL into a gqlparser AST document,
// performing no schema validation (federation directives are not built-in
// and we compose ourselves rather than asking gqlparser to validate them).
func ParseSubgraphSDL(name string, src string) (*ast.SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: src})
	if err != nil {
		return nil, fmt.Errorf("parse subgraph %q SDL: %w", name, err)
	}
	return doc, nil
}

func (s *Schema) resolver(def *ResolverDefinition) *ResolverDefinition {
	def.ID = s.nextResolverID
	s.nextResolverID++
	s.resolversByID[def.ID] = def
	return def
}

// Resolver looks up a resolver definition by id.
func (s *Schema) Resolver(id int) (*ResolverDefinition, bool) {
	r, ok := s.resolversByID[id]
	return r, ok
}

// Field returns the field record for (typeName, fieldName).
func (s *Schema) Field(typeName, fieldName string) (*FieldRecord, bool) {
	t, ok := s.Types[typeName]
	if !ok {
		return nil, false
	}
	f, ok := t.Fields[fieldName]
	return f, ok
}

// FieldSubgraphs returns every subgraph that can resolve (typeName, fieldName).
func (s *Schema) FieldSubgraphs(typeName, fieldName string) []string {
	f, ok := s.Field(typeName, fieldName)
	if !ok {
		return nil
	}
	return f.Subgraphs
}

// RootTypeName returns the object type name for an operation kind.
func (s *Schema) RootTypeName(op ast.Operation) string {
	switch op {
	case ast.Mutation:
		return s.MutationType
	case ast.Subscription:
		return s.SubscriptionType
	default:
		return s.QueryType
	}
}

// IsEntity reports whether typeName has at least one @key in the composed schema.
func (s *Schema) IsEntity(typeName string) bool {
	t, ok := s.Types[typeName]
	return ok && len(t.KeyFields) > 0
}

// EntityOwners returns the subgraph names that define typeName as an entity (have a @key for it).
func (s *Schema) EntityOwners(typeName string) []string {
	t, ok := s.Types[typeName]
	if !ok {
		return nil
	}
	owners := make([]string, 0, len(t.KeyFields))
	for sg := range t.KeyFields {
		owners = append(owners, sg)
	}
	return owners
}

// PossibleTypes returns the concrete object type names an interface/union can hold.
// For object types it returns the type itself.
func (s *Schema) PossibleTypes(typeName string) []string {
	t, ok := s.Types[typeName]
	if !ok {
		return nil
	}
	if t.Kind == KindObject {
		return []string{typeName}
	}
	return t.PossibleTypes
}

// IsConcreteType reports whether typeName names a single object type whose
// __typename is therefore known statically, as opposed to an interface/union
// position whose concrete type depends on the data a subgraph returns.
func (s *Schema) IsConcreteType(typeName string) bool {
	t, ok := s.Types[typeName]
	return ok && t.Kind == KindObject
}
