package schema

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Compose merges one subgraph's SDL into the accumulating Schema.
// Mirrors the teacher's three-pass SuperGraphV2 composition (merge type
// definitions, then extensions, then directive-derived metadata) but
// builds our own TypeRecord/FieldRecord model instead of a re-merged AST.
func (s *Schema) Compose(subgraph string, doc *ast.SchemaDocument) error {
	for _, def := range doc.Definitions {
		if err := s.composeDefinition(subgraph, def); err != nil {
			return err
		}
	}
	for _, ext := range doc.Extensions {
		if err := s.composeDefinition(subgraph, ext); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) composeDefinition(subgraph string, def *ast.Definition) error {
	switch def.Kind {
	case ast.Object:
		return s.composeObjectLike(subgraph, def, KindObject)
	case ast.Interface:
		if err := s.composeObjectLike(subgraph, def, KindInterface); err != nil {
			return err
		}
		return nil
	case ast.Union:
		t := s.typeRecord(def.Name, KindUnion)
		for _, m := range def.Types {
			t.PossibleTypes = appendUnique(t.PossibleTypes, m)
		}
		return nil
	case ast.Enum:
		t := s.typeRecord(def.Name, KindEnum)
		if t.EnumValues == nil {
			t.EnumValues = make(map[string]bool)
		}
		for _, v := range def.EnumValues {
			t.EnumValues[v.Name] = true
		}
		return nil
	case ast.Scalar:
		s.typeRecord(def.Name, KindScalar)
		return nil
	case ast.InputObject:
		s.typeRecord(def.Name, KindInputObject)
		return nil
	}
	return nil
}

func (s *Schema) typeRecord(name string, kind TypeKind) *TypeRecord {
	t, ok := s.Types[name]
	if !ok {
		t = &TypeRecord{Name: name, Kind: kind, Fields: make(map[string]*FieldRecord), KeyFields: make(map[string]*FieldSet)}
		s.Types[name] = t
	}
	return t
}

func (s *Schema) composeObjectLike(subgraph string, def *ast.Definition, kind TypeKind) error {
	t := s.typeRecord(def.Name, kind)
	for _, iface := range def.Interfaces {
		t.Interfaces = appendUnique(t.Interfaces, iface)
		ifaceType := s.typeRecord(iface, KindInterface)
		ifaceType.PossibleTypes = appendUnique(ifaceType.PossibleTypes, def.Name)
	}

	if hasDirective(def.Directives, "inaccessible") {
		t.InaccessibleObj = true
	}

	// @key(fields: "...") may repeat for composite/multiple keys; we keep the first.
	for _, d := range def.Directives {
		if d.Name != "key" {
			continue
		}
		raw := directiveArgString(d, "fields")
		if raw == "" {
			continue
		}
		fs, err := ParseFieldSet(raw)
		if err != nil {
			return fmt.Errorf("type %s @key: %w", def.Name, err)
		}
		if _, exists := t.KeyFields[subgraph]; !exists {
			t.KeyFields[subgraph] = fs
		}
	}

	for _, fieldDef := range def.Fields {
		if err := s.composeField(subgraph, def.Name, fieldDef); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) composeField(subgraph, typeName string, fieldDef *ast.FieldDefinition) error {
	t := s.Types[typeName]
	f, ok := t.Fields[fieldDef.Name]
	if !ok {
		f = &FieldRecord{
			Name:       fieldDef.Name,
			ParentType: typeName,
			Resolvers:  make(map[string]*ResolverDefinition),
			Requires:   make(map[string]*FieldSet),
			External:   make(map[string]bool),
		}
		f.ReturnType, f.Wrapping = unwrapType(fieldDef.Type)
		for _, arg := range fieldDef.Arguments {
			f.Arguments = append(f.Arguments, FieldArgument{Name: arg.Name, Type: arg.Type})
		}
		t.Fields[fieldDef.Name] = f
	}

	isExternal := hasDirective(fieldDef.Directives, "external")
	if isExternal {
		f.External[subgraph] = true
	}
	if hasDirective(fieldDef.Directives, "shareable") {
		f.Shareable = true
	}
	if hasDirective(fieldDef.Directives, "inaccessible") {
		f.Inaccessible = true
	}
	if authDir := firstDirective(fieldDef.Directives, "authorized"); authDir != nil {
		f.Authorized = true
		for _, scope := range directiveArgStringList(authDir, "scopes") {
			f.RequiredScopes = appendUnique(f.RequiredScopes, scope)
		}
	}

	if raw := directiveArgString(firstDirective(fieldDef.Directives, "requires"), "fields"); raw != "" {
		fs, err := ParseFieldSet(raw)
		if err != nil {
			return fmt.Errorf("field %s.%s @requires: %w", typeName, fieldDef.Name, err)
		}
		f.Requires[subgraph] = fs
	}
	if raw := directiveArgString(firstDirective(fieldDef.Directives, "provides"), "fields"); raw != "" {
		fs, err := ParseFieldSet(raw)
		if err != nil {
			return fmt.Errorf("field %s.%s @provides: %w", typeName, fieldDef.Name, err)
		}
		f.Provides = fs
	}

	// A field not marked @external is directly resolvable in this subgraph.
	if !isExternal {
		f.Subgraphs = appendUnique(f.Subgraphs, subgraph)
		f.Resolvers[subgraph] = s.resolver(&ResolverDefinition{
			Kind:       ResolverRoot,
			Subgraph:   subgraph,
			EntityType: typeName,
			RootField:  fieldDef.Name,
		})
	}

	if lookupDir := firstDirective(fieldDef.Directives, "lookup"); lookupDir != nil {
		f.Resolvers[subgraph].Kind = ResolverLookup
		f.Resolvers[subgraph].Injection = lookupInjection(fieldDef)
	}

	return nil
}

// lookupInjection maps each @lookup argument to the source field it is
// populated from, honoring an @is(field: "...") override on the argument.
func lookupInjection(fieldDef *ast.FieldDefinition) map[string]string {
	injection := make(map[string]string, len(fieldDef.Arguments))
	for _, arg := range fieldDef.Arguments {
		source := arg.Name
		if isDir := firstDirective(arg.Directives, "is"); isDir != nil {
			if v := directiveArgString(isDir, "field"); v != "" {
				source = v
			}
		}
		injection[arg.Name] = source
	}
	return injection
}

func unwrapType(t *ast.Type) (string, Wrapping) {
	var w Wrapping
	cur := t
	for cur.Elem != nil {
		if cur.NonNull {
			w = append(w, WrapNonNull)
		}
		w = append(w, WrapList)
		cur = cur.Elem
	}
	if cur.NonNull {
		w = append(w, WrapNonNull)
	}
	return cur.NamedType, w
}

func hasDirective(dirs ast.DirectiveList, name string) bool {
	return firstDirective(dirs, name) != nil
}

func firstDirective(dirs ast.DirectiveList, name string) *ast.Directive {
	for _, d := range dirs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func directiveArgString(d *ast.Directive, argName string) string {
	if d == nil {
		return ""
	}
	for _, a := range d.Arguments {
		if a.Name == argName && a.Value != nil {
			return strings.Trim(a.Value.Raw, "\"")
		}
	}
	return ""
}

// directiveArgStringList reads a [String] argument such as
// @authorized(scopes: ["admin", "billing"]).
func directiveArgStringList(d *ast.Directive, argName string) []string {
	if d == nil {
		return nil
	}
	for _, a := range d.Arguments {
		if a.Name != argName || a.Value == nil {
			continue
		}
		out := make([]string, 0, len(a.Value.Children))
		for _, child := range a.Value.Children {
			if child.Value != nil {
				out = append(out, strings.Trim(child.Value.Raw, "\""))
			}
		}
		return out
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
