package execute

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/schema"
)

func astOperation(op string) ast.Operation {
	switch op {
	case "mutation":
		return ast.Mutation
	case "subscription":
		return ast.Subscription
	default:
		return ast.Query
	}
}

// BuildQuery renders the GraphQL document one partition sends to its
// subgraph. Root partitions render a normal operation against the root
// field; entity/lookup partitions render the federation `_entities` query
// against a `$representations` variable the executor fills in per batch.
// Grounded on the teacher's executor_v2.go queryBuilder.Build / entity step
// construction, generalized to walk our partition field list instead of a
// fixed per-step template.
func BuildQuery(sch *schema.Schema, pl *plan.Plan, part *plan.Partition) string {
	switch part.Kind {
	case schema.ResolverEntity, schema.ResolverLookup:
		sel := buildSelectionSet(sch, pl, part.EntityType, part.Fields)
		return fmt.Sprintf(
			`query($representations: [_Any!]!) { _entities(representations: $representations) { ... on %s { %s } } }`,
			part.EntityType, sel)
	default:
		rootType := sch.RootTypeName(astOperation(part.Operation))
		rootField, _ := sch.Field(rootType, part.RootField)
		childType := rootType
		if rootField != nil {
			childType = rootField.ReturnType
		}
		sel := buildSelectionSet(sch, pl, childType, part.Fields)
		return fmt.Sprintf("%s { %s { %s } }", part.Operation, part.RootField, sel)
	}
}

// buildSelectionSet renders every DataField belonging to typeName. A field
// that hands off to a nested partition (HasChild) is not itself selected —
// the subgraph serving typeName cannot resolve it — instead the nested
// partition's own @key fields are selected so the executor can build an
// entity representation from this object once it comes back.
func buildSelectionSet(sch *schema.Schema, pl *plan.Plan, typeName string, fields []plan.DataField) string {
	var sb strings.Builder
	seen := make(map[string]bool)
	for _, f := range fields {
		if f.ParentType != typeName || f.Typename {
			continue
		}
		if f.HasChild {
			child := pl.Partitions[f.Child]
			for _, kf := range child.KeyFields.Names() {
				if seen[kf] {
					continue
				}
				seen[kf] = true
				sb.WriteString(kf)
				sb.WriteString(" ")
			}
			continue
		}
		if seen[f.FieldName] {
			continue
		}
		seen[f.FieldName] = true
		rec, ok := sch.Field(typeName, f.FieldName)
		if ok && isObjectLike(sch, rec.ReturnType) {
			sb.WriteString(f.FieldName)
			sb.WriteString(" { ")
			sb.WriteString(buildSelectionSet(sch, pl, rec.ReturnType, fields))
			sb.WriteString("} ")
		} else {
			sb.WriteString(f.FieldName)
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

func isObjectLike(sch *schema.Schema, typeName string) bool {
	t, ok := sch.Types[typeName]
	if !ok {
		return false
	}
	switch t.Kind {
	case schema.KindObject, schema.KindInterface, schema.KindUnion:
		return true
	default:
		return false
	}
}
