package plan

import (
	"sort"
	"strings"
)

// ShapeClassKind distinguishes the three equivalence-class buckets §4.4
// partitions a polymorphic position's possible types into.
type ShapeClassKind int

const (
	// ClassOne is a class with exactly one member type.
	ClassOne ShapeClassKind = iota
	// ClassMany is a class with more than one member sharing an identical
	// visible field set that was not chosen as the Remaining class (another
	// class at least as large was found first).
	ClassMany
	// ClassRemaining is the single largest class, the complement bucket
	// that avoids compiling one shape per type when most implementors of
	// a wide interface select the same fields.
	ClassRemaining
)

// ShapeClass is one equivalence class: every member type has the exact
// same set of selected fields (and, if any member required its own
// literal `__typename` field, that member stands alone).
type ShapeClass struct {
	Kind  ShapeClassKind
	Types []string
}

// partitionShapes groups possible into disjoint equivalence classes by the
// signature signatureOf returns for each type, satisfying §4.4's testable
// partitioning law: the returned classes are disjoint, their union equals
// possible, and every class's members share one signature. At most one
// class is tagged ClassRemaining — the largest class with more than one
// member — mirroring the spec's complement-bucket optimization for wide
// interfaces whose implementors mostly share the same fields.
func partitionShapes(possible []string, signatureOf func(typeName string) string) []ShapeClass {
	byKey := map[string][]string{}
	var order []string
	for _, t := range possible {
		key := signatureOf(t)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], t)
	}

	remainingIdx := -1
	remainingSize := 1
	for i, key := range order {
		if len(byKey[key]) > remainingSize {
			remainingIdx = i
			remainingSize = len(byKey[key])
		}
	}

	classes := make([]ShapeClass, 0, len(order))
	for i, key := range order {
		members := byKey[key]
		kind := ClassOne
		switch {
		case i == remainingIdx:
			kind = ClassRemaining
		case len(members) > 1:
			kind = ClassMany
		}
		classes = append(classes, ShapeClass{Kind: kind, Types: append([]string(nil), members...)})
	}
	return classes
}

// typeFieldSignature computes typeName's visible-field signature from the
// enclosing partition's flat DataField list: the sorted set of response
// keys attached to that type. A type that itself requests a literal
// `__typename` (df.Typename) is given a signature unique to it, since that
// field's rendered value is per-instance and must never be shared with
// another type's shape.
func typeFieldSignature(fields []DataField, typeName string) string {
	var keys []string
	literalTypename := false
	for _, df := range fields {
		if df.ParentType != typeName {
			continue
		}
		if df.Typename {
			literalTypename = true
			continue
		}
		keys = append(keys, df.ResponseKey)
	}
	sort.Strings(keys)
	sig := strings.Join(keys, "\x00")
	if literalTypename {
		sig = "\x01" + typeName + "\x00" + sig
	}
	return sig
}
