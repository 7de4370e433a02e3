// Package gqlerr implements the GraphQL error taxonomy: structured errors
// with a stable extensions.code, carried through planning and execution and
// serialized into the standard {message, locations, path, extensions} shape.
// Grounded on the teacher's executor error handling (recordError/
// buildErrorPath in federation/executor/executor_v2.go), generalized from
// ad hoc strings into a typed Code enum with a dedicated constructor per
// failure class.
package gqlerr

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Code is one of the gateway's stable error classifications.
type Code string

const (
	CodeParsing            Code = "OPERATION_PARSING_ERROR"
	CodeValidation         Code = "OPERATION_VALIDATION_ERROR"
	CodeSubgraphRequest    Code = "SUBGRAPH_REQUEST_ERROR"
	CodeSubgraphResponse   Code = "SUBGRAPH_RESPONSE_ERROR"
	CodeHook               Code = "HOOK_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

// PathSegment is one step of a GraphQL response path: either a field name
// or a list index.
type PathSegment struct {
	Field string
	Index int
	IsIndex bool
}

// Location is a 1-based line/column into the client's operation document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a single GraphQL error entry as returned to the client.
type Error struct {
	Message   string                 `json:"message"`
	Locations []Location             `json:"locations,omitempty"`
	Path      []any                  `json:"path,omitempty"`
	Code      Code                   `json:"-"`
	Extra     map[string]any         `json:"-"`
}

// MarshalJSON flattens Code/Extra into the extensions object on output.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	ext := map[string]any{"code": string(e.Code)}
	for k, v := range e.Extra {
		ext[k] = v
	}
	return json.Marshal(struct {
		*alias
		Extensions map[string]any `json:"extensions"`
	}{alias: (*alias)(e), Extensions: ext})
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with a path built from segs, each rendered as a
// string field name or an int list index.
func New(code Code, message string, segs ...PathSegment) *Error {
	e := &Error{Message: message, Code: code}
	for _, s := range segs {
		if s.IsIndex {
			e.Path = append(e.Path, s.Index)
		} else {
			e.Path = append(e.Path, s.Field)
		}
	}
	return e
}

func Field(name string) PathSegment   { return PathSegment{Field: name} }
func Index(i int) PathSegment         { return PathSegment{Index: i, IsIndex: true} }

// Parsing wraps a gqlparser parse failure.
func Parsing(err error) *Error {
	return &Error{Message: err.Error(), Code: CodeParsing}
}

// Validation reports a static validation failure (unknown field,
// inaccessible type, wrong argument type, ...).
func Validation(message string, segs ...PathSegment) *Error {
	return New(CodeValidation, message, segs...)
}

// SubgraphRequest reports a transport-level failure reaching a subgraph
// (connection refused, timeout, non-2xx status).
func SubgraphRequest(subgraph string, err error, segs ...PathSegment) *Error {
	e := New(CodeSubgraphRequest, fmt.Sprintf("subgraph %q request failed: %v", subgraph, err), segs...)
	e.Extra = map[string]any{"subgraph": subgraph}
	return e
}

// SubgraphResponse reports a protocol-level failure decoding a subgraph's
// response body (malformed JSON, shape mismatch).
func SubgraphResponse(subgraph string, err error, segs ...PathSegment) *Error {
	e := New(CodeSubgraphResponse, fmt.Sprintf("subgraph %q response error: %v", subgraph, err), segs...)
	e.Extra = map[string]any{"subgraph": subgraph}
	return e
}

// Hook reports a failure from a user-supplied pre/post-execution hook.
func Hook(name string, err error) *Error {
	return New(CodeHook, fmt.Sprintf("hook %q failed: %v", name, err))
}

// Unauthorized reports an @authorized directive rejection.
func Unauthorized(message string, segs ...PathSegment) *Error {
	return New(CodeUnauthorized, message, segs...)
}

// RateLimited reports a request refused by a rate limiter.
func RateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

// Internal reports a gateway-side bug (invariant violation, planner/solver
// internal error surfaced to the client as an opaque failure).
func Internal(err error) *Error {
	return New(CodeInternal, "internal server error")
}
