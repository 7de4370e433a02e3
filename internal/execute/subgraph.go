package execute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is one subgraph round trip: a GraphQL document plus variables.
type Request struct {
	Subgraph  string
	URL       string
	Query     string
	Variables map[string]any
}

// RawResponse is a subgraph's unprocessed GraphQL response, kept as raw
// JSON so the response package can shape-decode it directly rather than
// through an intermediate map[string]any.
type RawResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// Subgraph is the capability the executor calls to perform one partition's
// round trip. An HTTP implementation is provided below; tests and
// alternative transports (gRPC, in-process) substitute their own.
type Subgraph interface {
	Execute(ctx context.Context, req Request) (*RawResponse, error)
}

// HTTPSubgraph posts GraphQL requests as plain JSON over net/http, the
// same transport the teacher's executor_v2.go sendRequest used. The client
// is used as given; subgraph calls are not wrapped in any tracing
// instrumentation.
type HTTPSubgraph struct {
	Client *http.Client
}

// NewHTTPSubgraph builds an HTTPSubgraph with a bounded per-request timeout.
func NewHTTPSubgraph(client *http.Client, timeout time.Duration) *HTTPSubgraph {
	if client == nil {
		client = http.DefaultClient
	}
	cloned := *client
	if timeout > 0 {
		cloned.Timeout = timeout
	}
	return &HTTPSubgraph{Client: &cloned}
}

type graphQLRequestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (h *HTTPSubgraph) Execute(ctx context.Context, req Request) (*RawResponse, error) {
	body, err := json.Marshal(graphQLRequestBody{Query: req.Query, Variables: req.Variables})
	if err != nil {
		return nil, fmt.Errorf("marshal subgraph request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build subgraph request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("subgraph %q unreachable: %w", req.Subgraph, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read subgraph %q response: %w", req.Subgraph, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("subgraph %q returned status %d: %s", req.Subgraph, resp.StatusCode, string(respBody))
	}

	var raw RawResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decode subgraph %q envelope: %w", req.Subgraph, err)
	}
	return &raw, nil
}
