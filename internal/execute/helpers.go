package execute

import (
	"encoding/json"
	"fmt"

	"github.com/n9te9/federation-gateway/internal/gqlerr"
)

// subgraphErrorEnvelope is the shape of one entry in a GraphQL response's
// top-level "errors" array, just enough to surface the message upstream.
type subgraphErrorEnvelope struct {
	Message string `json:"message"`
}

func subgraphEnvelopeErrors(subgraph string, raw *RawResponse) []*gqlerr.Error {
	var errs []*gqlerr.Error
	for _, rawErr := range raw.Errors {
		var env subgraphErrorEnvelope
		if err := json.Unmarshal(rawErr, &env); err != nil {
			errs = append(errs, gqlerr.SubgraphResponse(subgraph, fmt.Errorf("malformed subgraph error entry: %w", err)))
			continue
		}
		errs = append(errs, gqlerr.SubgraphResponse(subgraph, fmt.Errorf("%s", env.Message)))
	}
	return errs
}

// splitEntitiesList unwraps the `{"_entities": [...]}` envelope returned by
// a federation entity fetch into its individual raw JSON elements, in
// request order so they line up with the representations sent.
func splitEntitiesList(data json.RawMessage) ([]json.RawMessage, error) {
	var envelope struct {
		Entities []json.RawMessage `json:"_entities"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode _entities envelope: %w", err)
	}
	return envelope.Entities, nil
}
