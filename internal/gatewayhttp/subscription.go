package gatewayhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/n9te9/federation-gateway/internal/gqlerr"
)

// graphqlTransportWSSubprotocol is the subprotocol graphql-ws clients
// (Apollo Client, urql) negotiate for subscriptions over WebSocket.
const graphqlTransportWSSubprotocol = "graphql-transport-ws"

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{graphqlTransportWSSubprotocol},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is the envelope shared by every graphql-transport-ws message,
// grounded on the teacher's subscribeMessage/outgoing message split in
// graphql/server.go, generalized from thunder's bespoke frame types to the
// graphql-transport-ws protocol's {id, type, payload} shape.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// SubscriptionHandler upgrades a GraphQL subscription request to a
// WebSocket running the graphql-transport-ws protocol: connection_init,
// subscribe, complete/error, ping/pong. Each subscribe executes the
// operation once (concurrent executions bounded by Executor.Semaphore) and
// answers with a single `next` frame followed by `complete`.
func (g *Gateway) SubscriptionHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := &wsSession{gw: g, conn: conn, cancels: make(map[string]context.CancelFunc)}
		s.run()
	})
}

type wsSession struct {
	gw      *Gateway
	conn    *websocket.Conn
	initted bool
	cancels map[string]context.CancelFunc
}

func (s *wsSession) run() {
	defer s.conn.Close()
	defer s.cancelAll()

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "connection_init":
			s.initted = true
			_ = s.conn.WriteJSON(wsMessage{Type: "connection_ack"})
		case "ping":
			_ = s.conn.WriteJSON(wsMessage{Type: "pong"})
		case "subscribe":
			if !s.initted {
				_ = s.conn.WriteJSON(wsMessage{ID: msg.ID, Type: "error"})
				return
			}
			s.handleSubscribe(msg.ID, msg.Payload)
		case "complete":
			s.cancel(msg.ID)
		}
	}
}

func (s *wsSession) handleSubscribe(id string, raw json.RawMessage) {
	var payload subscribePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendError(id, gqlerr.Validation("malformed subscribe payload: "+err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[id] = cancel

	go func() {
		defer s.cancel(id)

		if err := s.gw.Executor.Semaphore.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.gw.Executor.Semaphore.Release(1)

		sch := s.gw.Registry.Current()
		entry, gqlErr := s.gw.prepare(ctx, sch, graphQLRequest{Query: payload.Query, OperationName: payload.OperationName, Variables: payload.Variables})
		if gqlErr != nil {
			s.sendError(id, gqlErr)
			return
		}

		result, err := s.gw.Executor.Execute(ctx, entry.Plan, entry.Compiled, payload.Variables)
		if err != nil {
			s.sendError(id, gqlerr.Internal(err))
			return
		}

		payloadBytes, err := json.Marshal(graphQLResponse{Data: renderFields(result, entry.Compiled)})
		if err != nil {
			s.sendError(id, gqlerr.Internal(err))
			return
		}
		_ = s.conn.WriteJSON(wsMessage{ID: id, Type: "next", Payload: payloadBytes})
		_ = s.conn.WriteJSON(wsMessage{ID: id, Type: "complete"})
	}()
}

func (s *wsSession) sendError(id string, e *gqlerr.Error) {
	payload, err := json.Marshal([]*gqlerr.Error{e})
	if err != nil {
		slog.Default().Error("failed to encode subscription error", "error", err)
		return
	}
	_ = s.conn.WriteJSON(wsMessage{ID: id, Type: "error", Payload: payload})
}

func (s *wsSession) cancel(id string) {
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

func (s *wsSession) cancelAll() {
	for _, cancel := range s.cancels {
		cancel()
	}
}
