// Package registry exposes the schema-registration HTTP endpoint and the
// filesystem watcher that keep the gateway's composed schema current.
// Adapted from the teacher's registry/registry.go (channel-driven
// addGatewayHost loop, /schema/registration handler decoding a
// RegistrationRequest) retargeted from gossiping gateway hosts to
// recomposing our own schema.SnapshotRegistry whenever a subgraph's SDL
// changes, watched with fsnotify the way movio-bramble's dependency stack
// suggests a federation gateway would.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/n9te9/federation-gateway/internal/config"
	"github.com/n9te9/federation-gateway/internal/schema"
)

// Registry owns the SnapshotRegistry and the subgraph SDL sources it was
// built from, so it can recompose on demand.
type Registry struct {
	snapshots *schema.SnapshotRegistry
	subgraphs []config.SubgraphConfig
	logger    *slog.Logger
}

// New composes an initial schema from cfg.Subgraphs and wraps it in a
// Registry ready to serve registration requests and watch for changes.
func New(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	sch, err := compose(cfg.Subgraphs)
	if err != nil {
		return nil, err
	}
	return &Registry{
		snapshots: schema.NewSnapshotRegistry(sch),
		subgraphs: cfg.Subgraphs,
		logger:    logger,
	}, nil
}

// Current returns the schema snapshot in effect right now.
func (r *Registry) Current() *schema.Schema {
	return r.snapshots.Current()
}

func compose(subgraphs []config.SubgraphConfig) (*schema.Schema, error) {
	sch := schema.New()
	for _, sg := range subgraphs {
		raw, err := os.ReadFile(sg.SDLPath)
		if err != nil {
			return nil, fmt.Errorf("read subgraph %q SDL: %w", sg.Name, err)
		}
		doc, err := schema.ParseSubgraphSDL(sg.Name, string(raw))
		if err != nil {
			return nil, err
		}
		if err := sch.Compose(sg.Name, doc); err != nil {
			return nil, err
		}
	}
	return sch, nil
}

// Reload re-reads every subgraph's SDL file and, if composition succeeds,
// swaps it into the SnapshotRegistry. In-flight requests keep using their
// already-loaded snapshot (see schema.SnapshotRegistry).
func (r *Registry) Reload() error {
	sch, err := compose(r.subgraphs)
	if err != nil {
		return err
	}
	r.snapshots.Replace(sch)
	return nil
}

// WatchSDLFiles watches every configured subgraph's SDL file and triggers
// Reload on any write, logging (but not failing on) a bad recomposition so
// a single broken subgraph deploy can't take the whole gateway down.
func (r *Registry) WatchSDLFiles() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, sg := range r.subgraphs {
		if err := watcher.Add(sg.SDLPath); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch subgraph %q SDL: %w", sg.Name, err)
		}
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.Reload(); err != nil {
					r.logger.Error("schema reload failed", "path", event.Name, "error", err)
					continue
				}
				r.logger.Info("schema reloaded", "path", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Error("schema watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}

// RegistrationRequest is the body of a subgraph's self-registration call,
// used in place of the teacher's gossip-based RegistrationGraph for
// dynamic (non-file-based) subgraph onboarding.
type RegistrationRequest struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	SDL      string `json:"sdl"`
}

// HTTPHandler returns the /schema/registration endpoint: a subgraph posts
// its own SDL and endpoint, the gateway recomposes its schema to include
// it, and the new snapshot goes live immediately on success.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var reg RegistrationRequest
		if err := json.NewDecoder(req.Body).Decode(&reg); err != nil {
			http.Error(w, fmt.Sprintf("invalid registration body: %v", err), http.StatusBadRequest)
			return
		}

		doc, err := schema.ParseSubgraphSDL(reg.Name, reg.SDL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		next := schema.New()
		for _, sg := range r.subgraphs {
			raw, err := os.ReadFile(sg.SDLPath)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			existingDoc, err := schema.ParseSubgraphSDL(sg.Name, string(raw))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err := next.Compose(sg.Name, existingDoc); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		if err := next.Compose(reg.Name, doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		r.snapshots.Replace(next)
		w.WriteHeader(http.StatusNoContent)
	})
}
