package execute

import (
	"sync"

	"github.com/n9te9/federation-gateway/internal/plan"
)

// Status is one partition's position in the execution state machine (C5).
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
)

// State tracks every partition's Status for one in-flight request. Mutated
// only by the orchestrating goroutine in Executor.Execute, mirroring the
// teacher's mutex-guarded ExecutionContext in federation/executor/executor_v2.go
// generalized from a flat steps slice to the partition DAG's dependency
// edges (ParentPartition, MutationExecutedAfter).
type State struct {
	mu     sync.Mutex
	status map[plan.PartitionID]Status
	plan   *plan.Plan
}

// NewState creates execution state with every partition Pending.
func NewState(p *plan.Plan) *State {
	s := &State{status: make(map[plan.PartitionID]Status, len(p.Partitions)), plan: p}
	for _, part := range p.Partitions {
		s.status[part.ID] = StatusPending
	}
	return s
}

// Executable returns every Pending partition whose dependencies have all
// completed: its parent partition (if any) is Done, and — for mutation
// root partitions — its MutationExecutedAfter predecessor is Done.
func (s *State) Executable() []plan.PartitionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []plan.PartitionID
	for _, part := range s.plan.Partitions {
		if s.status[part.ID] != StatusPending {
			continue
		}
		if part.HasParent && s.status[part.ParentPartition] != StatusDone {
			continue
		}
		if part.HasMutationPredecessor && s.status[part.MutationExecutedAfter] != StatusDone {
			continue
		}
		ready = append(ready, part.ID)
	}
	return ready
}

func (s *State) MarkRunning(id plan.PartitionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = StatusRunning
}

func (s *State) MarkDone(id plan.PartitionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = StatusDone
}

func (s *State) MarkFailed(id plan.PartitionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = StatusFailed
	// A pending partition whose parent or mutation predecessor failed can
	// never become executable; settle it as failed too. Partitions are
	// stored parents-first, so one pass covers every descendant.
	for _, part := range s.plan.Partitions {
		if s.status[part.ID] != StatusPending {
			continue
		}
		if (part.HasParent && s.status[part.ParentPartition] == StatusFailed) ||
			(part.HasMutationPredecessor && s.status[part.MutationExecutedAfter] == StatusFailed) {
			s.status[part.ID] = StatusFailed
		}
	}
}

// AllSettled reports whether every partition has reached Done or Failed.
func (s *State) AllSettled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.status {
		if st != StatusDone && st != StatusFailed {
			return false
		}
	}
	return true
}
