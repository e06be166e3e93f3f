package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/moltpulse/moltpulse/internal/trace"
)

// MemoryTraceStore keeps traces in process memory. Used for tests and for
// deployments that only need the current process's run history.
type MemoryTraceStore struct {
	mu     sync.RWMutex
	traces map[string][]byte
	order  []string
}

// NewMemoryTraceStore builds an empty in-memory store.
func NewMemoryTraceStore() *MemoryTraceStore {
	return &MemoryTraceStore{traces: make(map[string][]byte)}
}

// SaveTrace stores a deep copy of rt via its JSON form, so later mutations
// of the live trace do not leak into the store.
func (s *MemoryTraceStore) SaveTrace(_ context.Context, rt *trace.RunTrace) error {
	data, err := json.Marshal(rt)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.traces[rt.RunID]; !exists {
		s.order = append(s.order, rt.RunID)
	}
	s.traces[rt.RunID] = data
	return nil
}

// GetTrace returns the stored trace for runID.
func (s *MemoryTraceStore) GetTrace(_ context.Context, runID string) (*trace.RunTrace, error) {
	s.mu.RLock()
	data, ok := s.traces[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var rt trace.RunTrace
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, err
	}
	return &rt, nil
}

// ListRuns returns summaries of the most recent runs, newest first.
func (s *MemoryTraceStore) ListRuns(_ context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(s.order))
	for _, runID := range s.order {
		var rt trace.RunTrace
		if err := json.Unmarshal(s.traces[runID], &rt); err != nil {
			return nil, err
		}
		summaries = append(summaries, RunSummary{
			RunID:      rt.RunID,
			Domain:     rt.Domain,
			Profile:    rt.Profile,
			ReportType: rt.ReportType,
			Depth:      rt.Depth,
			StartedAt:  rt.StartedAt,
			DurationMS: rt.DurationMS,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
