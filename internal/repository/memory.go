package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// The in-memory repositories store snapshots, never the caller's pointer,
// so later mutations by the caller are invisible until written back.

// MemorySourceRepository is a LogSourceRepository held in process memory.
type MemorySourceRepository struct {
	mu      sync.RWMutex
	sources map[string]domain.LogSourceProps
	order   []string
}

// NewMemorySourceRepository creates an empty repository.
func NewMemorySourceRepository() *MemorySourceRepository {
	return &MemorySourceRepository{sources: make(map[string]domain.LogSourceProps)}
}

func (r *MemorySourceRepository) Save(_ context.Context, source *domain.LogSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[source.ID()]; !ok {
		r.order = append(r.order, source.ID())
	}
	r.sources[source.ID()] = source.Snapshot()
	return nil
}

func (r *MemorySourceRepository) Update(_ context.Context, source *domain.LogSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[source.ID()]; !ok {
		return domain.NotFoundError("Log source", source.ID())
	}
	r.sources[source.ID()] = source.Snapshot()
	return nil
}

func (r *MemorySourceRepository) FindByID(_ context.Context, id string) (*domain.LogSource, error) {
	r.mu.RLock()
	props, ok := r.sources[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundError("Log source", id)
	}
	return domain.RestoreLogSource(props)
}

func (r *MemorySourceRepository) FindAll(ctx context.Context) ([]*domain.LogSource, error) {
	return r.find(func(domain.LogSourceProps) bool { return true })
}

func (r *MemorySourceRepository) FindByType(_ context.Context, sourceType domain.SourceType) ([]*domain.LogSource, error) {
	return r.find(func(p domain.LogSourceProps) bool { return p.Type == sourceType })
}

func (r *MemorySourceRepository) find(keep func(domain.LogSourceProps) bool) ([]*domain.LogSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.LogSource, 0, len(r.order))
	for _, id := range r.order {
		props := r.sources[id]
		if !keep(props) {
			continue
		}
		s, err := domain.RestoreLogSource(props)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *MemorySourceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[id]; !ok {
		return nil
	}
	delete(r.sources, id)
	r.order = removeID(r.order, id)
	return nil
}

// MemoryEntryRepository is a LogEntryRepository held in process memory.
type MemoryEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.LogEntryProps
	order   []string
}

// NewMemoryEntryRepository creates an empty repository.
func NewMemoryEntryRepository() *MemoryEntryRepository {
	return &MemoryEntryRepository{entries: make(map[string]domain.LogEntryProps)}
}

func (r *MemoryEntryRepository) SaveBatch(_ context.Context, entries []*domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		if _, ok := r.entries[e.ID()]; !ok {
			r.order = append(r.order, e.ID())
		}
		r.entries[e.ID()] = e.Snapshot()
	}
	return nil
}

func (r *MemoryEntryRepository) FindByID(_ context.Context, id string) (*domain.LogEntry, error) {
	r.mu.RLock()
	props, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundError("Log entry", id)
	}
	return domain.RestoreLogEntry(props)
}

func (r *MemoryEntryRepository) FindBySourceID(_ context.Context, sourceID string, limit int) ([]*domain.LogEntry, error) {
	r.mu.RLock()
	var matched []domain.LogEntryProps
	for _, id := range r.order {
		if p := r.entries[id]; p.SourceID == sourceID {
			matched = append(matched, p)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*domain.LogEntry, 0, len(matched))
	for _, p := range matched {
		e, err := domain.RestoreLogEntry(p)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryEntryRepository) DeleteBySourceID(_ context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	for _, id := range r.order {
		if r.entries[id].SourceID == sourceID {
			delete(r.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return nil
}

// MemorySessionRepository is a SessionRepository held in process memory.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionProps
}

// NewMemorySessionRepository creates an empty repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domain.SessionProps)}
}

func snapshotSession(s *domain.LogAnalysisSession) (domain.SessionProps, error) {
	props := s.Snapshot()
	source, err := domain.RestoreLogSource(props.Source.Snapshot())
	if err != nil {
		return domain.SessionProps{}, err
	}
	props.Source = source
	return props, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, session *domain.LogAnalysisSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID()]; ok {
		return domain.ConflictError("Session with ID %q already exists", session.ID())
	}
	props, err := snapshotSession(session)
	if err != nil {
		return err
	}
	props.Version = 1
	r.sessions[session.ID()] = props
	session.SetVersion(1)
	return nil
}

func (r *MemorySessionRepository) Update(_ context.Context, session *domain.LogAnalysisSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID()]
	if !ok {
		return domain.NotFoundError("Session", session.ID())
	}
	if stored.Version != session.Version() {
		return domain.StaleVersionError("Session", session.ID(), session.Version(), stored.Version)
	}
	props, err := snapshotSession(session)
	if err != nil {
		return err
	}
	props.Version = stored.Version + 1
	r.sessions[session.ID()] = props
	session.SetVersion(props.Version)
	return nil
}

func (r *MemorySessionRepository) FindByID(_ context.Context, id string) (*domain.LogAnalysisSession, error) {
	r.mu.RLock()
	props, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundError("Session", id)
	}
	return domain.RestoreSession(props)
}

func (r *MemorySessionRepository) FindBySourceID(_ context.Context, sourceID string) ([]*domain.LogAnalysisSession, error) {
	return r.find(func(p domain.SessionProps) bool { return p.Source.ID() == sourceID })
}

func (r *MemorySessionRepository) FindActive(context.Context) ([]*domain.LogAnalysisSession, error) {
	return r.find(func(p domain.SessionProps) bool { return p.Status.IsActive() })
}

func (r *MemorySessionRepository) FindAll(context.Context) ([]*domain.LogAnalysisSession, error) {
	return r.find(func(domain.SessionProps) bool { return true })
}

// find returns matching sessions, newest first.
func (r *MemorySessionRepository) find(keep func(domain.SessionProps) bool) ([]*domain.LogAnalysisSession, error) {
	r.mu.RLock()
	var matched []domain.SessionProps
	for _, p := range r.sessions {
		if keep(p) {
			matched = append(matched, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	out := make([]*domain.LogAnalysisSession, 0, len(matched))
	for _, p := range matched {
		s, err := domain.RestoreSession(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// MemoryResultRepository is an AnalysisResultRepository held in process
// memory.
type MemoryResultRepository struct {
	mu      sync.RWMutex
	results map[string]domain.AnalysisResultProps
	order   []string
}

// NewMemoryResultRepository creates an empty repository.
func NewMemoryResultRepository() *MemoryResultRepository {
	return &MemoryResultRepository{results: make(map[string]domain.AnalysisResultProps)}
}

func (r *MemoryResultRepository) Save(_ context.Context, result *domain.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[result.ID()]; !ok {
		r.order = append(r.order, result.ID())
	}
	r.results[result.ID()] = result.Snapshot()
	return nil
}

func (r *MemoryResultRepository) FindByID(_ context.Context, id string) (*domain.AnalysisResult, error) {
	r.mu.RLock()
	props, ok := r.results[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundError("Analysis result", id)
	}
	return domain.RestoreAnalysisResult(props)
}

func (r *MemoryResultRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.AnalysisResult, error) {
	found, err := r.find(func(p domain.AnalysisResultProps) bool { return p.SessionID == sessionID })
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.NotFoundError("Analysis result for session", sessionID)
	}
	return found[0], nil
}

func (r *MemoryResultRepository) FindBySourceID(_ context.Context, sourceID string, limit int) ([]*domain.AnalysisResult, error) {
	found, err := r.find(func(p domain.AnalysisResultProps) bool { return p.SourceID == sourceID })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (r *MemoryResultRepository) FindWithAnomalies(context.Context) ([]*domain.AnalysisResult, error) {
	return r.find(func(p domain.AnalysisResultProps) bool { return len(p.Anomalies) > 0 })
}

// find returns matching results, newest first. Results created at the same
// instant keep the later-saved one first.
func (r *MemoryResultRepository) find(keep func(domain.AnalysisResultProps) bool) ([]*domain.AnalysisResult, error) {
	r.mu.RLock()
	var matched []domain.AnalysisResultProps
	for i := len(r.order) - 1; i >= 0; i-- {
		if p := r.results[r.order[i]]; keep(p) {
			matched = append(matched, p)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	out := make([]*domain.AnalysisResult, 0, len(matched))
	for _, p := range matched {
		res, err := domain.RestoreAnalysisResult(p)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *MemoryResultRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[id]; !ok {
		return nil
	}
	delete(r.results, id)
	r.order = removeID(r.order, id)
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

var (
	_ LogSourceRepository      = (*MemorySourceRepository)(nil)
	_ LogEntryRepository       = (*MemoryEntryRepository)(nil)
	_ SessionRepository        = (*MemorySessionRepository)(nil)
	_ AnalysisResultRepository = (*MemoryResultRepository)(nil)
)
