package service

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/repository"
)

// SessionQuery filters session listings. Zero values match everything.
type SessionQuery struct {
	SourceID   string
	ActiveOnly bool
}

// SessionService answers read queries over analysis sessions.
type SessionService struct {
	sessions repository.SessionRepository
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions repository.SessionRepository) *SessionService {
	return &SessionService{sessions: sessions}
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.LogAnalysisSession, error) {
	return s.sessions.FindByID(ctx, id)
}

// List returns the sessions matching q, newest first.
func (s *SessionService) List(ctx context.Context, q SessionQuery) ([]*domain.LogAnalysisSession, error) {
	var (
		found []*domain.LogAnalysisSession
		err   error
	)
	switch {
	case q.SourceID != "":
		found, err = s.sessions.FindBySourceID(ctx, q.SourceID)
	case q.ActiveOnly:
		return s.sessions.FindActive(ctx)
	default:
		return s.sessions.FindAll(ctx)
	}
	if err != nil || !q.ActiveOnly {
		return found, err
	}

	active := found[:0]
	for _, session := range found {
		if session.Status().IsActive() {
			active = append(active, session)
		}
	}
	return active, nil
}
