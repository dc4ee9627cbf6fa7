package detection

import (
	"sync"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// Selector maps model types onto detectors. Unregistered types fall back
// to the default detector.
type Selector struct {
	mu        sync.RWMutex
	fallback  Detector
	detectors map[domain.ModelType]Detector
}

// NewSelector creates a selector that falls back to fallback.
func NewSelector(fallback Detector) *Selector {
	return &Selector{
		fallback:  fallback,
		detectors: make(map[domain.ModelType]Detector),
	}
}

// Register binds a detector to a model type, replacing any earlier binding.
func (s *Selector) Register(modelType domain.ModelType, d Detector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectors[modelType] = d
}

// For returns the detector for modelType.
func (s *Selector) For(modelType domain.ModelType) Detector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.detectors[modelType]; ok {
		return d
	}
	return s.fallback
}
