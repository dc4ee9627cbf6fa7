package repository

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedSourceRepository fronts a LogSourceRepository with an LRU cache of
// lookups by id. Cached sources are handed out as copies. Writes through
// this repository keep the cache coherent; writes that bypass it do not.
type CachedSourceRepository struct {
	LogSourceRepository
	cache *lru.Cache[string, domain.LogSourceProps]
}

// NewCachedSourceRepository wraps next with a cache holding up to size
// sources.
func NewCachedSourceRepository(next LogSourceRepository, size int) (*CachedSourceRepository, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, domain.LogSourceProps](size)
	if err != nil {
		return nil, err
	}
	return &CachedSourceRepository{LogSourceRepository: next, cache: cache}, nil
}

func (r *CachedSourceRepository) Save(ctx context.Context, source *domain.LogSource) error {
	if err := r.LogSourceRepository.Save(ctx, source); err != nil {
		return err
	}
	r.cache.Add(source.ID(), source.Snapshot())
	return nil
}

func (r *CachedSourceRepository) Update(ctx context.Context, source *domain.LogSource) error {
	r.cache.Remove(source.ID())
	return r.LogSourceRepository.Update(ctx, source)
}

func (r *CachedSourceRepository) FindByID(ctx context.Context, id string) (*domain.LogSource, error) {
	if props, ok := r.cache.Get(id); ok {
		return domain.RestoreLogSource(props)
	}
	source, err := r.LogSourceRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, source.Snapshot())
	return source, nil
}

func (r *CachedSourceRepository) Delete(ctx context.Context, id string) error {
	r.cache.Remove(id)
	return r.LogSourceRepository.Delete(ctx, id)
}

// Len reports the number of cached sources.
func (r *CachedSourceRepository) Len() int { return r.cache.Len() }

var _ LogSourceRepository = (*CachedSourceRepository)(nil)
