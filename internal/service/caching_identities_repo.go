package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/observability"
	"github.com/veriface/hub/pkg/cache"
)

const (
	cacheNameIdentityByID  = "identity_by_id"
	cacheNameIdentityByKey = "identity_by_business_key"
)

// cachingIdentitiesRepo wraps an IdentitiesRepository with caches for GetByID
// and GetByBusinessKey, the hot lookups on the recognition path. Writes
// invalidate; List/Count always hit the store.
type cachingIdentitiesRepo struct {
	inner      IdentitiesRepository
	byIDCache  *cache.LoaderCache[uuid.UUID, *models.Identity]
	byKeyCache *cache.LoaderCache[string, *models.Identity]
	metrics    observability.CacheMetrics
}

// NewCachingIdentitiesRepository returns an IdentitiesRepository caching
// GetByID and GetByBusinessKey. metrics may be nil (no cache metrics recorded).
func NewCachingIdentitiesRepository(
	inner IdentitiesRepository,
	byIDCache *cache.LoaderCache[uuid.UUID, *models.Identity],
	byKeyCache *cache.LoaderCache[string, *models.Identity],
	metrics observability.CacheMetrics,
) IdentitiesRepository {
	return &cachingIdentitiesRepo{
		inner:      inner,
		byIDCache:  byIDCache,
		byKeyCache: byKeyCache,
		metrics:    metrics,
	}
}

func (r *cachingIdentitiesRepo) recordCache(ctx context.Context, name string, hit bool) {
	if r.metrics == nil {
		return
	}

	if hit {
		r.metrics.RecordHit(ctx, name)
	} else {
		r.metrics.RecordMiss(ctx, name)
	}
}

func (r *cachingIdentitiesRepo) Create(ctx context.Context, req *models.CreateIdentityRequest) (*models.Identity, error) {
	ident, err := r.inner.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	r.byKeyCache.Invalidate(req.BusinessKey)

	return ident, nil
}

func (r *cachingIdentitiesRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident, hit, err := r.byIDCache.Get(ctx, id, r.inner.GetByID)
	if err != nil {
		return nil, fmt.Errorf("get identity by id: %w", err)
	}

	r.recordCache(ctx, cacheNameIdentityByID, hit)

	return ident, nil
}

func (r *cachingIdentitiesRepo) GetByBusinessKey(ctx context.Context, businessKey string) (*models.Identity, error) {
	ident, hit, err := r.byKeyCache.Get(ctx, businessKey, r.inner.GetByBusinessKey)
	if err != nil {
		return nil, fmt.Errorf("get identity by business key: %w", err)
	}

	r.recordCache(ctx, cacheNameIdentityByKey, hit)

	return ident, nil
}

func (r *cachingIdentitiesRepo) GetByNameAndRegion(ctx context.Context, name, region string) (*models.Identity, error) {
	return r.inner.GetByNameAndRegion(ctx, name, region)
}

func (r *cachingIdentitiesRepo) List(ctx context.Context, filters *models.ListIdentitiesFilters) ([]models.Identity, error) {
	return r.inner.List(ctx, filters)
}

func (r *cachingIdentitiesRepo) Count(ctx context.Context, filters *models.ListIdentitiesFilters) (int64, error) {
	return r.inner.Count(ctx, filters)
}

func (r *cachingIdentitiesRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateIdentityRequest) (*models.Identity, error) {
	ident, err := r.inner.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	r.byIDCache.Invalidate(id)
	r.byKeyCache.Invalidate(ident.BusinessKey)

	return ident, nil
}

func (r *cachingIdentitiesRepo) Delete(ctx context.Context, id uuid.UUID) error {
	// Look up first so the business-key cache entry can be dropped too.
	if ident, err := r.inner.GetByID(ctx, id); err == nil {
		r.byKeyCache.Invalidate(ident.BusinessKey)
	}

	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}

	r.byIDCache.Invalidate(id)

	return nil
}
