package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/core"
	"github.com/dealerdesk/wainbox/internal/repository"
)

const resolverCacheTTL = 5 * time.Minute

// TenantResolver maps a webhook's phone_number_id to the owning tenant.
// The channel table is the source of truth; Redis fronts it because the
// same handful of ids arrive on every webhook. Cache misses and cache
// failures both fall through to Postgres; the cache is never a
// correctness dependency.
type TenantResolver struct {
	channels repository.ChannelRepository
	cache    *redis.Client
	// Fallback for single-tenant deployments with no channel mapping.
	defaultTenantID uuid.UUID
	logger          *zap.Logger
}

func NewTenantResolver(channels repository.ChannelRepository, cache *redis.Client, defaultTenantID uuid.UUID, logger *zap.Logger) *TenantResolver {
	return &TenantResolver{
		channels:        channels,
		cache:           cache,
		defaultTenantID: defaultTenantID,
		logger:          logger,
	}
}

// Resolve returns the tenant owning phoneNumberID. An empty or unmapped
// id falls back to the configured default tenant; with neither, the
// caller gets core.ErrTenantResolution and must not persist anything.
func (r *TenantResolver) Resolve(ctx context.Context, phoneNumberID string) (uuid.UUID, error) {
	if phoneNumberID != "" {
		if id, ok := r.cached(ctx, phoneNumberID); ok {
			return id, nil
		}

		ch, err := r.channels.GetByPhoneNumberID(ctx, phoneNumberID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolve channel: %w", err)
		}
		if ch != nil {
			r.remember(ctx, phoneNumberID, ch.TenantID)
			return ch.TenantID, nil
		}
	}

	if r.defaultTenantID != uuid.Nil {
		return r.defaultTenantID, nil
	}

	return uuid.Nil, fmt.Errorf("%w: phone_number_id %q has no channel and no default tenant is set", core.ErrTenantResolution, phoneNumberID)
}

func (r *TenantResolver) cached(ctx context.Context, phoneNumberID string) (uuid.UUID, bool) {
	if r.cache == nil {
		return uuid.Nil, false
	}
	val, err := r.cache.Get(ctx, cacheKey(phoneNumberID)).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("resolver cache read failed", zap.Error(err))
		}
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (r *TenantResolver) remember(ctx context.Context, phoneNumberID string, tenantID uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(phoneNumberID), tenantID.String(), resolverCacheTTL).Err(); err != nil {
		r.logger.Debug("resolver cache write failed", zap.Error(err))
	}
}

func cacheKey(phoneNumberID string) string {
	return "wainbox:channel:" + phoneNumberID
}
