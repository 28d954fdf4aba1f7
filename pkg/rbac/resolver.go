package rbac

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/homestead/pkg/observability"
)

// DefaultTTL bounds how long a resolved permission set may be served
const DefaultTTL = 5 * time.Minute

// Source is the data the resolver reads on a cache miss
type Source interface {
	SubjectProfile(ctx context.Context, userID int64) (found bool, superAdmin bool, err error)
	ListAssignments(ctx context.Context, userID int64) ([]Assignment, error)
	PermissionKeys(ctx context.Context, roleIDs []int64) ([]string, error)
	ListPermissionKeys(ctx context.Context) ([]string, error)
	ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error)
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache sets the cache backend. A nil cache disables caching.
func WithCache(cache Cache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the resolver's logger
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the resolver's metrics
func WithMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// WithResolverClock overrides the resolver's clock
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// Resolver computes effective permission sets and keeps them cached.
//
// Every mutation that can change a set must call InvalidateUser or
// InvalidateRole before it returns. Invalidation bumps a generation counter
// under the write lock; a computation only stores its result if the
// generation it started under is still current, so a set computed from
// pre-mutation data is never cached after the mutation has returned.
type Resolver struct {
	source  Source
	cache   Cache
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu         sync.RWMutex
	generation atomic.Uint64
	group      singleflight.Group
}

// NewResolver creates a resolver reading from source
func NewResolver(source Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source: source,
		ttl:    DefaultTTL,
		logger: observability.NopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type resolution struct {
	set     PermissionSet
	roleIDs []int64
}

// Resolve returns the effective permission set of a user. A nil tenantID
// resolves the platform context.
func (r *Resolver) Resolve(ctx context.Context, userID int64, tenantID *int64) (PermissionSet, error) {
	key := KeyFor(userID, tenantID)

	if r.cache != nil {
		entry, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.metrics.RecordCacheError("get")
			r.logger.WithError(err).WithField("subject", key.String()).Warn("permission cache read failed, recomputing")
		} else if ok && !entry.Expired(r.now()) {
			r.metrics.RecordCacheHit()
			return NewPermissionSet(entry.Keys...), nil
		}
	}

	// Callers arriving after an invalidation must not join a computation
	// that started before it
	gen := r.generation.Load()
	flight := key.String() + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := r.group.Do(flight, func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the rest
		return r.computeAndStore(context.WithoutCancel(ctx), key, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(PermissionSet), nil
}

func (r *Resolver) computeAndStore(ctx context.Context, key SubjectKey, gen uint64) (PermissionSet, error) {
	start := time.Now()

	res, err := r.compute(ctx, key)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordCacheMiss(time.Since(start))

	if r.cache == nil {
		return res.set, nil
	}

	entry := &Entry{
		Keys:      res.set.Keys(),
		RoleIDs:   res.roleIDs,
		ExpiresAt: r.now().Add(r.ttl),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.generation.Load() != gen {
		// An invalidation ran while computing; the result may predate it
		return res.set, nil
	}
	if err := r.cache.Set(ctx, key, entry); err != nil {
		r.metrics.RecordCacheError("set")
		r.logger.WithError(err).WithField("subject", key.String()).Warn("permission cache write failed")
	}
	return res.set, nil
}

func (r *Resolver) compute(ctx context.Context, key SubjectKey) (*resolution, error) {
	found, superAdmin, err := r.source.SubjectProfile(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	if !found {
		return &resolution{set: PermissionSet{}}, nil
	}
	if superAdmin {
		keys, err := r.source.ListPermissionKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve permissions: %w", err)
		}
		return &resolution{set: NewPermissionSet(keys...)}, nil
	}

	assignments, err := r.source.ListAssignments(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	var roleIDs []int64
	for _, a := range assignments {
		if Matches(key, a) {
			roleIDs = append(roleIDs, a.RoleID)
		}
	}
	roleIDs = dedupeIDs(roleIDs)
	if len(roleIDs) == 0 {
		return &resolution{set: PermissionSet{}}, nil
	}

	keys, err := r.source.PermissionKeys(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	return &resolution{set: NewPermissionSet(keys...), roleIDs: roleIDs}, nil
}

// HasPermission reports whether the user holds key in the context
func (r *Resolver) HasPermission(ctx context.Context, userID int64, tenantID *int64, key string) (bool, error) {
	set, err := r.Resolve(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return set.Has(key), nil
}

// HasAny reports whether the user holds at least one of keys
func (r *Resolver) HasAny(ctx context.Context, userID int64, tenantID *int64, keys ...string) (bool, error) {
	set, err := r.Resolve(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return set.HasAny(keys...), nil
}

// HasAll reports whether the user holds every one of keys
func (r *Resolver) HasAll(ctx context.Context, userID int64, tenantID *int64, keys ...string) (bool, error) {
	set, err := r.Resolve(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return set.HasAll(keys...), nil
}

// InvalidateUser drops every cached set of the user, platform and all
// tenants
func (r *Resolver) InvalidateUser(ctx context.Context, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation.Add(1)
	r.metrics.RecordInvalidation("user")
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateUser(ctx, userID); err != nil {
		r.metrics.RecordCacheError("invalidate_user")
		r.logger.WithError(err).WithField("user_id", userID).Error("permission cache invalidation failed, purging")
		r.purgeLocked(ctx)
	}
}

// InvalidateRole drops every cached set that may include the role: those of
// its current holders and any entry computed from it
func (r *Resolver) InvalidateRole(ctx context.Context, roleID int64) {
	holders, err := r.source.ListUserIDsByRole(ctx, roleID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation.Add(1)
	r.metrics.RecordInvalidation("role")
	if r.cache == nil {
		return
	}
	if err != nil {
		r.logger.WithError(err).WithField("role_id", roleID).Error("failed to list role holders, purging permission cache")
		r.purgeLocked(ctx)
		return
	}

	for _, userID := range holders {
		if err := r.cache.InvalidateUser(ctx, userID); err != nil {
			r.metrics.RecordCacheError("invalidate_user")
			r.logger.WithError(err).WithField("role_id", roleID).Error("permission cache invalidation failed, purging")
			r.purgeLocked(ctx)
			return
		}
	}
	if err := r.cache.InvalidateRole(ctx, roleID); err != nil {
		r.metrics.RecordCacheError("invalidate_role")
		r.logger.WithError(err).WithField("role_id", roleID).Error("permission cache invalidation failed, purging")
		r.purgeLocked(ctx)
	}
}

// Purge drops every cached set
func (r *Resolver) Purge(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation.Add(1)
	r.metrics.RecordInvalidation("purge")
	if r.cache != nil {
		r.purgeLocked(ctx)
	}
}

func (r *Resolver) purgeLocked(ctx context.Context) {
	if err := r.cache.Purge(ctx); err != nil {
		r.metrics.RecordCacheError("purge")
		r.logger.WithError(err).Error("permission cache purge failed; stale entries expire with their TTL")
	}
}
