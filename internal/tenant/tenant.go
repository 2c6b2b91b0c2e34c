// Package tenant provides tenant resolution and scoped tenant execution
// contexts for the settlement reconciler.
//
// A merchant account reference arrives on a report row before the owning
// tenant is known, so merchant lookup is global (not tenant-scoped). Once the
// owning tenant is resolved, posting handlers run inside a tenant context that
// carries the tenant and its configured time zone on the context.Context; the
// scope is entered immediately before a group handler executes and released
// immediately after, so no two groups ever execute under overlapping tenant
// contexts.
package tenant

import (
	"context"
	"time"

	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/errors"
	"psp-settlement-reconciler/pkg/logger"
)

// Directory is the external collaborator that owns merchant account and
// tenant records. Its internals are outside this subsystem.
type Directory interface {
	// FindMerchantAccount looks up a merchant account by gateway and
	// processor reference, without tenant scoping. Returns nil when no
	// account matches the reference.
	FindMerchantAccount(ctx context.Context, gateway, reference string) (*models.MerchantAccount, error)

	// FindTenant resolves the tenant that owns a merchant account.
	FindTenant(ctx context.Context, merchant *models.MerchantAccount) (*models.Tenant, error)
}

// Resolver resolves merchant accounts through a Directory with a read-through
// cache. The cache is populated lazily, shared across one reconciliation run,
// and never invalidated mid-run.
type Resolver struct {
	directory Directory
	gateway   string
	logger    logger.Logger

	merchants map[string]*models.MerchantAccount
	tenants   map[string]*models.Tenant
}

// NewResolver creates a resolver for one reconciliation run.
func NewResolver(directory Directory, gateway string) *Resolver {
	return &Resolver{
		directory: directory,
		gateway:   gateway,
		logger:    logger.GetGlobalLogger().WithComponent("merchant_resolver"),
		merchants: make(map[string]*models.MerchantAccount),
		tenants:   make(map[string]*models.Tenant),
	}
}

// ResolveMerchantAccount maps a processor store/balance-account reference to
// a merchant account. Returns (nil, nil) when the reference is unknown; the
// caller decides whether that makes the group skippable.
func (r *Resolver) ResolveMerchantAccount(ctx context.Context, reference string) (*models.MerchantAccount, error) {
	if reference == "" {
		return nil, nil
	}

	if merchant, ok := r.merchants[reference]; ok {
		return merchant, nil
	}

	merchant, err := r.directory.FindMerchantAccount(ctx, r.gateway, reference)
	if err != nil {
		return nil, errors.LookupError(errors.CodeMerchantLookup, reference, err)
	}

	// Negative results are cached too; the directory does not change during
	// a run.
	r.merchants[reference] = merchant

	if merchant == nil {
		r.logger.WithField("reference", reference).Debug("No merchant account for reference")
	}

	return merchant, nil
}

// ResolveTenant resolves the tenant owning a merchant account.
func (r *Resolver) ResolveTenant(ctx context.Context, merchant *models.MerchantAccount) (*models.Tenant, error) {
	if tenant, ok := r.tenants[merchant.TenantID]; ok {
		return tenant, nil
	}

	tenant, err := r.directory.FindTenant(ctx, merchant)
	if err != nil {
		return nil, errors.LookupError(errors.CodeTenantUnresolved, merchant.ID, err)
	}

	if tenant == nil {
		return nil, errors.LookupError(errors.CodeTenantUnresolved, merchant.ID, nil).
			WithContext("merchant_account", merchant.ID)
	}

	r.tenants[merchant.TenantID] = tenant
	return tenant, nil
}

type contextKey int

const (
	tenantKey contextKey = iota
	locationKey
)

// WithTenant returns a context carrying the given tenant and its time zone.
func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	ctx = context.WithValue(ctx, tenantKey, t)
	return context.WithValue(ctx, locationKey, t.Location())
}

// FromContext returns the active tenant, or nil when no tenant scope is
// active.
func FromContext(ctx context.Context) *models.Tenant {
	t, _ := ctx.Value(tenantKey).(*models.Tenant)
	return t
}

// LocationFromContext returns the active tenant's time zone, defaulting to
// UTC outside any tenant scope. Categories compute date-sensitive effects in
// the tenant's zone.
func LocationFromContext(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(locationKey).(*time.Location); ok {
		return loc
	}
	return time.UTC
}

// RunAsTenant executes fn with the tenant context active. The scope is
// confined to the derived context, so the caller's context is untouched
// afterward regardless of how fn returns.
func RunAsTenant(ctx context.Context, t *models.Tenant, fn func(ctx context.Context) error) error {
	return fn(WithTenant(ctx, t))
}
