package tenant

import (
	"context"
	"fmt"
	"testing"
	"time"

	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/errors"
)

type countingDirectory struct {
	merchantCalls int
	tenantCalls   int

	merchants map[string]*models.MerchantAccount
	tenants   map[string]*models.Tenant

	err error
}

func (d *countingDirectory) FindMerchantAccount(_ context.Context, _, reference string) (*models.MerchantAccount, error) {
	d.merchantCalls++
	if d.err != nil {
		return nil, d.err
	}
	return d.merchants[reference], nil
}

func (d *countingDirectory) FindTenant(_ context.Context, merchant *models.MerchantAccount) (*models.Tenant, error) {
	d.tenantCalls++
	if d.err != nil {
		return nil, d.err
	}
	return d.tenants[merchant.TenantID], nil
}

func newCountingDirectory() *countingDirectory {
	return &countingDirectory{
		merchants: map[string]*models.MerchantAccount{
			"STORE1": {ID: "ma1", TenantID: "t1", Gateway: "psp", Reference: "STORE1"},
		},
		tenants: map[string]*models.Tenant{
			"t1": {ID: "t1", Name: "Tenant One", TimeZone: "Europe/Amsterdam"},
		},
	}
}

func TestResolveMerchantAccountCaching(t *testing.T) {
	ctx := context.Background()
	directory := newCountingDirectory()
	resolver := NewResolver(directory, "psp")

	for i := 0; i < 3; i++ {
		merchant, err := resolver.ResolveMerchantAccount(ctx, "STORE1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if merchant == nil || merchant.ID != "ma1" {
			t.Fatalf("expected merchant ma1, got %+v", merchant)
		}
	}

	if directory.merchantCalls != 1 {
		t.Errorf("expected 1 directory call, got %d", directory.merchantCalls)
	}
}

func TestResolveMerchantAccountCachesNegativeResults(t *testing.T) {
	ctx := context.Background()
	directory := newCountingDirectory()
	resolver := NewResolver(directory, "psp")

	for i := 0; i < 3; i++ {
		merchant, err := resolver.ResolveMerchantAccount(ctx, "UNKNOWN")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if merchant != nil {
			t.Fatalf("expected nil merchant, got %+v", merchant)
		}
	}

	if directory.merchantCalls != 1 {
		t.Errorf("expected 1 directory call for the unknown reference, got %d", directory.merchantCalls)
	}
}

func TestResolveMerchantAccountEmptyReference(t *testing.T) {
	directory := newCountingDirectory()
	resolver := NewResolver(directory, "psp")

	merchant, err := resolver.ResolveMerchantAccount(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merchant != nil {
		t.Error("empty reference must resolve to no merchant")
	}
	if directory.merchantCalls != 0 {
		t.Error("empty reference must not hit the directory")
	}
}

func TestResolveMerchantAccountLookupFailure(t *testing.T) {
	directory := newCountingDirectory()
	directory.err = fmt.Errorf("directory unavailable")
	resolver := NewResolver(directory, "psp")

	_, err := resolver.ResolveMerchantAccount(context.Background(), "STORE1")
	if !errors.IsCode(err, errors.CodeMerchantLookup) {
		t.Errorf("expected merchant_lookup_failed code, got %v", err)
	}
}

func TestResolveTenant(t *testing.T) {
	ctx := context.Background()
	directory := newCountingDirectory()
	resolver := NewResolver(directory, "psp")

	merchant := directory.merchants["STORE1"]

	for i := 0; i < 3; i++ {
		owner, err := resolver.ResolveTenant(ctx, merchant)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if owner.ID != "t1" {
			t.Errorf("expected tenant t1, got %s", owner.ID)
		}
	}

	if directory.tenantCalls != 1 {
		t.Errorf("expected 1 directory call, got %d", directory.tenantCalls)
	}
}

func TestResolveTenantUnresolved(t *testing.T) {
	directory := newCountingDirectory()
	resolver := NewResolver(directory, "psp")

	orphan := &models.MerchantAccount{ID: "ma2", TenantID: "missing"}

	_, err := resolver.ResolveTenant(context.Background(), orphan)
	if !errors.IsCode(err, errors.CodeTenantUnresolved) {
		t.Errorf("expected tenant_unresolved code, got %v", err)
	}
}

func TestTenantContextScoping(t *testing.T) {
	base := context.Background()

	if FromContext(base) != nil {
		t.Error("expected no tenant outside a scope")
	}
	if LocationFromContext(base) != time.UTC {
		t.Error("expected UTC outside a scope")
	}

	owner := &models.Tenant{ID: "t1", TimeZone: "Europe/Amsterdam"}

	err := RunAsTenant(base, owner, func(ctx context.Context) error {
		if got := FromContext(ctx); got == nil || got.ID != "t1" {
			t.Errorf("expected tenant t1 inside the scope, got %+v", got)
		}
		if got := LocationFromContext(ctx); got.String() != "Europe/Amsterdam" {
			t.Errorf("expected tenant location inside the scope, got %s", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The caller's context is untouched after the scope ends.
	if FromContext(base) != nil {
		t.Error("tenant scope leaked into the caller's context")
	}
}

func TestRunAsTenantPropagatesError(t *testing.T) {
	wantErr := fmt.Errorf("handler failed")

	err := RunAsTenant(context.Background(), &models.Tenant{ID: "t1"}, func(ctx context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("expected handler error to propagate, got %v", err)
	}
}
