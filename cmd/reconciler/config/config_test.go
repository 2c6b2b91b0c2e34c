package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateEngineConfig(t *testing.T) {
	config, err := CreateEngineConfig("adyen", "PLATFORM_LIABLE", "2024-06-01", true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Gateway != "adyen" {
		t.Errorf("expected gateway adyen, got %s", config.Gateway)
	}
	if config.LiableAccountHolder != "PLATFORM_LIABLE" {
		t.Errorf("unexpected liable account holder: %s", config.LiableAccountHolder)
	}
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !config.ManualCorrectionCutoff.Equal(want) {
		t.Errorf("expected cutoff %s, got %s", want, config.ManualCorrectionCutoff)
	}
	if !config.LinkPayouts || config.MonitorBalances {
		t.Error("pass toggles not applied")
	}
}

func TestCreateEngineConfigDefaults(t *testing.T) {
	config, err := CreateEngineConfig("", "", "", true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Gateway != "psp" {
		t.Errorf("expected default gateway, got %s", config.Gateway)
	}
	if config.ManualCorrectionCutoff.IsZero() {
		t.Error("expected a default cutoff date")
	}
}

func TestCreateEngineConfigInvalidCutoff(t *testing.T) {
	if _, err := CreateEngineConfig("psp", "", "June 2024", true, true); err == nil {
		t.Error("expected error for unparseable cutoff date")
	}
}

func TestCreateReportConfig(t *testing.T) {
	for _, format := range []string{"console", "json", "csv", ""} {
		if _, err := CreateReportConfig(format); err != nil {
			t.Errorf("unexpected error for format %q: %v", format, err)
		}
	}

	if _, err := CreateReportConfig("yaml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadMerchantDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merchants.json")
	content := `{
		"tenants": [
			{"id": "t1", "name": "Tenant One", "time_zone": "Europe/Amsterdam"}
		],
		"merchant_accounts": [
			{"id": "ma1", "tenant_id": "t1", "gateway": "psp", "reference": "STORE1", "name": "Store One"}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create merchants file: %v", err)
	}

	directory, err := LoadMerchantDirectory(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()

	merchant, err := directory.FindMerchantAccount(ctx, "psp", "STORE1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merchant == nil || merchant.ID != "ma1" {
		t.Fatalf("expected merchant ma1, got %+v", merchant)
	}

	// Gateway must match, not just the reference.
	other, err := directory.FindMerchantAccount(ctx, "stripe", "STORE1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != nil {
		t.Error("expected no match for a different gateway")
	}

	owner, err := directory.FindTenant(ctx, merchant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner == nil || owner.ID != "t1" {
		t.Fatalf("expected tenant t1, got %+v", owner)
	}
}

func TestLoadMerchantDirectoryDanglingTenant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merchants.json")
	content := `{
		"tenants": [],
		"merchant_accounts": [
			{"id": "ma1", "tenant_id": "ghost", "gateway": "psp", "reference": "STORE1"}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create merchants file: %v", err)
	}

	if _, err := LoadMerchantDirectory(path); err == nil {
		t.Error("expected error for merchant referencing unknown tenant")
	}
}

func TestLoadMerchantDirectoryInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merchants.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to create merchants file: %v", err)
	}

	if _, err := LoadMerchantDirectory(path); err == nil {
		t.Error("expected error for invalid JSON")
	}

	if _, err := LoadMerchantDirectory("/non/existent.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDisabledTransferClient(t *testing.T) {
	details, err := DisabledTransferClient{}.LookupTransfer(context.Background(), "TR1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details != nil {
		t.Error("disabled client must report every transfer as unknown")
	}
}
