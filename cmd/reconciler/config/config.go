// Package config builds component configurations for the CLI and provides the
// file-backed collaborator implementations a standalone run needs: a static
// merchant directory loaded from JSON and a disabled transfer client.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/internal/parsers"
	"psp-settlement-reconciler/internal/payout"
	"psp-settlement-reconciler/internal/reconciler"
	"psp-settlement-reconciler/internal/reporter"
)

// CreateReportParserConfig creates the parser configuration for the
// processor's settlement export.
func CreateReportParserConfig() *parsers.ReportConfig {
	return parsers.DefaultReportConfig()
}

// CreateEngineConfig creates a reconciliation run configuration from CLI
// settings.
func CreateEngineConfig(gateway, liableAccount, legacyCutoff string, linkPayouts, monitorBalances bool) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	if gateway != "" {
		config.Gateway = gateway
	}
	config.LiableAccountHolder = liableAccount
	config.LinkPayouts = linkPayouts
	config.MonitorBalances = monitorBalances

	if legacyCutoff != "" {
		cutoff, err := time.Parse("2006-01-02", legacyCutoff)
		if err != nil {
			return nil, fmt.Errorf("invalid legacy cutoff date '%s': %w", legacyCutoff, err)
		}
		config.ManualCorrectionCutoff = cutoff
	}

	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output
// format.
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console", "":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}

	return config, nil
}

// directoryFile is the on-disk layout of the merchants file.
type directoryFile struct {
	Tenants          []*models.Tenant          `json:"tenants"`
	MerchantAccounts []*models.MerchantAccount `json:"merchant_accounts"`
}

// StaticDirectory is a tenant.Directory backed by a JSON file. Suitable for
// CLI runs; a deployed reconciler would resolve against the platform's
// account service instead.
type StaticDirectory struct {
	tenants   map[string]*models.Tenant
	merchants []*models.MerchantAccount
}

// LoadMerchantDirectory loads the merchants file from disk.
func LoadMerchantDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read merchants file: %w", err)
	}

	var file directoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid merchants file %s: %w", path, err)
	}

	directory := &StaticDirectory{
		tenants:   make(map[string]*models.Tenant, len(file.Tenants)),
		merchants: file.MerchantAccounts,
	}
	for _, t := range file.Tenants {
		directory.tenants[t.ID] = t
	}

	for _, m := range file.MerchantAccounts {
		if _, ok := directory.tenants[m.TenantID]; !ok {
			return nil, fmt.Errorf("merchant account %s references unknown tenant %s", m.ID, m.TenantID)
		}
	}

	return directory, nil
}

// FindMerchantAccount looks up a merchant account by gateway and reference.
func (d *StaticDirectory) FindMerchantAccount(_ context.Context, gateway, reference string) (*models.MerchantAccount, error) {
	for _, m := range d.merchants {
		if m.Gateway == gateway && m.Reference == reference {
			return m, nil
		}
	}
	return nil, nil
}

// FindTenant resolves the tenant that owns a merchant account.
func (d *StaticDirectory) FindTenant(_ context.Context, merchant *models.MerchantAccount) (*models.Tenant, error) {
	return d.tenants[merchant.TenantID], nil
}

// DisabledTransferClient is a payout.TransferClient for offline runs: every
// lookup reports the transfer as unknown, so linkage falls back to the
// references rows carry inline.
type DisabledTransferClient struct{}

// LookupTransfer always returns no details.
func (DisabledTransferClient) LookupTransfer(_ context.Context, _ string) (*models.TransferDetails, error) {
	return nil, nil
}

// Ensure the implementations satisfy their contracts.
var _ payout.TransferClient = DisabledTransferClient{}
