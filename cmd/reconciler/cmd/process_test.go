package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeTestFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")

			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// setProcessFlags sets the process command's flag variables directly and
// restores the previous values when the test ends.
func setProcessFlags(t *testing.T, report, merchants, db, format, output string) {
	t.Helper()

	prevReport, prevMerchants, prevDB := reportFile, merchantsFile, ledgerDB
	prevFormat, prevOutput := outputFormat, outputFile
	prevGateway, prevLiable, prevCutoff := gateway, liableAccount, legacyCutoff
	prevLink, prevMonitor := linkPayouts, monitorBalances
	t.Cleanup(func() {
		reportFile, merchantsFile, ledgerDB = prevReport, prevMerchants, prevDB
		outputFormat, outputFile = prevFormat, prevOutput
		gateway, liableAccount, legacyCutoff = prevGateway, prevLiable, prevCutoff
		linkPayouts, monitorBalances = prevLink, prevMonitor
	})

	reportFile, merchantsFile, ledgerDB = report, merchants, db
	outputFormat, outputFile = format, output
	gateway, liableAccount, legacyCutoff = "psp", "", ""
	linkPayouts, monitorBalances = true, true
}

func TestExecuteProcess(t *testing.T) {
	tmpDir := t.TempDir()
	report := writeTestFile(t, tmpDir, "report.csv",
		"category,type,status,psp_payment_psp_reference,balance_account_reference,amount,currency,booking_date\n"+
			"platformPayment,capture,captured,PSP1,STORE1,1000,EUR,2024-03-01\n")
	merchants := writeTestFile(t, tmpDir, "merchants.json", `{
		"tenants": [{"id": "t1", "name": "Tenant One", "time_zone": "UTC"}],
		"merchant_accounts": [{"id": "ma1", "tenant_id": "t1", "gateway": "psp", "reference": "STORE1"}]
	}`)
	output := filepath.Join(tmpDir, "summary.json")

	setProcessFlags(t, report, merchants, "", "json", output)

	if err := executeProcess(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("expected a summary file: %v", err)
	}
	if !strings.Contains(string(summary), `"groups_flushed": 1`) {
		t.Errorf("unexpected summary content:\n%s", summary)
	}
}

func TestExecuteProcessReturnsErrors(t *testing.T) {
	tmpDir := t.TempDir()
	merchants := writeTestFile(t, tmpDir, "merchants.json",
		`{"tenants":[],"merchant_accounts":[]}`)

	// A failing run surfaces the error to the caller so deferred cleanup
	// runs before the exit code is decided.
	setProcessFlags(t, filepath.Join(tmpDir, "missing.csv"), merchants, "", "console", "")

	if err := executeProcess(context.Background()); err == nil {
		t.Error("expected error for missing report file")
	}
}

func TestValidateProcessFlags(t *testing.T) {
	tmpDir := t.TempDir()
	report := writeTestFile(t, tmpDir, "report.csv",
		"category,type,status,amount,currency,booking_date\n")
	merchants := writeTestFile(t, tmpDir, "merchants.json",
		`{"tenants":[],"merchant_accounts":[]}`)

	tests := []struct {
		name        string
		settings    map[string]interface{}
		expectError bool
	}{
		{
			name: "valid flags",
			settings: map[string]interface{}{
				"report-file":    report,
				"merchants-file": merchants,
				"output-format":  "console",
			},
			expectError: false,
		},
		{
			name: "missing report file flag",
			settings: map[string]interface{}{
				"merchants-file": merchants,
				"output-format":  "console",
			},
			expectError: true,
		},
		{
			name: "missing merchants file flag",
			settings: map[string]interface{}{
				"report-file":   report,
				"output-format": "console",
			},
			expectError: true,
		},
		{
			name: "report file does not exist",
			settings: map[string]interface{}{
				"report-file":    filepath.Join(tmpDir, "missing.csv"),
				"merchants-file": merchants,
				"output-format":  "console",
			},
			expectError: true,
		},
		{
			name: "invalid output format",
			settings: map[string]interface{}{
				"report-file":    report,
				"merchants-file": merchants,
				"output-format":  "yaml",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for key, value := range tt.settings {
				viper.Set(key, value)
			}

			err := validateProcessFlags(processCmd, nil)

			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
