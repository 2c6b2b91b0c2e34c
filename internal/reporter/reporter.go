// Package reporter renders the outcome of a reconciliation run for the
// operator.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: per-group outcomes for spreadsheet triage
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"psp-settlement-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation.
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeGroups   bool `json:"include_groups"`
	IncludeWarnings bool `json:"include_warnings"`
	IncludeBalances bool `json:"include_balances"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		IncludeGroups:   true,
		IncludeWarnings: true,
		IncludeBalances: true,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
	}
}

// Validate validates the report configuration.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders run results in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the specified
// configuration.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the run result to the provided writer.
func (rg *ReportGenerator) GenerateReport(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.generateJSON(result, writer)
	case FormatCSV:
		return rg.generateCSV(result, writer)
	default:
		return rg.generateConsole(result, writer)
	}
}

func (rg *ReportGenerator) generateJSON(result *reconciler.RunResult, writer io.Writer) error {
	out := *result
	if !rg.config.IncludeGroups {
		out.Groups = nil
	}
	if !rg.config.IncludeWarnings {
		out.Warnings = nil
	}
	if !rg.config.IncludeBalances {
		out.BalanceReport = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}

func (rg *ReportGenerator) generateCSV(result *reconciler.RunResult, writer io.Writer) error {
	w := csv.NewWriter(writer)
	w.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := w.Write([]string{"bucket", "correlation_key", "rows", "outcome", "error"}); err != nil {
			return err
		}
	}

	for _, group := range result.Groups {
		record := []string{
			string(group.Bucket),
			group.CorrelationKey,
			fmt.Sprintf("%d", group.RowCount),
			string(group.Outcome),
			group.Error,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func (rg *ReportGenerator) generateConsole(result *reconciler.RunResult, writer io.Writer) error {
	var b strings.Builder

	b.WriteString("Settlement Reconciliation Summary\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	fmt.Fprintf(&b, "Processed at:    %s\n", result.ProcessedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration:        %s\n\n", result.Duration)

	fmt.Fprintf(&b, "Rows processed:  %d\n", result.RowsProcessed)
	fmt.Fprintf(&b, "Rows rejected:   %d\n\n", result.RowsRejected)

	fmt.Fprintf(&b, "Groups flushed:  %d\n", result.GroupsFlushed)
	fmt.Fprintf(&b, "Groups skipped:  %d\n", result.GroupsSkipped)
	fmt.Fprintf(&b, "Groups failed:   %d\n", result.GroupsFailed)

	if rg.config.IncludeGroups && result.GroupsFailed > 0 {
		b.WriteString("\nFailed groups:\n")
		for _, group := range result.Groups {
			if group.Outcome != reconciler.OutcomeFailed {
				continue
			}
			fmt.Fprintf(&b, "  [%s] %s (%d rows): %s\n",
				group.Bucket, group.CorrelationKey, group.RowCount, group.Error)
		}
	}

	if rg.config.IncludeWarnings && len(result.Warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings (%d):\n", len(result.Warnings))
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "  - %s\n", warning)
		}
	}

	if rg.config.IncludeBalances && result.BalanceReport != nil {
		fmt.Fprintf(&b, "\nBalance accounts observed: %d\n", len(result.BalanceReport.Accounts))
		if len(result.BalanceReport.Negative) > 0 {
			b.WriteString("Negative closing balances:\n")
			for _, account := range result.BalanceReport.Negative {
				fmt.Fprintf(&b, "  %s: %s %s\n",
					account.Reference, account.Closing.String(), account.Currency)
			}
		}
	}

	b.WriteString("\n")
	_, err := io.WriteString(writer, b.String())
	return err
}
