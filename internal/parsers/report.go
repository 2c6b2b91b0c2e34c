// Package parsers reads the processor's settlement report export into report
// rows.
//
// The reconciliation engine itself operates purely on an in-memory row
// sequence; this package exists so the CLI can feed it from the CSV export
// the processor produces. Column names are configurable with aliases, since
// manual exports and scheduled exports disagree on header spelling.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/errors"
	"psp-settlement-reconciler/pkg/logger"
)

// ReportConfig holds configuration for parsing a settlement report CSV.
type ReportConfig struct {
	HasHeader bool
	Delimiter rune

	// Columns maps canonical field names (category, type, status, amount,
	// currency, transfer_id, ...) to the column names used in the export.
	Columns map[string]string

	// ColumnAliases maps alternative header spellings to canonical field
	// names.
	ColumnAliases map[string]string
}

// DefaultReportConfig returns a configuration matching the processor's
// scheduled export format.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		HasHeader: true,
		Delimiter: ',',
		Columns: map[string]string{
			"category":                       "category",
			"type":                           "type",
			"status":                         "status",
			"transfer_id":                    "transfer_id",
			"psp_payment_psp_reference":      "psp_payment_psp_reference",
			"psp_modification_psp_reference": "psp_modification_psp_reference",
			"balance_account_reference":      "balance_account_reference",
			"accountholder":                  "accountholder",
			"description":                    "description",
			"amount":                         "amount",
			"currency":                       "currency",
			"balance":                        "balance",
			"booking_date":                   "booking_date",
			"value_date":                     "value_date",
		},
		ColumnAliases: map[string]string{
			"store":             "balance_account_reference",
			"account_holder":    "accountholder",
			"payment_reference": "psp_payment_psp_reference",
			"psp_reference":     "psp_payment_psp_reference",
			"mod_reference":     "psp_modification_psp_reference",
			"creation_date":     "booking_date",
			"date":              "booking_date",
		},
	}
}

// defaultFieldOrder is the column order of the processor's headerless export
// layout. Exports with a header row are mapped by name instead.
var defaultFieldOrder = []string{
	"category",
	"type",
	"status",
	"transfer_id",
	"psp_payment_psp_reference",
	"psp_modification_psp_reference",
	"balance_account_reference",
	"accountholder",
	"description",
	"amount",
	"currency",
	"balance",
	"booking_date",
	"value_date",
}

// requiredFields are the canonical fields a report row cannot be built
// without.
var requiredFields = []string{"category", "type", "status", "amount", "currency", "booking_date"}

// Validate validates the parser configuration.
func (c *ReportConfig) Validate() error {
	if len(c.Columns) == 0 {
		return fmt.Errorf("column mapping is required")
	}
	for _, field := range requiredFields {
		if c.Columns[field] == "" {
			return fmt.Errorf("column mapping for required field '%s' is missing", field)
		}
	}
	return nil
}

// ParseStats summarizes one parse operation.
type ParseStats struct {
	TotalRows   int `json:"total_rows"`
	ValidRows   int `json:"valid_rows"`
	ErrorRows   int `json:"error_rows"`
	SkippedRows int `json:"skipped_rows"`
}

// ReportParser parses settlement report CSV files into report rows.
type ReportParser struct {
	config *ReportConfig
	logger logger.Logger
}

// NewReportParser creates a report parser with the given configuration.
func NewReportParser(config *ReportConfig) (*ReportParser, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_parser", err)
	}

	return &ReportParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("report_parser"),
	}, nil
}

// ParseFile parses a settlement report from a file path.
func (p *ReportParser) ParseFile(ctx context.Context, path string) ([]*models.ReportRow, *ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, nil, errors.FileError(errors.CodeInvalidFormat, path, err)
	}
	defer file.Close()

	return p.Parse(ctx, file, path)
}

// Parse parses a settlement report from a reader. Rows that fail to parse
// are counted and logged but do not abort the parse; the engine's
// classification layer applies its own per-row policy afterwards.
func (p *ReportParser) Parse(ctx context.Context, r io.Reader, name string) ([]*models.ReportRow, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	stats := &ParseStats{}
	var rows []*models.ReportRow

	fieldIndex, err := p.buildFieldIndex(reader, name)
	if err != nil {
		return nil, nil, err
	}

	// Line numbers in parse diagnostics are physical file lines; the header,
	// when present, occupies line 1.
	line := 0
	if p.config.HasHeader {
		line = 1
	}
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.TotalRows++
			stats.ErrorRows++
			p.logger.WithError(err).WithField("line", line).Warn("Skipping malformed CSV record")
			continue
		}

		if isEmptyRecord(record) {
			stats.SkippedRows++
			continue
		}

		stats.TotalRows++

		fields := make(map[string]string, len(fieldIndex))
		for field, idx := range fieldIndex {
			if idx < len(record) {
				fields[field] = record[idx]
			}
		}

		row, err := models.CreateReportRowFromCSV(fields)
		if err != nil {
			stats.ErrorRows++
			parseErr := errors.ParseError(errors.CodeInvalidData, name, line, "", "", err)
			p.logger.WithError(parseErr).Warn("Skipping invalid report row")
			continue
		}

		stats.ValidRows++
		rows = append(rows, row)
	}

	p.logger.WithFields(logger.Fields{
		"file":       name,
		"total_rows": stats.TotalRows,
		"valid_rows": stats.ValidRows,
		"error_rows": stats.ErrorRows,
	}).Info("Parsed settlement report")

	return rows, stats, nil
}

// buildFieldIndex reads the header (when present) and maps canonical field
// names to column positions. Without a header, columns are assumed to follow
// the default export layout, in defaultFieldOrder.
func (p *ReportParser) buildFieldIndex(reader *csv.Reader, name string) (map[string]int, error) {
	index := make(map[string]int)

	if !p.config.HasHeader {
		for i, field := range defaultFieldOrder {
			if _, ok := p.config.Columns[field]; ok {
				index[field] = i
			}
		}
		return index, nil
	}

	header, err := reader.Read()
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, 1, "", "", err).
			WithSuggestion("the report file appears to be empty or unreadable")
	}

	// Invert the configured column mapping, then layer aliases on top.
	byColumn := make(map[string]string, len(p.config.Columns))
	for field, column := range p.config.Columns {
		byColumn[normalizeHeader(column)] = field
	}
	for alias, field := range p.config.ColumnAliases {
		byColumn[normalizeHeader(alias)] = field
	}

	for i, column := range header {
		if field, ok := byColumn[normalizeHeader(column)]; ok {
			index[field] = i
		}
	}

	for _, field := range requiredFields {
		if _, ok := index[field]; !ok {
			return nil, errors.ParseError(errors.CodeMissingColumn, name, 1, p.config.Columns[field], "", nil).
				WithSuggestion("check the export's header row against the configured column mapping")
		}
	}

	return index, nil
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
