package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"psp-settlement-reconciler/cmd/reconciler/config"
	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/ledger/memory"
	"psp-settlement-reconciler/internal/ledger/sqlite"
	"psp-settlement-reconciler/internal/parsers"
	"psp-settlement-reconciler/internal/reconciler"
	"psp-settlement-reconciler/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the process command
var (
	reportFile      string
	merchantsFile   string
	ledgerDB        string
	outputFormat    string
	outputFile      string
	gateway         string
	liableAccount   string
	legacyCutoff    string
	linkPayouts     bool
	monitorBalances bool
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a settlement report against the tenant ledgers",
	Long: `Process classifies every row of a settlement report, groups related rows
into logical financial events and applies idempotent postings per tenant.

This command requires:
- A settlement report file (CSV format)
- A merchants file (JSON) mapping processor store references to tenants

Examples:
  # One-off run against an in-memory ledger
  settlement-reconciler process --report-file report.csv --merchants-file merchants.json

  # Durable ledger with JSON summary
  settlement-reconciler process --report-file report.csv --merchants-file merchants.json \
    --ledger-db ledger.db --output-format json --output-file summary.json

  # Exclude the platform's own settlement account from correlation
  settlement-reconciler process --report-file report.csv --merchants-file merchants.json \
    --liable-account PLATFORM_LIABLE`,

	PreRunE: validateProcessFlags,
	RunE:    runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	// Required flags
	processCmd.Flags().StringVarP(&reportFile, "report-file", "r", "", "path to settlement report CSV file (required)")
	processCmd.Flags().StringVarP(&merchantsFile, "merchants-file", "m", "", "path to merchants JSON file (required)")

	// Ledger flags
	processCmd.Flags().StringVar(&ledgerDB, "ledger-db", "", "SQLite ledger database path (default: in-memory, postings discarded)")

	// Output flags
	processCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	processCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Run configuration flags
	processCmd.Flags().StringVar(&gateway, "gateway", "psp", "gateway identifier used for merchant resolution")
	processCmd.Flags().StringVar(&liableAccount, "liable-account", "", "liable account holder excluded from correlation")
	processCmd.Flags().StringVar(&legacyCutoff, "legacy-cutoff", "", "ignore manual corrections dated before this date (YYYY-MM-DD)")
	processCmd.Flags().BoolVar(&linkPayouts, "link-payouts", true, "link posted transactions to the payouts that settled them")
	processCmd.Flags().BoolVar(&monitorBalances, "monitor-balances", true, "scan closing balances and report negative accounts")

	// Mark required flags
	processCmd.MarkFlagRequired("report-file")
	processCmd.MarkFlagRequired("merchants-file")

	// Bind flags to viper
	viper.BindPFlag("report-file", processCmd.Flags().Lookup("report-file"))
	viper.BindPFlag("merchants-file", processCmd.Flags().Lookup("merchants-file"))
	viper.BindPFlag("ledger-db", processCmd.Flags().Lookup("ledger-db"))
	viper.BindPFlag("output-format", processCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", processCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("gateway", processCmd.Flags().Lookup("gateway"))
	viper.BindPFlag("liable-account", processCmd.Flags().Lookup("liable-account"))
	viper.BindPFlag("legacy-cutoff", processCmd.Flags().Lookup("legacy-cutoff"))
	viper.BindPFlag("link-payouts", processCmd.Flags().Lookup("link-payouts"))
	viper.BindPFlag("monitor-balances", processCmd.Flags().Lookup("monitor-balances"))
}

func validateProcessFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	reportFile = viper.GetString("report-file")
	merchantsFile = viper.GetString("merchants-file")
	ledgerDB = viper.GetString("ledger-db")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	gateway = viper.GetString("gateway")
	liableAccount = viper.GetString("liable-account")
	legacyCutoff = viper.GetString("legacy-cutoff")
	linkPayouts = viper.GetBool("link-payouts")
	monitorBalances = viper.GetBool("monitor-balances")

	if reportFile == "" {
		return fmt.Errorf("report-file is required")
	}
	if merchantsFile == "" {
		return fmt.Errorf("merchants-file is required")
	}

	if err := validateFileExists(reportFile, "settlement report file"); err != nil {
		return err
	}
	if err := validateFileExists(merchantsFile, "merchants file"); err != nil {
		return err
	}

	switch outputFormat {
	case "console", "json", "csv":
	default:
		return fmt.Errorf("invalid output format '%s': must be console, json or csv", outputFormat)
	}

	return nil
}

func validateFileExists(path, description string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %s", description, path)
		}
		return fmt.Errorf("cannot access %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file: %s", description, path)
	}
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	// executeProcess owns the deferred cleanup (ledger close, output flush),
	// so the exit code is decided only after those have run.
	if err := executeProcess(context.Background()); err != nil {
		os.Exit(NewCLIErrorHandler().HandleError(err))
	}
	return nil
}

func executeProcess(ctx context.Context) error {
	// Parse the settlement report
	parser, err := parsers.NewReportParser(config.CreateReportParserConfig())
	if err != nil {
		return err
	}

	rows, _, err := parser.ParseFile(ctx, reportFile)
	if err != nil {
		return err
	}

	// Load the merchant directory
	directory, err := config.LoadMerchantDirectory(merchantsFile)
	if err != nil {
		return err
	}

	// Open the ledger store
	store, err := openLedgerStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Build and run the engine
	engineConfig, err := config.CreateEngineConfig(gateway, liableAccount, legacyCutoff, linkPayouts, monitorBalances)
	if err != nil {
		return err
	}

	engine, err := reconciler.NewEngine(store, directory, config.DisabledTransferClient{}, engineConfig)
	if err != nil {
		return err
	}

	result, err := engine.ProcessReport(ctx, rows)
	if err != nil {
		return err
	}

	// Render the run summary
	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	writer, closeWriter, err := openOutputWriter()
	if err != nil {
		return err
	}
	defer closeWriter()

	return generator.GenerateReport(result, writer)
}

func openLedgerStore() (ledger.Store, error) {
	if ledgerDB == "" {
		return memory.New(), nil
	}
	return sqlite.New(ledgerDB)
}

func openOutputWriter() (io.Writer, func(), error) {
	if outputFile == "" {
		return os.Stdout, func() {}, nil
	}

	file, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create output file %s: %w", outputFile, err)
	}
	return file, func() { file.Close() }, nil
}
