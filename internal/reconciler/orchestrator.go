// Package reconciler provides the dispatch orchestration for one settlement
// reconciliation run.
//
// A run is single-threaded and synchronous: rows are classified strictly in
// arrival order, then the correlation buffers are flushed bucket by bucket in
// a fixed dependency order, one event group at a time. Each group's postings
// execute inside one ledger transaction scoped to the owning tenant. Row- and
// group-level failures are isolated to their unit of work; the run completes
// with a summary of processed, skipped and failed groups rather than a single
// pass/fail signal.
//
// Example usage:
//
//	engine, err := reconciler.NewEngine(store, directory, transfers, nil)
//	result, err := engine.ProcessReport(ctx, rows)
//	fmt.Printf("flushed=%d skipped=%d failed=%d\n",
//		result.GroupsFlushed, result.GroupsSkipped, result.GroupsFailed)
package reconciler

import (
	"context"
	"fmt"
	"time"

	"psp-settlement-reconciler/internal/balance"
	"psp-settlement-reconciler/internal/classifier"
	"psp-settlement-reconciler/internal/handlers"
	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/internal/payout"
	"psp-settlement-reconciler/internal/tenant"
	"psp-settlement-reconciler/pkg/errors"
	"psp-settlement-reconciler/pkg/logger"
)

// Config holds configuration options for a reconciliation run.
type Config struct {
	// Gateway identifies the processor whose merchant references are being
	// resolved.
	Gateway string

	// LiableAccountHolder is the platform's own settlement account, excluded
	// from customer-facing correlation.
	LiableAccountHolder string

	// ManualCorrectionCutoff is the date before which legacy manual
	// correction rows are ignored.
	ManualCorrectionCutoff time.Time

	// LinkPayouts enables the payout linkage pass after dispatch.
	LinkPayouts bool

	// MonitorBalances enables the closing-balance pass.
	MonitorBalances bool
}

// DefaultConfig returns a default run configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway:                "psp",
		ManualCorrectionCutoff: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		LinkPayouts:            true,
		MonitorBalances:        true,
	}
}

// Validate validates the run configuration.
func (c *Config) Validate() error {
	if c.Gateway == "" {
		return fmt.Errorf("gateway identifier is required")
	}
	return nil
}

// GroupOutcome is the terminal state of one event group.
type GroupOutcome string

const (
	// OutcomeFlushed means the handler ran and its transaction committed.
	OutcomeFlushed GroupOutcome = "flushed"
	// OutcomeFailed means the handler raised and its transaction rolled back.
	OutcomeFailed GroupOutcome = "failed"
	// OutcomeSkipped means no merchant account resolved for the group.
	OutcomeSkipped GroupOutcome = "skipped"
)

// GroupResult records the outcome of one event group's dispatch.
type GroupResult struct {
	Bucket         classifier.Bucket `json:"bucket"`
	CorrelationKey string            `json:"correlation_key"`
	RowCount       int               `json:"row_count"`
	Outcome        GroupOutcome      `json:"outcome"`
	Error          string            `json:"error,omitempty"`
}

// RunResult is the operator-facing summary of one reconciliation run.
type RunResult struct {
	RowsProcessed int `json:"rows_processed"`
	RowsRejected  int `json:"rows_rejected"`

	GroupsFlushed int `json:"groups_flushed"`
	GroupsSkipped int `json:"groups_skipped"`
	GroupsFailed  int `json:"groups_failed"`

	Groups   []*GroupResult `json:"groups,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`

	BalanceReport *balance.Report `json:"balance_report,omitempty"`

	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
}

// Engine runs the classification, dispatch, payout linkage and balance
// passes over one settlement report. An engine holds per-run state (buffers,
// merchant cache) and must not be reused across runs.
type Engine struct {
	config     *Config
	store      ledger.Store
	resolver   *tenant.Resolver
	classifier *classifier.Classifier
	monitor    *balance.Monitor
	tracker    *payout.Tracker
	handlers   map[classifier.Bucket]handlers.GroupHandler
	logger     logger.Logger
}

// NewEngine creates an engine for one reconciliation run.
func NewEngine(store ledger.Store, directory tenant.Directory, transfers payout.TransferClient, config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "run_config", err)
	}

	if store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "ledger_store", nil).
			WithSuggestion("provide a ledger store implementation")
	}

	if directory == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "tenant_directory", nil).
			WithSuggestion("provide a tenant directory implementation")
	}

	resolver := tenant.NewResolver(directory, config.Gateway)

	var monitor *balance.Monitor
	if config.MonitorBalances {
		monitor = balance.NewMonitor()
	}

	var tracker *payout.Tracker
	if config.LinkPayouts {
		if transfers == nil {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "transfer_client", nil).
				WithSuggestion("provide a transfer client or disable payout linkage")
		}
		tracker = payout.NewTracker(store, resolver, transfers)
	}

	engine := &Engine{
		config:   config,
		store:    store,
		resolver: resolver,
		classifier: classifier.New(&classifier.Config{
			LiableAccountHolder:    config.LiableAccountHolder,
			ManualCorrectionCutoff: config.ManualCorrectionCutoff,
		}, monitor),
		monitor:  monitor,
		tracker:  tracker,
		handlers: defaultHandlers(),
		logger:   logger.GetGlobalLogger().WithComponent("dispatch_orchestrator"),
	}

	return engine, nil
}

func defaultHandlers() map[classifier.Bucket]handlers.GroupHandler {
	return map[classifier.Bucket]handlers.GroupHandler{
		classifier.BucketPayments:            handlers.NewCaptureHandler(),
		classifier.BucketInternalTransfers:   handlers.NewInternalTransferHandler(),
		classifier.BucketRefunds:             handlers.NewRefundHandler(),
		classifier.BucketRefundReversals:     handlers.NewRefundReversalHandler(),
		classifier.BucketChargebacks:         handlers.NewChargebackHandler(),
		classifier.BucketChargebackReversals: handlers.NewChargebackReversalHandler(),
		classifier.BucketPayouts:             handlers.NewPayoutHandler(),
		classifier.BucketTopUps:              handlers.NewTopUpHandler(),
		classifier.BucketPaymentReversals:    handlers.NewPaymentReversalHandler(),
	}
}

// ProcessReport runs the full pipeline over an in-memory row sequence:
// classification per row, dispatch in fixed bucket order, then the payout
// linkage and balance passes. Per-row and per-group failures are recorded in
// the result; only structural errors return a non-nil error.
func (e *Engine) ProcessReport(ctx context.Context, rows []*models.ReportRow) (*RunResult, error) {
	startTime := time.Now()
	result := &RunResult{ProcessedAt: startTime}

	e.logger.WithField("row_count", len(rows)).Info("Starting reconciliation run")

	// Pass 1: classify every row into its correlation buffer. An unsupported
	// row rejects that row only.
	for _, row := range rows {
		result.RowsProcessed++
		if err := e.classifier.Classify(row); err != nil {
			result.RowsRejected++
			result.Warnings = append(result.Warnings, err.Error())
			e.logger.WithError(err).WithField("row", row.Identifier()).Warn("Rejected report row")
		}
	}

	// Pass 2: flush the buffers in dependency order.
	e.finish(ctx, result)

	// Pass 3: link posted transactions to the payouts that settled them.
	if e.tracker != nil {
		if err := e.tracker.Run(ctx, rows); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("payout linkage incomplete: %v", err))
			e.logger.WithError(err).Warn("Payout linkage pass did not complete")
		}
	}

	if e.monitor != nil {
		result.BalanceReport = e.monitor.Report()
	}

	result.Duration = time.Since(startTime)

	e.logger.WithFields(logger.Fields{
		"rows_processed": result.RowsProcessed,
		"rows_rejected":  result.RowsRejected,
		"groups_flushed": result.GroupsFlushed,
		"groups_skipped": result.GroupsSkipped,
		"groups_failed":  result.GroupsFailed,
		"duration":       result.Duration,
	}).Info("Reconciliation run completed")

	return result, nil
}

// finish flushes every correlation buffer in the fixed flush order. Payouts
// settle prior transactions, so all transaction-level buckets flush first;
// reversals flush after the postings they compensate.
func (e *Engine) finish(ctx context.Context, result *RunResult) {
	for _, bucket := range classifier.AllBuckets {
		handler := e.handlers[bucket]
		e.classifier.Buffer(bucket).Each(func(key string, rows []*models.ReportRow) {
			group := e.dispatchGroup(ctx, bucket, handler, key, rows)
			result.Groups = append(result.Groups, group)

			switch group.Outcome {
			case OutcomeFlushed:
				result.GroupsFlushed++
			case OutcomeSkipped:
				result.GroupsSkipped++
			case OutcomeFailed:
				result.GroupsFailed++
				result.Warnings = append(result.Warnings, group.Error)
			}
		})
	}
}

// dispatchGroup resolves the group's merchant account, enters the owning
// tenant's context and executes the category handler inside one transaction.
func (e *Engine) dispatchGroup(ctx context.Context, bucket classifier.Bucket, handler handlers.GroupHandler, key string, rows []*models.ReportRow) *GroupResult {
	group := &GroupResult{
		Bucket:         bucket,
		CorrelationKey: key,
		RowCount:       len(rows),
	}

	merchant, err := e.resolveGroupMerchant(ctx, rows)
	if err != nil {
		group.Outcome = OutcomeFailed
		group.Error = errors.GroupError(errors.CodeGroupFailed, handler.Category(), key, err).Error()
		return group
	}

	if merchant == nil {
		// The event cannot be attributed to a tenant. Logged but not fatal.
		e.logger.WithFields(logger.Fields{
			"bucket":          bucket,
			"correlation_key": key,
		}).Info("Skipping group without resolvable merchant account")
		group.Outcome = OutcomeSkipped
		return group
	}

	owner, err := e.resolver.ResolveTenant(ctx, merchant)
	if err != nil {
		group.Outcome = OutcomeFailed
		group.Error = errors.GroupError(errors.CodeGroupFailed, handler.Category(), key, err).Error()
		return group
	}

	err = tenant.RunAsTenant(ctx, owner, func(ctx context.Context) error {
		return e.store.RunInTransaction(ctx, func(ctx context.Context, scoped ledger.Store) error {
			return handler.HandleRows(ctx, scoped, merchant, key, rows)
		})
	})
	if err != nil {
		e.logger.WithError(err).WithFields(logger.Fields{
			"bucket":          bucket,
			"correlation_key": key,
			"merchant":        merchant.ID,
		}).Error("Group handler failed, transaction rolled back")
		group.Outcome = OutcomeFailed
		group.Error = errors.GroupError(errors.CodeGroupFailed, handler.Category(), key, err).Error()
		return group
	}

	group.Outcome = OutcomeFlushed
	return group
}

// resolveGroupMerchant scans the group's rows for the first non-empty
// store/balance-account reference. Rows in one group share a merchant, but
// not every row carries the reference field.
func (e *Engine) resolveGroupMerchant(ctx context.Context, rows []*models.ReportRow) (*models.MerchantAccount, error) {
	for _, row := range rows {
		if row.BalanceAccountReference == "" {
			continue
		}
		return e.resolver.ResolveMerchantAccount(ctx, row.BalanceAccountReference)
	}
	return nil, nil
}
