package pipeline

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bankbatch/internal/aggregate"
	"github.com/dvloznov/bankbatch/internal/archive"
	"github.com/dvloznov/bankbatch/internal/batchfile"
	"github.com/dvloznov/bankbatch/internal/config"
	"github.com/dvloznov/bankbatch/internal/domain"
)

// Archiver receives the unmodified batch payload for audit. Implemented by
// the object-storage uploader; a nil Archiver disables the side write.
type Archiver interface {
	Store(ctx context.Context, objectName string, payload []byte) error
}

// Orchestrator sequences one batch run: validation over every record, the
// chunked load of the valid stream, then (when configured) aggregate
// recomputation over the affected date range. It owns the run counters and
// never silently drops a record.
type Orchestrator struct {
	cfg       *config.Config
	validator *Validator
	loader    *Loader
	engine    *aggregate.Engine
	archiver  Archiver
	log       zerolog.Logger
}

// NewOrchestrator wires a run. Configuration is validated here, before any
// I/O: invalid policy parameters abort with a *config.ConfigurationError.
// engine and archiver may be nil to disable aggregation or archival.
func NewOrchestrator(cfg *config.Config, store ChunkStore, engine *aggregate.Engine, archiver Archiver, log zerolog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:       cfg,
		validator: NewValidator(cfg.Validation),
		loader:    NewLoader(store, cfg, log),
		engine:    engine,
		archiver:  archiver,
		log:       log,
	}, nil
}

// Run processes one batch and always returns a report; an aborted run yields
// a partial report with the abort reason. Already-committed chunks are never
// rolled back.
func (o *Orchestrator) Run(ctx context.Context, batch *batchfile.Batch) *RunReport {
	report := &RunReport{
		RunID:           uuid.NewString(),
		BatchName:       batch.Name,
		StartedAt:       time.Now().UTC(),
		InvalidByRule:   make(map[RuleCode]int),
		FailuresByClass: make(map[FailureClass]int),
	}
	log := o.log.With().Str("run_id", report.RunID).Str("batch", batch.Name).Logger()
	log.Info().Int("records", len(batch.Records)).Msg("batch run started")

	o.archiveRaw(batch, log)

	records := make(chan domain.Transaction, 256)
	loaded := make(chan *LoadResult, 1)
	go func() {
		loaded <- o.loader.Load(ctx, records)
	}()

	var minDate, maxDate civil.Date
	cancelled := false
	for _, rec := range batch.Records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		report.Received++

		out := o.validator.Validate(rec)
		if !out.Valid() {
			report.Invalid++
			for _, code := range out.Violations {
				report.InvalidByRule[code]++
			}
			log.Debug().Int("line", rec.Line).Str("transaction_id", rec.TransactionID).
				Interface("violations", out.Violations).Msg("record rejected")
			continue
		}
		report.Valid++

		tx := *out.Transaction
		if !minDate.IsValid() || tx.TransactionDate.Before(minDate) {
			minDate = tx.TransactionDate
		}
		if !maxDate.IsValid() || tx.TransactionDate.After(maxDate) {
			maxDate = tx.TransactionDate
		}

		select {
		case records <- tx:
		case <-ctx.Done():
			cancelled = true
		}
		if cancelled {
			break
		}
	}
	close(records)

	res := <-loaded
	report.Loaded = res.Loaded
	report.PermanentlyFailed = len(res.Failed)
	report.FailedRecords = res.Failed
	report.Retries = res.Retries
	report.ChunkCommits = res.ChunkCommits
	for class, n := range res.FailuresByClass {
		report.FailuresByClass[class] += n
	}

	if cancelled || res.Cancelled {
		report.Aborted = true
		report.AbortReason = "run cancelled"
		if err := ctx.Err(); err != nil {
			report.AbortReason = err.Error()
		}
	}

	if !report.Aborted {
		o.runAggregation(ctx, report, minDate, maxDate, log)
	}

	report.FinishedAt = time.Now().UTC()
	log.Info().Int("received", report.Received).Int("loaded", report.Loaded).
		Int("invalid", report.Invalid).Int("failed", report.PermanentlyFailed).
		Int("retries", report.Retries).Bool("aborted", report.Aborted).
		Msg("batch run finished")
	return report
}

// archiveRaw fires the audit side-write and moves on. The upload runs on its
// own detached context so cancelling the run does not lose the audit copy,
// and its failure only logs.
func (o *Orchestrator) archiveRaw(batch *batchfile.Batch, log zerolog.Logger) {
	if o.archiver == nil {
		return
	}
	objectName := archive.ObjectName(batch.Name, time.Now())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := o.archiver.Store(ctx, objectName, batch.Payload); err != nil {
			log.Warn().Err(err).Str("object", objectName).Msg("raw batch archival failed")
			return
		}
		log.Debug().Str("object", objectName).Msg("raw batch archived")
	}()
}

// runAggregation recomputes rollups for the configured range, or for the span
// of dates observed in this batch. Failures are recorded in the report, not
// escalated: the loaded data stays committed and aggregation can be re-run.
func (o *Orchestrator) runAggregation(ctx context.Context, report *RunReport, minDate, maxDate civil.Date, log zerolog.Logger) {
	if o.engine == nil || !o.cfg.Aggregation.Enabled {
		return
	}

	from, to := o.cfg.Aggregation.From, o.cfg.Aggregation.To
	if !from.IsValid() {
		if report.Loaded == 0 || !minDate.IsValid() {
			return
		}
		from, to = minDate, maxDate
	}

	policy := NewRetryPolicy(o.cfg.Retry)
	var summary *aggregate.Summary
	retries, err := policy.Execute(ctx, func(ctx context.Context) error {
		s, err := o.engine.Recompute(ctx, from, to)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	report.Retries += retries
	if err != nil {
		report.AggregationError = err.Error()
		log.Error().Err(err).Stringer("from", from).Stringer("to", to).Msg("aggregation failed")
		return
	}
	report.Aggregation = summary
}
