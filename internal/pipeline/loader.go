package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/bankbatch/internal/config"
	"github.com/dvloznov/bankbatch/internal/domain"
)

// ChunkStore is the loader's view of the durable store. InsertChunk must be
// atomic (all-or-nothing) and idempotent with respect to retries: records
// whose transaction id is already stored are skipped and reported as
// duplicates, the original rows untouched.
type ChunkStore interface {
	InsertChunk(ctx context.Context, records []domain.Transaction) (inserted int, duplicates []string, err error)
}

// FailedRecord is one record that could not be persisted, with the failure
// class it was rejected under.
type FailedRecord struct {
	TransactionID string       `json:"transaction_id"`
	Class         FailureClass `json:"class"`
	Reason        string       `json:"reason"`
}

// LoadResult accounts for every record handed to the loader: each is either
// counted in Loaded or listed in Failed.
type LoadResult struct {
	Loaded          int
	Failed          []FailedRecord
	Retries         int
	ChunkCommits    int
	FailuresByClass map[FailureClass]int
	Cancelled       bool
}

// Loader groups validated records into fixed-size chunks and writes each
// chunk as one atomic store transaction. Chunk writes run on a bounded worker
// pool; each worker owns disjoint transaction ids because records are
// de-duplicated before dispatch. A permanently failed chunk never aborts the
// batch: its records are recorded and the loader moves on.
type Loader struct {
	store     ChunkStore
	policy    RetryPolicy
	chunkSize int
	workers   int
	log       zerolog.Logger
}

// NewLoader builds a loader. chunkSize and workers come from configuration
// (defaults 10,000 and 4).
func NewLoader(store ChunkStore, cfg *config.Config, log zerolog.Logger) *Loader {
	return &Loader{
		store:     store,
		policy:    NewRetryPolicy(cfg.Retry),
		chunkSize: cfg.ChunkSize,
		workers:   cfg.Workers,
		log:       log,
	}
}

// Load consumes the record stream until it closes and persists it in chunks.
// Cancellation is honored between chunks: an in-flight chunk commits or rolls
// back atomically, no new chunks are dispatched afterwards, and committed
// chunks stay committed.
func (l *Loader) Load(ctx context.Context, records <-chan domain.Transaction) *LoadResult {
	res := &LoadResult{FailuresByClass: make(map[FailureClass]int)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(l.workers)

	seen := make(map[string]struct{})
	chunk := make([]domain.Transaction, 0, l.chunkSize)
	chunkIdx := 0

	dispatch := func() {
		c := chunk
		chunk = make([]domain.Transaction, 0, l.chunkSize)
		chunkIdx++
		idx := chunkIdx
		g.Go(func() error {
			l.processChunk(ctx, idx, c, res, &mu)
			return nil
		})
	}

	for rec := range records {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		if _, dup := seen[rec.TransactionID]; dup {
			// Within a run the first occurrence wins; row order inside a
			// chunk is preserved so this is deterministic.
			mu.Lock()
			res.Failed = append(res.Failed, FailedRecord{
				TransactionID: rec.TransactionID,
				Class:         PermanentValidation,
				Reason:        "duplicate transaction id in batch",
			})
			res.FailuresByClass[PermanentValidation]++
			mu.Unlock()
			continue
		}
		seen[rec.TransactionID] = struct{}{}

		chunk = append(chunk, rec)
		if len(chunk) == l.chunkSize {
			dispatch()
		}
	}
	if !res.Cancelled && len(chunk) > 0 {
		dispatch()
	}

	g.Wait()

	if ctx.Err() != nil {
		res.Cancelled = true
	}
	return res
}

// processChunk writes one chunk under the retry policy and records the
// outcome. Workers only touch shared state under mu.
func (l *Loader) processChunk(ctx context.Context, idx int, chunk []domain.Transaction, res *LoadResult, mu *sync.Mutex) {
	var inserted int
	var duplicates []string

	retries, err := l.policy.Execute(ctx, func(ctx context.Context) error {
		n, dups, opErr := l.store.InsertChunk(ctx, chunk)
		if opErr != nil {
			return opErr
		}
		inserted, duplicates = n, dups
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	res.Retries += retries

	if err != nil {
		class := Classify(err)
		l.log.Error().Err(err).Int("chunk", idx).Int("records", len(chunk)).
			Str("class", string(class)).Int("retries", retries).
			Msg("chunk permanently failed")
		for _, rec := range chunk {
			res.Failed = append(res.Failed, FailedRecord{
				TransactionID: rec.TransactionID,
				Class:         class,
				Reason:        err.Error(),
			})
		}
		res.FailuresByClass[class] += len(chunk)
		return
	}

	res.ChunkCommits++
	res.Loaded += inserted
	for _, id := range duplicates {
		res.Failed = append(res.Failed, FailedRecord{
			TransactionID: id,
			Class:         PermanentValidation,
			Reason:        "duplicate transaction id already stored",
		})
	}
	if len(duplicates) > 0 {
		res.FailuresByClass[PermanentValidation] += len(duplicates)
	}

	l.log.Debug().Int("chunk", idx).Int("inserted", inserted).
		Int("duplicates", len(duplicates)).Int("retries", retries).
		Msg("chunk committed")
}
