// Package journal exports the outcomes of one run to a SQLite file.
//
// The journal is a write-only export: it is emptied when opened and never
// read back by chirpload itself.
package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/migrations"
	"github.com/studiowebux/chirpload/internal/scenario"
)

// DefaultBatchSize is the number of outcomes buffered per insert transaction
const DefaultBatchSize = 100

// DefaultQueueSize is the capacity of the channel between the dispatch
// workers and the writer goroutine
const DefaultQueueSize = 8192

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// RunInfo describes the run being journaled
type RunInfo struct {
	Target         string
	Seed           int64
	MaxConcurrency int
	StartedAt      time.Time
}

type entry struct {
	phase   metrics.Phase
	outcome metrics.Outcome
}

// Journal implements metrics.Observer. Outcomes are queued on a channel
// and written in batches by a single goroutine, so dispatch workers never
// wait on a sqlite commit.
type Journal struct {
	db        *sql.DB
	logger    *zap.Logger
	batchSize int
	queueSize int

	mu       sync.RWMutex // guards runID, outcomes, closed
	runID    int64
	outcomes chan entry
	closed   bool
	done     chan struct{}

	statsMu sync.Mutex
	written int
	err     error
}

// Open creates or empties the journal at path. Use ":memory:" in tests.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		path = config.ExpandPath(path)
		if err := config.EnsureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// :memory: databases are per-connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := migrations.Truncate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{
		db:        db,
		logger:    logger.With(zap.String("component", "journal")),
		batchSize: DefaultBatchSize,
		queueSize: DefaultQueueSize,
	}, nil
}

// Begin records the run header. Outcomes observed before Begin are dropped.
func (j *Journal) Begin(info RunInfo) error {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	result, err := j.db.Exec(`
		INSERT INTO runs (target, seed, max_concurrency, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, info.Target, info.Seed, info.MaxConcurrency, info.StartedAt, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.outcomes != nil {
		return fmt.Errorf("journal run already started")
	}
	j.runID = id
	j.outcomes = make(chan entry, j.queueSize)
	j.done = make(chan struct{})
	go j.collect(id, j.outcomes)
	return nil
}

// OnOutcome implements metrics.Observer
func (j *Journal) OnOutcome(phase metrics.Phase, o metrics.Outcome) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.outcomes == nil || j.closed {
		return
	}
	j.outcomes <- entry{phase: phase, outcome: o}
}

// collect drains the queue until it is closed, one transaction per batch
func (j *Journal) collect(runID int64, in <-chan entry) {
	defer close(j.done)

	batch := make([]entry, 0, j.batchSize)
	for e := range in {
		batch = append(batch, e)
		if len(batch) >= j.batchSize {
			j.write(runID, batch)
			batch = batch[:0]
		}
	}
	j.write(runID, batch)
}

func (j *Journal) write(runID int64, batch []entry) {
	if len(batch) == 0 || j.writeErr() != nil {
		return
	}
	if err := j.insertBatch(runID, batch); err != nil {
		// stop journaling; the run itself goes on
		j.statsMu.Lock()
		j.err = err
		j.statsMu.Unlock()
		j.logger.Error("journal write failed, disabling journal", zap.Error(err))
		return
	}
	j.statsMu.Lock()
	j.written += len(batch)
	j.statsMu.Unlock()
}

func (j *Journal) writeErr() error {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	return j.err
}

// stop closes the queue and waits for the writer to drain it
func (j *Journal) stop() error {
	j.mu.Lock()
	if j.outcomes == nil || j.closed {
		j.mu.Unlock()
		return j.writeErr()
	}
	j.closed = true
	close(j.outcomes)
	done := j.done
	j.mu.Unlock()

	<-done
	return j.writeErr()
}

func (j *Journal) insertBatch(runID int64, entries []entry) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO outcomes
		(run_id, timestamp, phase, bucket, status_code, latency_us, succeeded, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		o := e.outcome
		var reason sql.NullString
		if !o.Succeeded {
			reason = sql.NullString{String: o.FailureReason, Valid: true}
		}
		_, err := stmt.Exec(runID, o.Timestamp, string(e.phase), o.BucketKey, o.Status,
			o.Latency.Microseconds(), o.Succeeded, reason)
		if err != nil {
			return fmt.Errorf("failed to insert outcome: %w", err)
		}
	}

	return tx.Commit()
}

// Finish writes outstanding outcomes, then the run summary. Outcomes
// observed after Finish are dropped.
func (j *Journal) Finish(result *scenario.Result) error {
	if err := j.stop(); err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	j.mu.RLock()
	runID := j.runID
	j.mu.RUnlock()
	if runID == 0 {
		return fmt.Errorf("journal run was never started")
	}

	status := StatusCompleted
	if result.State == scenario.StateAborted {
		status = StatusAborted
	}

	snap := result.Snapshot
	setup := snap.Phases[metrics.PhaseSetup]
	runtime := snap.Phases[metrics.PhaseRuntime]

	reasons := make([]string, 0, len(result.Verdict.Reasons))
	for _, r := range result.Verdict.Reasons {
		reasons = append(reasons, r.Message)
	}

	completedAt := snap.FinishedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	_, err := j.db.Exec(`
		UPDATE runs
		SET completed_at = ?, status = ?, total_requests = ?, setup_requests = ?, runtime_requests = ?,
		    runtime_errors = ?, runtime_error_rate = ?, runtime_p50_ms = ?, runtime_p95_ms = ?, runtime_p99_ms = ?,
		    passed = ?, verdict_reasons = ?
		WHERE id = ?
	`, completedAt, status, snap.Global.Total, setup.Total, runtime.Total,
		runtime.Failed, runtime.ErrorRate(), ms(runtime.P50), ms(runtime.P95), ms(runtime.P99),
		result.Verdict.Passed, strings.Join(reasons, "; "), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	for i, p := range result.Phases {
		_, err := j.db.Exec(`
			INSERT INTO run_phases (run_id, position, name, tag, tasks, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, i+1, p.Name, string(p.Tag), p.Tasks, p.Elapsed.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert phase %q: %w", p.Name, err)
		}
	}

	return nil
}

// Written returns how many outcomes have been committed
func (j *Journal) Written() int {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	return j.written
}

// Close drains the queue and closes the database
func (j *Journal) Close() error {
	flushErr := j.stop()
	if err := j.db.Close(); err != nil {
		return err
	}
	return flushErr
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
