package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultQueueSize is the number of transactions that may wait for the
// writer before Do blocks.
const DefaultQueueSize = 256

var ErrWorkerClosed = errors.New("db worker closed")

var (
	txDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portunus",
			Subsystem: "db",
			Name:      "tx_duration_seconds",
			Help:      "Duration of write transactions run by the single writer",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"outcome"},
	)
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "portunus",
		Subsystem: "db",
		Name:      "writer_queue_depth",
		Help:      "Transactions waiting for the single writer",
	})
)

func init() {
	prometheus.MustRegister(txDuration, queueDepth)
}

// TxFn runs inside a write transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker serializes every write transaction through one goroutine so
// SQLite never sees concurrent writers. Reads go straight to *sql.DB.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewWorker(db *sql.DB) *Worker {
	return NewWorkerSize(db, DefaultQueueSize)
}

func NewWorkerSize(db *sql.DB, queue int) *Worker {
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	w := &Worker{
		db:   db,
		jobs: make(chan job, queue),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close stops accepting work, finishes what is queued and returns. It is
// safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}

// Do queues fn and waits for its transaction to commit or roll back. If ctx
// ends first Do returns ctx.Err(); a job already dequeued still runs to
// completion and its result is discarded.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- job{ctx: ctx, fn: fn, ch: ch}:
		queueDepth.Inc()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		queueDepth.Dec()
		start := time.Now()
		err := w.run(j)
		outcome := "commit"
		if err != nil {
			outcome = "rollback"
		}
		txDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		j.ch <- err
	}
}

func (w *Worker) run(j job) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}
	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
