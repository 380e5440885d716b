package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/observability"
)

const deploymentsTable = "deployments"

const deploymentsDDL = `CREATE TABLE IF NOT EXISTS %s (
	event_id      String,
	ts            DateTime64(3),
	trace_id      String,
	cast_hash     String,
	fid           Int64,
	outcome       LowCardinality(String),
	status        LowCardinality(String),
	reason        String,
	symbol        String,
	token_address String,
	tx_hash       String,
	block_number  UInt64,
	chain_id      Int64,
	attempts      UInt16,
	duration_ms   Int64
) ENGINE = MergeTree
ORDER BY (ts, cast_hash)`

const deploymentColumns = "event_id, ts, trace_id, cast_hash, fid, outcome, status, reason, " +
	"symbol, token_address, tx_hash, block_number, chain_id, attempts, duration_ms"

func qualify(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}

// DeploymentWriter batches pipeline outcome events and flushes them to
// ClickHouse periodically or when the batch is full.
type DeploymentWriter struct {
	client        *Client
	dbPrefix      string
	batchSize     int
	flushInterval time.Duration
	metrics       *observability.Metrics

	mu     sync.Mutex
	buf    []bus.OutcomeEvent
	closed bool

	flushCount atomic.Int64
	errorCount atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	// flushHook replaces real writes during testing.
	flushHook func(ctx context.Context, table string, rows [][]any) error
}

// NewDeploymentWriter creates a writer for the deployments table in dbPrefix.
// metrics may be nil.
func NewDeploymentWriter(client *Client, dbPrefix string, batchSize int, flushInterval time.Duration, metrics *observability.Metrics) *DeploymentWriter {
	if batchSize <= 0 {
		batchSize = 200
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	return &DeploymentWriter{
		client:        client,
		dbPrefix:      dbPrefix,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       metrics,
		buf:           make([]bus.OutcomeEvent, 0, batchSize),
	}
}

// Record adds an outcome event to the buffer and flushes once the buffer
// reaches the batch size.
func (w *DeploymentWriter) Record(ctx context.Context, ev bus.OutcomeEvent) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("deployment writer is closed")
	}
	w.buf = append(w.buf, ev)
	needsFlush := len(w.buf) >= w.batchSize
	w.mu.Unlock()

	if needsFlush {
		return w.Flush(ctx)
	}
	return nil
}

// Start begins the background flush loop. Cancelling ctx stops the loop
// after a final flush.
func (w *DeploymentWriter) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		log.Info().
			Str("table", qualify(w.dbPrefix, deploymentsTable)).
			Int("batch_size", w.batchSize).
			Dur("flush_interval", w.flushInterval).
			Msg("deployment writer started")

		for {
			select {
			case <-bgCtx.Done():
				if err := w.Flush(context.Background()); err != nil {
					log.Error().Err(err).Msg("deployment writer: final flush error")
				}
				return
			case <-ticker.C:
				if err := w.Flush(bgCtx); err != nil {
					log.Error().Err(err).Msg("deployment writer: periodic flush error")
				}
			}
		}
	}()
}

// Flush writes all buffered rows. Rows of a failed flush are dropped;
// the outcome topic remains the durable record.
func (w *DeploymentWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	events := w.buf
	w.buf = make([]bus.OutcomeEvent, 0, w.batchSize)
	w.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, len(events))
	for i, ev := range events {
		rows[i] = toRow(ev)
	}

	if err := w.write(ctx, rows); err != nil {
		w.errorCount.Add(1)
		log.Error().Err(err).Int("count", len(rows)).Msg("deployment writer: flush failed")
		return err
	}

	w.flushCount.Add(1)
	if w.metrics != nil {
		w.metrics.AnalyticsFlushRows.Add(float64(len(rows)))
	}
	log.Debug().Int("rows", len(rows)).Msg("deployment writer flushed")
	return nil
}

func (w *DeploymentWriter) write(ctx context.Context, rows [][]any) error {
	table := qualify(w.dbPrefix, deploymentsTable)
	if w.flushHook != nil {
		return w.flushHook(ctx, table, rows)
	}

	batch, err := w.client.Conn().PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, deploymentColumns))
	if err != nil {
		return fmt.Errorf("prepare deployments batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			return fmt.Errorf("append deployment row: %w", err)
		}
	}
	return batch.Send()
}

func toRow(ev bus.OutcomeEvent) []any {
	return []any{
		ev.EventID, ev.Timestamp, ev.TraceID, ev.CastHash, ev.FID,
		ev.Outcome, ev.Status, ev.Reason,
		ev.Symbol, ev.TokenAddress, ev.TxHash, ev.BlockNumber,
		ev.ChainID, uint16(ev.Attempts), ev.DurationMs,
	}
}

// Close stops the background loop and performs a final flush. Later
// Record calls fail.
func (w *DeploymentWriter) Close() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	if err := w.Flush(context.Background()); err != nil {
		log.Error().Err(err).Msg("deployment writer: final flush on close failed")
		return err
	}

	log.Info().
		Int64("flushes", w.flushCount.Load()).
		Int64("errors", w.errorCount.Load()).
		Msg("deployment writer closed")
	return nil
}

// Stats returns writer statistics.
func (w *DeploymentWriter) Stats() (flushCount, errorCount int64, pending int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount.Load(), w.errorCount.Load(), len(w.buf)
}

// SetFlushHook sets a test hook. Intended for testing only.
func (w *DeploymentWriter) SetFlushHook(hook func(ctx context.Context, table string, rows [][]any) error) {
	w.flushHook = hook
}
