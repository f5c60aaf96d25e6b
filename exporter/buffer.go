package exporter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// defaults for the buffer, overridable via options.
const (
	defaultMaxBacklog  = 4096
	defaultDrainBatch  = 256
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = time.Minute
)

// BufferOption configures a BufferedExporter.
type BufferOption func(*BufferedExporter)

// WithBufferLogger sets a structured logger for buffer activity. When set,
// the exporter logs persisted and drained batches at debug level and
// delivery failures at warn. If not set, no logs are emitted.
func WithBufferLogger(l *slog.Logger) BufferOption {
	return func(b *BufferedExporter) { b.logger = l }
}

// WithMaxBacklog caps how many spans the backlog keeps. When the cap is
// exceeded the oldest rows are dropped first.
func WithMaxBacklog(n int) BufferOption {
	return func(b *BufferedExporter) { b.maxBacklog = n }
}

// WithDrainBackoff sets the initial delay before retrying a drain after a
// delivery failure. Each subsequent delay doubles up to one minute.
func WithDrainBackoff(d time.Duration) BufferOption {
	return func(b *BufferedExporter) { b.baseBackoff = d }
}

// BufferedExporter wraps a SpanExporter with a SQLite-backed backlog. Spans
// that fail to deliver are persisted and resent, oldest first, before newer
// batches once delivery recovers. ExportSpans never surfaces delivery errors
// to the span processor; the backlog is the error handling.
type BufferedExporter struct {
	inner      sdktrace.SpanExporter
	db         *sql.DB
	logger     *slog.Logger
	maxBacklog int

	// drainMu serializes drains: two concurrent exports must not read the
	// same backlog rows and deliver them twice.
	drainMu sync.Mutex

	mu          sync.Mutex
	baseBackoff time.Duration
	backoff     time.Duration
	nextDrain   time.Time
}

var _ sdktrace.SpanExporter = (*BufferedExporter)(nil)

// NewBufferedExporter opens (or creates) the backlog database at path and
// returns an exporter delivering through inner. The database uses a single
// connection so concurrent exports serialize instead of tripping over
// SQLITE_BUSY.
func NewBufferedExporter(inner sdktrace.SpanExporter, path string, opts ...BufferOption) (*BufferedExporter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open backlog db: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &BufferedExporter{
		inner:       inner,
		db:          db,
		logger:      nopLogger,
		maxBacklog:  defaultMaxBacklog,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}

	ddl := `CREATE TABLE IF NOT EXISTS span_backlog (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create backlog table: %w", err)
	}
	return b, nil
}

// ExportSpans delivers spans through the wrapped exporter. On failure the
// batch is persisted to the backlog and ExportSpans reports success; the
// backlog drains, oldest first, ahead of later batches once delivery works
// again.
func (b *BufferedExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	b.drainIfDue(ctx)

	if err := b.inner.ExportSpans(ctx, spans); err != nil {
		b.logger.Warn("beacon: span delivery failed, buffering batch", "spans", len(spans), "error", err)
		b.noteFailure()
		return b.persist(ctx, spans)
	}
	b.noteSuccess()
	return nil
}

// Shutdown makes a final drain attempt, closes the backlog database, and
// shuts down the wrapped exporter.
func (b *BufferedExporter) Shutdown(ctx context.Context) error {
	b.drain(ctx)
	dbErr := b.db.Close()
	innerErr := b.inner.Shutdown(ctx)
	if innerErr != nil {
		return innerErr
	}
	return dbErr
}

// drainIfDue resends backlogged spans unless a recent failure put the drain
// on backoff.
func (b *BufferedExporter) drainIfDue(ctx context.Context) {
	b.mu.Lock()
	due := time.Now().After(b.nextDrain)
	b.mu.Unlock()
	if due {
		b.drain(ctx)
	}
}

func (b *BufferedExporter) noteFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backoff == 0 {
		b.backoff = b.baseBackoff
	} else {
		b.backoff *= 2
		if b.backoff > defaultMaxBackoff {
			b.backoff = defaultMaxBackoff
		}
	}
	b.nextDrain = time.Now().Add(b.backoff)
}

func (b *BufferedExporter) noteSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backoff = 0
	b.nextDrain = time.Time{}
}

// drain resends backlogged spans in insertion order until the backlog is
// empty or a delivery fails. Only one drain runs at a time.
func (b *BufferedExporter) drain(ctx context.Context) {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()
	for {
		rows, err := b.db.QueryContext(ctx,
			`SELECT id, payload FROM span_backlog ORDER BY id LIMIT ?`, defaultDrainBatch)
		if err != nil {
			b.logger.Warn("beacon: backlog read failed", "error", err)
			return
		}

		var ids []int64
		var batch []sdktrace.ReadOnlySpan
		for rows.Next() {
			var id int64
			var payload string
			if err := rows.Scan(&id, &payload); err != nil {
				continue
			}
			ids = append(ids, id)
			var rec spanRecord
			if err := json.Unmarshal([]byte(payload), &rec); err != nil {
				// Undecodable rows are dropped with their batch below.
				continue
			}
			batch = append(batch, rec.snapshot())
		}
		if err := rows.Close(); err != nil {
			return
		}
		if len(ids) == 0 {
			return
		}

		if len(batch) > 0 {
			if err := b.inner.ExportSpans(ctx, batch); err != nil {
				b.noteFailure()
				return
			}
		}
		if err := b.deleteRows(ctx, ids); err != nil {
			b.logger.Warn("beacon: backlog cleanup failed", "error", err)
			return
		}
		b.logger.Debug("beacon: backlog drained", "spans", len(batch))
	}
}

func (b *BufferedExporter) deleteRows(ctx context.Context, ids []int64) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM span_backlog WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// persist stores the batch in the backlog and prunes the oldest rows past
// the cap.
func (b *BufferedExporter) persist(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	now := time.Now().Unix()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backlog tx: %w", err)
	}
	for _, span := range spans {
		payload, err := json.Marshal(newSpanRecord(span))
		if err != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO span_backlog (payload, created_at) VALUES (?, ?)`,
			string(payload), now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert backlog row: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM span_backlog WHERE id NOT IN (
			SELECT id FROM span_backlog ORDER BY id DESC LIMIT ?
		)`, b.maxBacklog); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune backlog: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit backlog tx: %w", err)
	}
	b.logger.Debug("beacon: batch buffered", "spans", len(spans))
	return nil
}

// backlogSize reports how many spans are waiting. Used by tests.
func (b *BufferedExporter) backlogSize(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM span_backlog`).Scan(&n)
	return n, err
}

// spanRecord is the durable shape of one span. Only the fields the ingest
// needs survive the round trip; events and links do not. Slice-valued
// attributes flatten to their string form.
type spanRecord struct {
	TraceID    string       `json:"trace_id"`
	SpanID     string       `json:"span_id"`
	ParentID   string       `json:"parent_id,omitempty"`
	Name       string       `json:"name"`
	Kind       int          `json:"kind"`
	Start      int64        `json:"start"`
	End        int64        `json:"end"`
	Attrs      []attrRecord `json:"attrs,omitempty"`
	StatusCode uint32       `json:"status_code,omitempty"`
	StatusDesc string       `json:"status_desc,omitempty"`
}

type attrRecord struct {
	Key   string  `json:"k"`
	Type  string  `json:"t"`
	Str   string  `json:"s,omitempty"`
	Int   int64   `json:"i,omitempty"`
	Float float64 `json:"f,omitempty"`
	Bool  bool    `json:"b,omitempty"`
}

func newSpanRecord(span sdktrace.ReadOnlySpan) spanRecord {
	sc := span.SpanContext()
	rec := spanRecord{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Name:       span.Name(),
		Kind:       int(span.SpanKind()),
		Start:      span.StartTime().UnixNano(),
		End:        span.EndTime().UnixNano(),
		StatusCode: uint32(span.Status().Code),
		StatusDesc: span.Status().Description,
	}
	if span.Parent().HasSpanID() {
		rec.ParentID = span.Parent().SpanID().String()
	}
	for _, kv := range span.Attributes() {
		rec.Attrs = append(rec.Attrs, newAttrRecord(kv))
	}
	return rec
}

func newAttrRecord(kv attribute.KeyValue) attrRecord {
	rec := attrRecord{Key: string(kv.Key)}
	switch kv.Value.Type() {
	case attribute.STRING:
		rec.Type = "string"
		rec.Str = kv.Value.AsString()
	case attribute.INT64:
		rec.Type = "int64"
		rec.Int = kv.Value.AsInt64()
	case attribute.FLOAT64:
		rec.Type = "float64"
		rec.Float = kv.Value.AsFloat64()
	case attribute.BOOL:
		rec.Type = "bool"
		rec.Bool = kv.Value.AsBool()
	default:
		rec.Type = "string"
		rec.Str = kv.Value.Emit()
	}
	return rec
}

func (r attrRecord) keyValue() attribute.KeyValue {
	key := attribute.Key(r.Key)
	switch r.Type {
	case "int64":
		return key.Int64(r.Int)
	case "float64":
		return key.Float64(r.Float)
	case "bool":
		return key.Bool(r.Bool)
	default:
		return key.String(r.Str)
	}
}

// snapshot rebuilds an exportable span from the record. The SDK does not
// allow third-party ReadOnlySpan implementations, so the record goes through
// a tracetest stub whose Snapshot satisfies the interface.
func (r spanRecord) snapshot() sdktrace.ReadOnlySpan {
	traceID, _ := trace.TraceIDFromHex(r.TraceID)
	spanID, _ := trace.SpanIDFromHex(r.SpanID)
	stub := tracetest.SpanStub{
		Name: r.Name,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}),
		SpanKind:  trace.SpanKind(r.Kind),
		StartTime: time.Unix(0, r.Start),
		EndTime:   time.Unix(0, r.End),
		Status: sdktrace.Status{
			Code:        codes.Code(r.StatusCode),
			Description: r.StatusDesc,
		},
	}
	if r.ParentID != "" {
		parentID, _ := trace.SpanIDFromHex(r.ParentID)
		stub.Parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     parentID,
			TraceFlags: trace.FlagsSampled,
		})
	}
	for _, a := range r.Attrs {
		stub.Attributes = append(stub.Attributes, a.keyValue())
	}
	return stub.Snapshot()
}

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
