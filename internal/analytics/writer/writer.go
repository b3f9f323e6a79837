package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/marketplace-settlement/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the analytics writer behavior.
type Config struct {
	LedgerTable  string
	PayoutsTable string
	BatchSize    int
	RetryPolicy  RetryPolicy
}

// RetryPolicy bounds retries of transient BigQuery failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(defaultMaximumBackoff, p.InitialBackoff)
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams ledger rows into BigQuery. Every row is saved with its
// event id as insert id, so a batch replayed after a partial failure dedupes.
type BigQueryWriter struct {
	client       tableInserter
	ledgerTable  string
	payoutsTable string
	batchSize    int
	retry        RetryPolicy

	mu      sync.Mutex
	pending map[string][]any
}

// New creates a writer backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	ledger := strings.TrimSpace(cfg.LedgerTable)
	if ledger == "" {
		return nil, errors.New("ledger table is required")
	}
	payouts := strings.TrimSpace(cfg.PayoutsTable)
	if payouts == "" {
		return nil, errors.New("payouts table is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &BigQueryWriter{
		client:       client,
		ledgerTable:  ledger,
		payoutsTable: payouts,
		batchSize:    batch,
		retry:        cfg.RetryPolicy.withDefaults(),
		pending:      make(map[string][]any, 2),
	}, nil
}

// InsertPosting queues a wallet posting row.
func (w *BigQueryWriter) InsertPosting(ctx context.Context, row types.PostingRow) error {
	return w.enqueue(ctx, w.ledgerTable, &cbigquery.StructSaver{Struct: &row, InsertID: row.EventID})
}

// InsertPayout queues a payout lifecycle row.
func (w *BigQueryWriter) InsertPayout(ctx context.Context, row types.PayoutRow) error {
	return w.enqueue(ctx, w.payoutsTable, &cbigquery.StructSaver{Struct: &row, InsertID: row.EventID})
}

// Flush writes whatever is queued, ledger rows first.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, table := range []string{w.ledgerTable, w.payoutsTable} {
		if err := w.flush(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (w *BigQueryWriter) enqueue(ctx context.Context, table string, saver *cbigquery.StructSaver) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[table] = append(w.pending[table], saver)
	if len(w.pending[table]) < w.batchSize {
		return nil
	}
	return w.flush(ctx, table)
}

// flush keeps the queue intact on failure so the next call replays it.
func (w *BigQueryWriter) flush(ctx context.Context, table string) error {
	rows := w.pending[table]
	if len(rows) == 0 {
		return nil
	}
	if err := w.insertWithRetry(ctx, table, rows); err != nil {
		return err
	}
	w.pending[table] = rows[:0]
	return nil
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %d rows into %s (attempt %d): %w", len(rows), table, attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// isRetryableBigQueryError treats an aggregate as retryable only when every
// member is.
func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allRetryable(multi)
	}
	var putErr cbigquery.PutMultiError
	if errors.As(err, &putErr) {
		nested := make([]error, 0, len(putErr))
		for _, rowErr := range putErr {
			nested = append(nested, rowErr.Errors)
		}
		return allRetryable(nested)
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) && rowErr != nil {
		return allRetryable(rowErr.Errors)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allRetryable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !isRetryableBigQueryError(err) {
			return false
		}
	}
	return true
}

// EncodeJSON prepares a payload for a BigQuery JSON column.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
