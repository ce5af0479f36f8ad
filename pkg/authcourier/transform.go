package authcourier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMode selects how the events of one batch are written
type DispatchMode string

const (
	// DispatchSequential writes one record at a time in delivery order and
	// stops at the first failure
	DispatchSequential DispatchMode = "sequential"
	// DispatchParallel writes records concurrently and returns every failure
	// joined. Ordering between events of the same username is not preserved.
	DispatchParallel DispatchMode = "parallel"
)

// Valid reports whether m is a known dispatch mode
func (m DispatchMode) Valid() bool {
	return m == DispatchSequential || m == DispatchParallel
}

// Config holds transformer configuration
//
//nolint:govet // Field alignment is less important than readability for config structs
type Config struct {
	Logger *slog.Logger

	// Store receives one upsert per log event
	Store RecordStore

	// Archiver is optional; when set, data batches are archived before any write
	Archiver *Archiver

	// Metrics is optional; a private registry is used when nil
	Metrics *Metrics

	// DispatchMode defaults to DispatchSequential
	DispatchMode DispatchMode
	// NumWorkers bounds concurrent writes in DispatchParallel mode
	NumWorkers int
}

// Transformer turns CloudWatch Logs subscription batches of SSO
// authentication events into auth records
type Transformer struct {
	store        RecordStore
	archiver     *Archiver
	metrics      *Metrics
	logger       *slog.Logger
	dispatchMode DispatchMode
	numWorkers   int
}

// NewTransformer creates a new transformer
func NewTransformer(cfg Config) (*Transformer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}

	mode := cfg.DispatchMode
	if mode == "" {
		mode = DispatchSequential
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid dispatch mode: %s", mode)
	}

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetricsWithRegistry(prometheus.NewRegistry())
	}

	return &Transformer{
		store:        cfg.Store,
		archiver:     cfg.Archiver,
		metrics:      metrics,
		logger:       logger,
		dispatchMode: mode,
		numWorkers:   numWorkers,
	}, nil
}

// Handle is the function handler. Any error fails the whole invocation;
// redelivery is left to the invoker, and rewriting an already written
// prefix is harmless since writes overwrite by username.
func (t *Transformer) Handle(ctx context.Context, input events.CloudwatchLogsEvent) error {
	start := time.Now()

	status, err := t.Process(ctx, input.AWSLogs.Data)

	t.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status = ErrorKind(err)
		t.logger.Error("batch processing failed",
			"errorKind", status,
			"error", err)
	}
	t.metrics.BatchesProcessed.WithLabelValues(status).Inc()

	return err
}

// Process decodes one batch and writes its records. The returned status is
// "success" or "control" when err is nil.
func (t *Transformer) Process(ctx context.Context, data string) (string, error) {
	payload, err := DecodeBatch(data)
	if err != nil {
		return "", err
	}

	batch, err := ParseBatch(payload)
	if err != nil {
		return "", err
	}

	t.logger.Info("received batch",
		"messageType", batch.MessageType,
		"logGroup", batch.LogGroup,
		"logStream", batch.LogStream,
		"nEvents", len(batch.LogEvents),
		"payload", string(payload))

	if batch.IsControlMessage() {
		t.logger.Info("acknowledged control message", "logGroup", batch.LogGroup)
		return "control", nil
	}

	t.metrics.EventsPerBatch.Observe(float64(len(batch.LogEvents)))

	if t.archiver != nil && len(batch.LogEvents) > 0 {
		key, err := t.archiver.Archive(ctx, batch, payload)
		if err != nil {
			return "", err
		}
		t.logger.Debug("archived batch", "key", key, "sizeBytes", len(payload))
	}

	switch t.dispatchMode {
	case DispatchParallel:
		err = t.writeParallel(ctx, batch.LogEvents)
	default:
		err = t.writeSequential(ctx, batch.LogEvents)
	}
	if err != nil {
		return "", err
	}

	return "success", nil
}

// writeSequential awaits each write before parsing the next event
func (t *Transformer) writeSequential(ctx context.Context, logEvents []LogEvent) error {
	for i, logEvent := range logEvents {
		if err := t.writeEvent(ctx, i, logEvent); err != nil {
			return err
		}
	}
	return nil
}

// writeParallel writes every event, at most numWorkers at a time
func (t *Transformer) writeParallel(ctx context.Context, logEvents []LogEvent) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	sem := make(chan struct{}, t.numWorkers)

	for i, logEvent := range logEvents {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, ctx.Err())
				mu.Unlock()
				return
			}

			if err := t.writeEvent(ctx, i, logEvent); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if len(errs) > 0 {
		t.logger.Warn("parallel dispatch completed with failures",
			"totalEvents", len(logEvents),
			"failed", len(errs))
	}

	return errors.Join(errs...)
}

func (t *Transformer) writeEvent(ctx context.Context, index int, logEvent LogEvent) error {
	event, err := ParseEvent(logEvent.Message)
	if err != nil {
		t.metrics.EventsRejected.Inc()
		return &MalformedEventError{Index: index, EventID: logEvent.ID, Err: err}
	}

	record := NewAuthRecord(event)

	t.logger.Info("writing auth record", "record", record)

	start := time.Now()
	err = t.store.PutRecord(ctx, record)
	t.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return &StoreWriteError{Username: record.UsernameOrEmpty(), Err: err}
	}

	t.metrics.RecordsWritten.Inc()
	return nil
}
