package authcourier_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/scality/auth-courier/pkg/authcourier"
	"github.com/scality/auth-courier/pkg/testutil"
)

const exampleMessage = `{"eventTime":"T1","eventSource":"sso.amazonaws.com","eventName":"Authenticate","sourceIPAddress":"1.2.3.4","userIdentity":{"userName":"alice","accountId":"999"}}`

var _ = Describe("Transformer", func() {
	var (
		ctx       context.Context
		store     *testutil.MemoryStore
		metrics   *authcourier.Metrics
		logBuffer *bytes.Buffer
		logger    *slog.Logger
	)

	newTransformer := func(mode authcourier.DispatchMode, archiver *authcourier.Archiver) *authcourier.Transformer {
		transformer, err := authcourier.NewTransformer(authcourier.Config{
			Logger:       logger,
			Store:        store,
			Archiver:     archiver,
			Metrics:      metrics,
			DispatchMode: mode,
			NumWorkers:   3,
		})
		Expect(err).NotTo(HaveOccurred())
		return transformer
	}

	invocation := func(batch any) events.CloudwatchLogsEvent {
		input, err := testutil.NewInvocation(batch)
		Expect(err).NotTo(HaveOccurred())
		return input
	}

	logLines := func(msg string) int {
		return strings.Count(logBuffer.String(), fmt.Sprintf(`"msg":%q`, msg))
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = testutil.NewMemoryStore()
		metrics = NewTestMetrics()
		logBuffer = &bytes.Buffer{}
		logger = slog.New(slog.NewJSONHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})

	Describe("NewTransformer", func() {
		It("should require a store", func() {
			_, err := authcourier.NewTransformer(authcourier.Config{})
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown dispatch mode", func() {
			_, err := authcourier.NewTransformer(authcourier.Config{
				Store:        store,
				DispatchMode: "fan-out",
			})
			Expect(err).To(HaveOccurred())
		})

		It("should default optional settings", func() {
			transformer, err := authcourier.NewTransformer(authcourier.Config{Store: store})
			Expect(err).NotTo(HaveOccurred())
			Expect(transformer).NotTo(BeNil())
		})
	})

	Describe("sequential dispatch", func() {
		var transformer *authcourier.Transformer

		BeforeEach(func() {
			transformer = newTransformer(authcourier.DispatchSequential, nil)
		})

		It("should write the documented record for an SSO authentication", func() {
			Expect(transformer.Handle(ctx, invocation(testutil.NewDataBatch(exampleMessage)))).To(Succeed())

			Expect(store.Records()).To(Equal(map[string]authcourier.AuthRecord{
				"alice": {
					Username: strPtr("alice"),
					Account:  strPtr("999"),
					Time:     strPtr("T1"),
					Source:   strPtr("sso.amazonaws.com"),
					Event:    strPtr("Authenticate"),
					SourceIP: strPtr("1.2.3.4"),
				},
			}))
		})

		It("should issue one write per log event", func() {
			batch := testutil.NewEventBatch(
				testutil.NewSSOEvent("alice", "2024-01-01T00:00:00Z"),
				testutil.NewSSOEvent("bob", "2024-01-01T00:00:01Z"),
				testutil.NewSSOEvent("carol", "2024-01-01T00:00:02Z"),
				testutil.NewSSOEvent("dave", "2024-01-01T00:00:03Z"),
			)
			Expect(transformer.Handle(ctx, invocation(batch))).To(Succeed())

			Expect(store.Writes()).To(HaveLen(4))
			Expect(store.Records()).To(HaveLen(4))
			Expect(promtestutil.ToFloat64(metrics.RecordsWritten)).To(Equal(4.0))
			Expect(promtestutil.ToFloat64(metrics.BatchesProcessed.WithLabelValues("success"))).To(Equal(1.0))
		})

		It("should write in delivery order", func() {
			batch := testutil.NewEventBatch(
				testutil.NewSSOEvent("carol", "T1"),
				testutil.NewSSOEvent("alice", "T2"),
				testutil.NewSSOEvent("bob", "T3"),
			)
			Expect(transformer.Handle(ctx, invocation(batch))).To(Succeed())

			var order []string
			for _, w := range store.Writes() {
				order = append(order, w.UsernameOrEmpty())
			}
			Expect(order).To(Equal([]string{"carol", "alice", "bob"}))
		})

		It("should keep only the later event of a repeated username", func() {
			first := testutil.NewSSOEvent("alice", "2024-01-01T00:00:00Z")
			second := testutil.NewSSOEvent("alice", "2024-01-02T00:00:00Z")
			second.SourceIPAddress = "198.51.100.7"

			Expect(transformer.Handle(ctx, invocation(testutil.NewEventBatch(first, second)))).To(Succeed())

			Expect(store.Writes()).To(HaveLen(2))
			records := store.Records()
			Expect(records).To(HaveLen(1))
			Expect(*records["alice"].Time).To(Equal("2024-01-02T00:00:00Z"))
			Expect(*records["alice"].SourceIP).To(Equal("198.51.100.7"))
		})

		It("should reach the same state when a batch is delivered twice", func() {
			input := invocation(testutil.NewEventBatch(
				testutil.NewSSOEvent("alice", "T1"),
				testutil.NewSSOEvent("bob", "T2"),
			))

			Expect(transformer.Handle(ctx, input)).To(Succeed())
			once := store.Records()

			Expect(transformer.Handle(ctx, input)).To(Succeed())
			Expect(store.Records()).To(Equal(once))
			Expect(store.Writes()).To(HaveLen(4))
		})

		It("should accept a batch with no events", func() {
			Expect(transformer.Handle(ctx, invocation(testutil.NewDataBatch()))).To(Succeed())
			Expect(store.Writes()).To(BeEmpty())
		})

		It("should write records with absent attributes", func() {
			Expect(transformer.Handle(ctx, invocation(testutil.NewDataBatch(`{"userIdentity":{"userName":"erin"}}`)))).To(Succeed())

			record := store.Records()["erin"]
			Expect(record.Account).To(BeNil())
			Expect(record.Time).To(BeNil())
		})

		It("should write events whose fields are not strings", func() {
			Expect(transformer.Handle(ctx, invocation(testutil.NewDataBatch(
				`{"eventName":"Authenticate","userIdentity":{"userName":"erin","accountId":999}}`,
				testutil.NewSSOEvent("frank", "T2").Message(),
			)))).To(Succeed())

			Expect(store.Records()).To(HaveLen(2))
			Expect(*store.Records()["erin"].Account).To(Equal("999"))
		})

		It("should fail with DecompressionError and no writes for non-gzip data", func() {
			input := events.CloudwatchLogsEvent{
				AWSLogs: events.CloudwatchLogsRawData{
					Data: base64.StdEncoding.EncodeToString([]byte(`{"logEvents":[]}`)),
				},
			}

			err := transformer.Handle(ctx, input)
			var decompressionErr *authcourier.DecompressionError
			Expect(errors.As(err, &decompressionErr)).To(BeTrue())
			Expect(store.Writes()).To(BeEmpty())
			Expect(promtestutil.ToFloat64(metrics.BatchesProcessed.WithLabelValues("decompression_error"))).To(Equal(1.0))
		})

		It("should fail with MalformedBatchError when logEvents is missing", func() {
			err := transformer.Handle(ctx, invocation(map[string]any{"messageType": "DATA_MESSAGE"}))
			var malformedErr *authcourier.MalformedBatchError
			Expect(errors.As(err, &malformedErr)).To(BeTrue())
			Expect(store.Writes()).To(BeEmpty())
		})

		It("should fail with MalformedBatchError when the payload is not JSON", func() {
			data, err := testutil.CompressRaw([]byte("not json"))
			Expect(err).NotTo(HaveOccurred())

			err = transformer.Handle(ctx, events.CloudwatchLogsEvent{
				AWSLogs: events.CloudwatchLogsRawData{Data: data},
			})
			var malformedErr *authcourier.MalformedBatchError
			Expect(errors.As(err, &malformedErr)).To(BeTrue())
		})

		It("should write nothing when the first message is malformed", func() {
			batch := testutil.NewDataBatch(
				"{not json",
				testutil.NewSSOEvent("bob", "T2").Message(),
			)

			err := transformer.Handle(ctx, invocation(batch))
			var malformedErr *authcourier.MalformedEventError
			Expect(errors.As(err, &malformedErr)).To(BeTrue())
			Expect(malformedErr.Index).To(Equal(0))
			Expect(store.Writes()).To(BeEmpty())
		})

		It("should stop at the first malformed message and keep the written prefix", func() {
			batch := testutil.NewDataBatch(
				testutil.NewSSOEvent("alice", "T1").Message(),
				testutil.NewSSOEvent("bob", "T2").Message(),
				"{not json",
				testutil.NewSSOEvent("carol", "T4").Message(),
			)

			err := transformer.Handle(ctx, invocation(batch))
			var malformedErr *authcourier.MalformedEventError
			Expect(errors.As(err, &malformedErr)).To(BeTrue())
			Expect(malformedErr.Index).To(Equal(2))
			Expect(malformedErr.EventID).To(Equal(batch.LogEvents[2].ID))

			Expect(store.Records()).To(HaveLen(2))
			Expect(store.Records()).To(HaveKey("alice"))
			Expect(store.Records()).To(HaveKey("bob"))
			Expect(store.Records()).NotTo(HaveKey("carol"))
			Expect(promtestutil.ToFloat64(metrics.EventsRejected)).To(Equal(1.0))
			Expect(promtestutil.ToFloat64(metrics.BatchesProcessed.WithLabelValues("malformed_event"))).To(Equal(1.0))
		})

		It("should stop at the first failed write", func() {
			store.FailFor["bob"] = errors.New("ProvisionedThroughputExceededException")
			batch := testutil.NewEventBatch(
				testutil.NewSSOEvent("alice", "T1"),
				testutil.NewSSOEvent("bob", "T2"),
				testutil.NewSSOEvent("carol", "T3"),
			)

			err := transformer.Handle(ctx, invocation(batch))
			var writeErr *authcourier.StoreWriteError
			Expect(errors.As(err, &writeErr)).To(BeTrue())
			Expect(writeErr.Username).To(Equal("bob"))
			Expect(err.Error()).To(ContainSubstring("ProvisionedThroughputExceededException"))

			Expect(store.Writes()).To(HaveLen(2))
			Expect(store.Records()).To(HaveLen(1))
		})

		It("should log the payload once and every record written", func() {
			batch := testutil.NewEventBatch(
				testutil.NewSSOEvent("alice", "T1"),
				testutil.NewSSOEvent("bob", "T2"),
			)
			Expect(transformer.Handle(ctx, invocation(batch))).To(Succeed())

			Expect(logLines("received batch")).To(Equal(1))
			Expect(logLines("writing auth record")).To(Equal(2))
			Expect(logBuffer.String()).To(ContainSubstring(`"username":"alice"`))
			Expect(logBuffer.String()).To(ContainSubstring(testutil.TestLogStream))
		})

		It("should acknowledge control messages without writing", func() {
			batch := authcourier.LogsData{
				MessageType: authcourier.MessageTypeControl,
				Owner:       "CloudwatchLogs",
				LogGroup:    "",
				LogStream:   "",
				LogEvents: []authcourier.LogEvent{
					{ID: "", Timestamp: 1700000000000, Message: "CWL CONTROL MESSAGE: Checking health of destination Lambda function."},
				},
			}

			Expect(transformer.Handle(ctx, invocation(batch))).To(Succeed())
			Expect(store.Writes()).To(BeEmpty())
			Expect(promtestutil.ToFloat64(metrics.BatchesProcessed.WithLabelValues("control"))).To(Equal(1.0))
		})
	})

	Describe("parallel dispatch", func() {
		var transformer *authcourier.Transformer

		BeforeEach(func() {
			transformer = newTransformer(authcourier.DispatchParallel, nil)
		})

		It("should write every event", func() {
			var authEvents []testutil.TestAuthEvent
			for i := 0; i < 20; i++ {
				authEvents = append(authEvents, testutil.NewSSOEvent(fmt.Sprintf("user-%02d", i), "T"))
			}

			Expect(transformer.Handle(ctx, invocation(testutil.NewEventBatch(authEvents...)))).To(Succeed())
			Expect(store.Records()).To(HaveLen(20))
		})

		It("should keep writing past failures and report all of them", func() {
			store.FailFor["bob"] = errors.New("AccessDeniedException")
			batch := testutil.NewDataBatch(
				testutil.NewSSOEvent("alice", "T1").Message(),
				"{not json",
				testutil.NewSSOEvent("bob", "T3").Message(),
				testutil.NewSSOEvent("carol", "T4").Message(),
			)

			err := transformer.Handle(ctx, invocation(batch))
			Expect(err).To(HaveOccurred())

			var malformedErr *authcourier.MalformedEventError
			Expect(errors.As(err, &malformedErr)).To(BeTrue())
			var writeErr *authcourier.StoreWriteError
			Expect(errors.As(err, &writeErr)).To(BeTrue())

			Expect(store.Records()).To(HaveLen(2))
			Expect(store.Records()).To(HaveKey("alice"))
			Expect(store.Records()).To(HaveKey("carol"))
		})
	})

	Describe("parallel dispatch bounds", func() {
		It("should never run more writes at once than workers", func() {
			gated := newGatedStore()
			transformer, err := authcourier.NewTransformer(authcourier.Config{
				Logger:       logger,
				Store:        gated,
				Metrics:      metrics,
				DispatchMode: authcourier.DispatchParallel,
				NumWorkers:   3,
			})
			Expect(err).NotTo(HaveOccurred())

			var authEvents []testutil.TestAuthEvent
			for i := 0; i < 12; i++ {
				authEvents = append(authEvents, testutil.NewSSOEvent(fmt.Sprintf("user-%02d", i), "T"))
			}
			input := invocation(testutil.NewEventBatch(authEvents...))

			done := make(chan error, 1)
			go func() {
				done <- transformer.Handle(ctx, input)
			}()

			Eventually(gated.InFlight).Should(Equal(int64(3)))
			Consistently(gated.InFlight, "100ms", "10ms").Should(BeNumerically("<=", 3))

			gated.Release()
			Eventually(done).Should(Receive(BeNil()))
			Expect(gated.Peak()).To(Equal(int64(3)))
			Expect(gated.Count()).To(Equal(int64(12)))
		})

		It("should report a cancelled context without writing", func() {
			transformer := newTransformer(authcourier.DispatchParallel, nil)
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			err := transformer.Handle(cancelled, invocation(testutil.NewEventBatch(
				testutil.NewSSOEvent("alice", "T1"),
				testutil.NewSSOEvent("bob", "T2"),
			)))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(store.Writes()).To(BeEmpty())
		})
	})

	Describe("archiving", func() {
		It("should archive the decompressed payload before writing", func() {
			uploader := testutil.NewRecordingUploader()
			archiver := authcourier.NewArchiver(uploader, "archive-bucket", "sso/")
			transformer := newTransformer(authcourier.DispatchSequential, archiver)

			batch := testutil.NewEventBatch(testutil.NewSSOEvent("alice", "T1"))
			Expect(transformer.Handle(ctx, invocation(batch))).To(Succeed())

			key, err := archiver.Key(&batch)
			Expect(err).NotTo(HaveOccurred())
			content, ok := uploader.Object("archive-bucket", key)
			Expect(ok).To(BeTrue())
			Expect(string(content)).To(ContainSubstring(`"logEvents"`))
			Expect(store.Writes()).To(HaveLen(1))
		})

		It("should not write records when archiving fails", func() {
			uploader := testutil.NewRecordingUploader()
			uploader.Err = errors.New("AccessDenied")
			transformer := newTransformer(authcourier.DispatchSequential,
				authcourier.NewArchiver(uploader, "archive-bucket", "sso/"))

			err := transformer.Handle(ctx, invocation(testutil.NewEventBatch(testutil.NewSSOEvent("alice", "T1"))))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to archive batch"))
			Expect(store.Writes()).To(BeEmpty())
			Expect(promtestutil.ToFloat64(metrics.BatchesProcessed.WithLabelValues("other"))).To(Equal(1.0))
		})

		It("should skip empty batches", func() {
			uploader := testutil.NewRecordingUploader()
			transformer := newTransformer(authcourier.DispatchSequential,
				authcourier.NewArchiver(uploader, "archive-bucket", "sso/"))

			Expect(transformer.Handle(ctx, invocation(testutil.NewDataBatch()))).To(Succeed())
			Expect(uploader.GetUploadCount()).To(BeZero())
		})
	})
})

// gatedStore blocks every write until Release and tracks concurrent writes
type gatedStore struct {
	gate     chan struct{}
	once     sync.Once
	inFlight atomic.Int64
	peak     atomic.Int64
	count    atomic.Int64
}

func newGatedStore() *gatedStore {
	return &gatedStore{gate: make(chan struct{})}
}

func (s *gatedStore) PutRecord(ctx context.Context, _ authcourier.AuthRecord) error {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if current <= peak || s.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.count.Add(1)
	return nil
}

func (s *gatedStore) Close() error { return nil }

func (s *gatedStore) Release() { s.once.Do(func() { close(s.gate) }) }

func (s *gatedStore) InFlight() int64 { return s.inFlight.Load() }

func (s *gatedStore) Peak() int64 { return s.peak.Load() }

func (s *gatedStore) Count() int64 { return s.count.Load() }
