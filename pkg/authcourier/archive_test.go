package authcourier_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scality/auth-courier/pkg/authcourier"
	"github.com/scality/auth-courier/pkg/testutil"
)

var _ = Describe("Archiver", func() {
	var (
		uploader *testutil.RecordingUploader
		archiver *authcourier.Archiver
	)

	BeforeEach(func() {
		uploader = testutil.NewRecordingUploader()
		archiver = authcourier.NewArchiver(uploader, "auth-archive", "sso-auth/")
	})

	Describe("Key", func() {
		It("should derive the key from the first event", func() {
			batch := authcourier.LogsData{
				LogStream: "stream-1",
				LogEvents: []authcourier.LogEvent{
					{ID: "first", Timestamp: 1700000000000},
					{ID: "second", Timestamp: 1800000000000},
				},
			}

			key, err := archiver.Key(&batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sso-auth/2023/11/14/stream-1-first.json"))
		})

		It("should be stable across calls", func() {
			batch := testutil.NewEventBatch(testutil.NewSSOEvent("alice", "T1"))

			first, err := archiver.Key(&batch)
			Expect(err).NotTo(HaveOccurred())
			second, err := archiver.Key(&batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("should reject a batch without events", func() {
			batch := testutil.NewDataBatch()

			_, err := archiver.Key(&batch)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Archive", func() {
		It("should upload the payload under the batch key", func() {
			batch := testutil.NewEventBatch(testutil.NewSSOEvent("alice", "T1"))
			payload := []byte(`{"logEvents":[]}`)

			key, err := archiver.Archive(context.Background(), &batch, payload)
			Expect(err).NotTo(HaveOccurred())

			content, ok := uploader.Object("auth-archive", key)
			Expect(ok).To(BeTrue())
			Expect(content).To(Equal(payload))
		})

		It("should wrap upload failures", func() {
			uploader.Err = errors.New("SlowDown")
			batch := testutil.NewEventBatch(testutil.NewSSOEvent("alice", "T1"))

			_, err := archiver.Archive(context.Background(), &batch, []byte("{}"))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, uploader.Err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("failed to archive batch"))
		})
	})
})
