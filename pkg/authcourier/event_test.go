package authcourier_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scality/auth-courier/pkg/authcourier"
)

var _ = Describe("Authentication events", func() {
	Describe("ParseEvent", func() {
		It("should reject a message that is not JSON", func() {
			_, err := authcourier.ParseEvent("CWL CONTROL MESSAGE")
			Expect(err).To(HaveOccurred())
		})

		It("should reject a JSON value that is not an object", func() {
			_, err := authcourier.ParseEvent(`"just a string"`)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a JSON array", func() {
			_, err := authcourier.ParseEvent(`[{"eventName":"Authenticate"}]`)
			Expect(err).To(HaveOccurred())
		})

		It("should read non-string values as their JSON text", func() {
			event, err := authcourier.ParseEvent(`{"eventTime":1700000000,"eventName":"Authenticate","sourceIPAddress":{"v4":"1.2.3.4"},"userIdentity":{"userName":"alice","accountId":999}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(*event.EventTime).To(Equal("1700000000"))
			Expect(*event.SourceIPAddress).To(Equal(`{"v4":"1.2.3.4"}`))
			Expect(*event.UserIdentity.UserName).To(Equal("alice"))
			Expect(*event.UserIdentity.AccountID).To(Equal("999"))
		})

		It("should treat null fields as absent", func() {
			event, err := authcourier.ParseEvent(`{"eventName":null,"userIdentity":{"userName":"alice","accountId":null}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(event.EventName).To(BeNil())
			Expect(event.UserIdentity.AccountID).To(BeNil())
		})

		It("should ignore a userIdentity that is not an object", func() {
			event, err := authcourier.ParseEvent(`{"eventName":"Authenticate","userIdentity":"alice"}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(event.UserIdentity).To(BeNil())
			Expect(*event.EventName).To(Equal("Authenticate"))
		})

		It("should decode escaped strings", func() {
			event, err := authcourier.ParseEvent(`{"userIdentity":{"userName":"al\u0069ce"}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(*event.UserIdentity.UserName).To(Equal("alice"))
		})

		It("should ignore unknown CloudTrail fields", func() {
			event, err := authcourier.ParseEvent(`{"eventVersion":"1.08","eventName":"Authenticate","additionalEventData":{"x":1}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(*event.EventName).To(Equal("Authenticate"))
		})
	})

	Describe("NewAuthRecord", func() {
		It("should project every field", func() {
			event, err := authcourier.ParseEvent(`{"eventTime":"T1","eventSource":"sso.amazonaws.com","eventName":"Authenticate","sourceIPAddress":"1.2.3.4","userIdentity":{"userName":"alice","accountId":"999"}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(authcourier.NewAuthRecord(event)).To(Equal(authcourier.AuthRecord{
				Username: strPtr("alice"),
				Account:  strPtr("999"),
				Time:     strPtr("T1"),
				Source:   strPtr("sso.amazonaws.com"),
				Event:    strPtr("Authenticate"),
				SourceIP: strPtr("1.2.3.4"),
			}))
		})

		It("should leave missing fields absent", func() {
			event, err := authcourier.ParseEvent(`{"eventTime":"T1","userIdentity":{"userName":"alice"}}`)
			Expect(err).NotTo(HaveOccurred())

			record := authcourier.NewAuthRecord(event)
			Expect(*record.Username).To(Equal("alice"))
			Expect(record.Account).To(BeNil())
			Expect(record.Source).To(BeNil())
			Expect(record.SourceIP).To(BeNil())
		})

		It("should not fail without a userIdentity block", func() {
			event, err := authcourier.ParseEvent(`{"eventName":"Authenticate"}`)
			Expect(err).NotTo(HaveOccurred())

			record := authcourier.NewAuthRecord(event)
			Expect(record.Username).To(BeNil())
			Expect(record.UsernameOrEmpty()).To(BeEmpty())
			Expect(*record.Event).To(Equal("Authenticate"))
		})
	})
})
