package testutil

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/scality/auth-courier/pkg/authcourier"
)

const (
	// TestLogGroup is the log group used in generated batches
	TestLogGroup = "CloudTrail/log-all-events"
	// TestLogStream is the log stream used in generated batches
	TestLogStream = "123456789012_CloudTrail_us-east-1"
)

// TestAuthEvent describes a CloudTrail SSO authentication event
type TestAuthEvent struct {
	UserName        string
	AccountID       string
	EventTime       string
	EventSource     string
	EventName       string
	SourceIPAddress string
}

// Message returns the event as the JSON string CloudTrail writes to the log group
func (e TestAuthEvent) Message() string {
	message := map[string]any{
		"eventVersion":    "1.08",
		"eventTime":       e.EventTime,
		"eventSource":     e.EventSource,
		"eventName":       e.EventName,
		"sourceIPAddress": e.SourceIPAddress,
		"userIdentity": map[string]any{
			"type":      "Unknown",
			"userName":  e.UserName,
			"accountId": e.AccountID,
		},
	}
	b, err := json.Marshal(message)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal test event: %v", err))
	}
	return string(b)
}

// NewSSOEvent returns an Authenticate event for userName at eventTime
func NewSSOEvent(userName, eventTime string) TestAuthEvent {
	return TestAuthEvent{
		UserName:        userName,
		AccountID:       "123456789012",
		EventTime:       eventTime,
		EventSource:     "sso.amazonaws.com",
		EventName:       "Authenticate",
		SourceIPAddress: "203.0.113.10",
	}
}

// NewDataBatch wraps raw messages into a DATA_MESSAGE batch. Event IDs and
// timestamps are derived from the message position.
func NewDataBatch(messages ...string) authcourier.LogsData {
	logEvents := make([]authcourier.LogEvent, 0, len(messages))
	for i, message := range messages {
		logEvents = append(logEvents, authcourier.LogEvent{
			ID:        fmt.Sprintf("3700000000000000000000000000000000000000000000000000000%d", i),
			Timestamp: 1700000000000 + int64(i),
			Message:   message,
		})
	}
	return authcourier.LogsData{
		MessageType:         authcourier.MessageTypeData,
		Owner:               "123456789012",
		LogGroup:            TestLogGroup,
		LogStream:           TestLogStream,
		SubscriptionFilters: []string{"SsoAuthFilter"},
		LogEvents:           logEvents,
	}
}

// NewEventBatch builds a DATA_MESSAGE batch from authentication events
func NewEventBatch(authEvents ...TestAuthEvent) authcourier.LogsData {
	messages := make([]string, 0, len(authEvents))
	for _, e := range authEvents {
		messages = append(messages, e.Message())
	}
	return NewDataBatch(messages...)
}

// CompressRaw gzips and base64-encodes raw bytes the way CloudWatch Logs does
func CompressRaw(raw []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return "", fmt.Errorf("failed to compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EncodeBatch marshals v to JSON and compresses it into an awslogs.data value
func EncodeBatch(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch: %w", err)
	}
	return CompressRaw(raw)
}

// NewInvocation builds the function input for v
func NewInvocation(v any) (events.CloudwatchLogsEvent, error) {
	data, err := EncodeBatch(v)
	if err != nil {
		return events.CloudwatchLogsEvent{}, err
	}
	return events.CloudwatchLogsEvent{
		AWSLogs: events.CloudwatchLogsRawData{Data: data},
	}, nil
}
