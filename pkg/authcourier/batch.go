package authcourier

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

const (
	// MessageTypeData marks a batch carrying subscribed log events
	MessageTypeData = "DATA_MESSAGE"
	// MessageTypeControl marks the reachability check CloudWatch Logs sends
	// when a subscription filter is created
	MessageTypeControl = "CONTROL_MESSAGE"
)

// LogsData is a decompressed CloudWatch Logs subscription batch
type LogsData struct {
	MessageType         string     `json:"messageType"`
	Owner               string     `json:"owner"`
	LogGroup            string     `json:"logGroup"`
	LogStream           string     `json:"logStream"`
	SubscriptionFilters []string   `json:"subscriptionFilters"`
	LogEvents           []LogEvent `json:"logEvents"`
}

// LogEvent is one log line of a batch. Message holds the JSON-encoded
// CloudTrail event.
type LogEvent struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// logsDataWire tells an absent or null logEvents apart from an empty one
type logsDataWire struct {
	LogEvents           *[]LogEvent `json:"logEvents"`
	MessageType         string      `json:"messageType"`
	Owner               string      `json:"owner"`
	LogGroup            string      `json:"logGroup"`
	LogStream           string      `json:"logStream"`
	SubscriptionFilters []string    `json:"subscriptionFilters"`
}

// IsControlMessage reports whether the batch is a subscription health check
func (d *LogsData) IsControlMessage() bool {
	return d.MessageType == MessageTypeControl
}

// String returns a string representation for logging
func (d *LogsData) String() string {
	return fmt.Sprintf("LogsData{Type: %s, LogGroup: %s, LogStream: %s, Events: %d}",
		d.MessageType, d.LogGroup, d.LogStream, len(d.LogEvents))
}

// DecodeBatch turns the awslogs.data field of an invocation into the
// decompressed batch bytes
func DecodeBatch(data string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecompressionError{Err: fmt.Errorf("invalid base64: %w", err)}
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &DecompressionError{Err: err}
	}
	defer func() { _ = gz.Close() }()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, &DecompressionError{Err: err}
	}

	return payload, nil
}

// ParseBatch parses decompressed batch bytes. A batch without a logEvents
// array is rejected, an empty array is not.
func ParseBatch(payload []byte) (*LogsData, error) {
	var wire logsDataWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, &MalformedBatchError{Err: err}
	}
	if wire.LogEvents == nil {
		return nil, &MalformedBatchError{Err: ErrMissingLogEvents}
	}

	return &LogsData{
		MessageType:         wire.MessageType,
		Owner:               wire.Owner,
		LogGroup:            wire.LogGroup,
		LogStream:           wire.LogStream,
		SubscriptionFilters: wire.SubscriptionFilters,
		LogEvents:           *wire.LogEvents,
	}, nil
}
