package authcourier

import (
	"errors"
	"fmt"
)

// ErrMissingLogEvents is wrapped by MalformedBatchError when the batch has
// no logEvents array
var ErrMissingLogEvents = errors.New("batch has no logEvents")

// DecompressionError reports a batch whose data is not valid base64 or gzip.
// Nothing from the batch has been written when it is returned.
type DecompressionError struct {
	Err error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("failed to decompress log batch: %v", e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// MalformedBatchError reports a decompressed batch that is not valid JSON
// or lacks logEvents
type MalformedBatchError struct {
	Err error
}

func (e *MalformedBatchError) Error() string {
	return fmt.Sprintf("malformed log batch: %v", e.Err)
}

func (e *MalformedBatchError) Unwrap() error { return e.Err }

// MalformedEventError reports a log event whose message is not a JSON
// authentication event
type MalformedEventError struct {
	Err     error
	EventID string
	Index   int
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed log event: index=%d, id=%s: %v", e.Index, e.EventID, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// StoreWriteError reports a failed upsert of an auth record
type StoreWriteError struct {
	Err      error
	Username string
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to write auth record: username=%s: %v", e.Username, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// ErrorKind names the taxonomy entry of err, for metrics labels and logs
func ErrorKind(err error) string {
	var (
		decompressionErr  *DecompressionError
		malformedBatchErr *MalformedBatchError
		malformedEventErr *MalformedEventError
		storeWriteErr     *StoreWriteError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &decompressionErr):
		return "decompression_error"
	case errors.As(err, &malformedBatchErr):
		return "malformed_batch"
	case errors.As(err, &malformedEventErr):
		return "malformed_event"
	case errors.As(err, &storeWriteErr):
		return "store_write_error"
	default:
		return "other"
	}
}
