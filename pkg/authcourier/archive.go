package authcourier

import (
	"context"
	"fmt"
	"time"
)

// Uploader puts an object into a bucket
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, content []byte) error
}

// Archiver keeps a copy of every decompressed data batch in object storage
type Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewArchiver creates an archiver writing to bucket under prefix
func NewArchiver(uploader Uploader, bucket, prefix string) *Archiver {
	return &Archiver{uploader: uploader, bucket: bucket, prefix: prefix}
}

// Key returns the object key of a batch:
// <prefix>YYYY/MM/DD/<logStream>-<firstEventID>.json
//
// The date is the first event's timestamp in UTC. A redelivered batch maps
// to the same key.
func (a *Archiver) Key(batch *LogsData) (string, error) {
	if len(batch.LogEvents) == 0 {
		return "", fmt.Errorf("cannot archive a batch without events")
	}
	first := batch.LogEvents[0]
	day := time.UnixMilli(first.Timestamp).UTC().Format("2006/01/02")
	return fmt.Sprintf("%s%s/%s-%s.json", a.prefix, day, batch.LogStream, first.ID), nil
}

// Archive uploads the decompressed payload of batch
func (a *Archiver) Archive(ctx context.Context, batch *LogsData, payload []byte) (string, error) {
	key, err := a.Key(batch)
	if err != nil {
		return "", err
	}
	if err := a.uploader.Upload(ctx, a.bucket, key, payload); err != nil {
		return "", fmt.Errorf("failed to archive batch: %w", err)
	}
	return key, nil
}
