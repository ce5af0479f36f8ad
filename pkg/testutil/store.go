package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/scality/auth-courier/pkg/authcourier"
)

// MemoryStore is an in-memory RecordStore with upsert-by-username semantics
// and injectable failures
type MemoryStore struct {
	// FailFor makes PutRecord fail for the given usernames
	FailFor map[string]error

	records map[string]authcourier.AuthRecord
	writes  []authcourier.AuthRecord
	mu      sync.Mutex
	closed  atomic.Bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		FailFor: map[string]error{},
		records: map[string]authcourier.AuthRecord{},
	}
}

// PutRecord records the write attempt and upserts record unless a failure
// is configured for its username
func (s *MemoryStore) PutRecord(_ context.Context, record authcourier.AuthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes = append(s.writes, record)
	username := record.UsernameOrEmpty()
	if err, ok := s.FailFor[username]; ok {
		return err
	}
	s.records[username] = record
	return nil
}

// Close marks the store closed
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called
func (s *MemoryStore) Closed() bool {
	return s.closed.Load()
}

// Writes returns every write attempt in call order
func (s *MemoryStore) Writes() []authcourier.AuthRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]authcourier.AuthRecord(nil), s.writes...)
}

// Records returns a copy of the stored rows keyed by username
func (s *MemoryStore) Records() map[string]authcourier.AuthRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]authcourier.AuthRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// RecordingUploader keeps uploaded objects in memory and counts attempts
type RecordingUploader struct {
	// Err, when set, is returned by every Upload
	Err error

	objects     map[string][]byte
	mu          sync.Mutex
	uploadCount atomic.Int64
}

// NewRecordingUploader creates an empty uploader
func NewRecordingUploader() *RecordingUploader {
	return &RecordingUploader{objects: map[string][]byte{}}
}

// Upload stores content under bucket/key
func (u *RecordingUploader) Upload(_ context.Context, bucket, key string, content []byte) error {
	u.uploadCount.Add(1)
	if u.Err != nil {
		return u.Err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[bucket+"/"+key] = append([]byte(nil), content...)
	return nil
}

// Object returns the content stored under bucket/key
func (u *RecordingUploader) Object(bucket, key string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	content, ok := u.objects[bucket+"/"+key]
	return content, ok
}

// GetUploadCount returns the total number of upload attempts
func (u *RecordingUploader) GetUploadCount() int64 {
	return u.uploadCount.Load()
}
