package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scality/auth-courier/pkg/authcourier"
)

// ErrMissingUsername is returned for records without a partition key
var ErrMissingUsername = errors.New("auth record has no username")

// Store keeps auth records in a ReplacingMergeTree ordered by username.
// Rows sharing a username collapse to the one with the latest writtenAt,
// and reads use FINAL so callers see upsert semantics before merges run.
type Store struct {
	client   *Client
	database string
}

// NewStore creates a store over database; an empty name selects DatabaseName
func NewStore(client *Client, database string) *Store {
	if database == "" {
		database = DatabaseName
	}
	return &Store{client: client, database: database}
}

// OpenStore connects to ClickHouse and creates database and its auth records
// table when missing
func OpenStore(ctx context.Context, cfg Config, database string) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := NewStore(client, database)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ensure clickhouse schema: %w", err)
	}
	return store, nil
}

// EnsureSchema creates the database and the auth records table
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.client.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	tableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s
		(
			username   String,
			account    Nullable(String),
			time       Nullable(String),
			source     Nullable(String),
			event      Nullable(String),
			sourceIp   Nullable(String),
			writtenAt  DateTime64(6)
		)
		ENGINE = ReplacingMergeTree(writtenAt)
		ORDER BY username`, s.database, TableAuthRecords)
	if err := s.client.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", TableAuthRecords, err)
	}

	return nil
}

// PutRecord inserts record; the newest insert per username wins
func (s *Store) PutRecord(ctx context.Context, record authcourier.AuthRecord) error {
	if record.Username == nil || *record.Username == "" {
		return ErrMissingUsername
	}

	query := fmt.Sprintf(
		"INSERT INTO %s.%s (username, account, time, source, event, sourceIp, writtenAt) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.database, TableAuthRecords)

	err := s.client.Exec(ctx, query,
		*record.Username,
		record.Account,
		record.Time,
		record.Source,
		record.Event,
		record.SourceIP,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth record: username=%s: %w", *record.Username, err)
	}
	return nil
}

// GetRecord returns the current record of username
func (s *Store) GetRecord(ctx context.Context, username string) (*authcourier.AuthRecord, error) {
	query := fmt.Sprintf(
		"SELECT username, account, time, source, event, sourceIp FROM %s.%s FINAL WHERE username = ?",
		s.database, TableAuthRecords)

	var (
		name                                string
		account, t, source, event, sourceIP *string
	)
	err := s.client.QueryRow(ctx, query, username).Scan(&name, &account, &t, &source, &event, &sourceIP)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth record: username=%s: %w", username, err)
	}

	return &authcourier.AuthRecord{
		Username: &name,
		Account:  account,
		Time:     t,
		Source:   source,
		Event:    event,
		SourceIP: sourceIP,
	}, nil
}

// CountRecords returns the number of distinct usernames stored
func (s *Store) CountRecords(ctx context.Context) (uint64, error) {
	var count uint64
	query := fmt.Sprintf("SELECT count() FROM %s.%s FINAL", s.database, TableAuthRecords)
	if err := s.client.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count auth records: %w", err)
	}
	return count, nil
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.client.Close()
}
