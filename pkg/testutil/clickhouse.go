package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/scality/auth-courier/pkg/clickhouse"
)

// ClickHouseURLEnv names the variable pointing the ClickHouse specs at a server
const ClickHouseURLEnv = "AUTH_COURIER_CLICKHOUSE_TEST_URL"

// ErrClickHouseNotConfigured is returned when ClickHouseURLEnv is unset
var ErrClickHouseNotConfigured = errors.New(ClickHouseURLEnv + " is not set")

// ClickHouseTestHelper provides utilities for testing with ClickHouse
type ClickHouseTestHelper struct {
	Client       *clickhouse.Client
	Store        *clickhouse.Store
	DatabaseName string
}

// ClickHouseTestConfig returns the client configuration of the test server
func ClickHouseTestConfig() (clickhouse.Config, error) {
	url := os.Getenv(ClickHouseURLEnv)
	if url == "" {
		return clickhouse.Config{}, ErrClickHouseNotConfigured
	}
	return clickhouse.Config{
		Hosts:    []string{url},
		Username: "default",
		Password: "",
		Timeout:  10 * time.Second,
	}, nil
}

// NewTestDatabaseName returns a database name unused on the test server
func NewTestDatabaseName() string {
	return fmt.Sprintf("auth_test_%d", time.Now().UnixNano())
}

// NewClickHouseTestHelper connects to the test server and prepares an
// isolated database for the auth records table
func NewClickHouseTestHelper(ctx context.Context) (*ClickHouseTestHelper, error) {
	cfg, err := ClickHouseTestConfig()
	if err != nil {
		return nil, err
	}

	database := NewTestDatabaseName()

	client, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test ClickHouse: %w", err)
	}

	store := clickhouse.NewStore(client, database)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create test schema: %w", err)
	}

	return &ClickHouseTestHelper{
		Client:       client,
		Store:        store,
		DatabaseName: database,
	}, nil
}

// TeardownSchema drops the test database
func (h *ClickHouseTestHelper) TeardownSchema(ctx context.Context) error {
	return h.Client.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", h.DatabaseName))
}

// Close closes the connection
func (h *ClickHouseTestHelper) Close() error {
	return h.Client.Close()
}
