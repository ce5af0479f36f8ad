package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scality/auth-courier/pkg/authcourier"
	"github.com/scality/auth-courier/pkg/clickhouse"
	"github.com/scality/auth-courier/pkg/dynamodb"
	"github.com/scality/auth-courier/pkg/s3"
)

// newStoreFactory returns the factory of the configured record store backend
func newStoreFactory(logger *slog.Logger) authcourier.StoreFactory {
	switch authcourier.ConfigSpec.GetString("store.backend") {
	case authcourier.StoreBackendClickHouse:
		return func(ctx context.Context) (authcourier.RecordStore, error) {
			return newClickHouseStore(ctx, logger)
		}
	default:
		return func(ctx context.Context) (authcourier.RecordStore, error) {
			return newDynamoDBStore(ctx)
		}
	}
}

func newDynamoDBStore(ctx context.Context) (authcourier.RecordStore, error) {
	client, err := dynamodb.NewClient(ctx, dynamodb.Config{
		Endpoint:         authcourier.ConfigSpec.GetString("dynamodb.endpoint"),
		Region:           authcourier.ConfigSpec.GetString("dynamodb.region"),
		MaxRetryAttempts: authcourier.ConfigSpec.GetInt("dynamodb.max-retry-attempts"),
		MaxBackoffDelay:  time.Duration(authcourier.ConfigSpec.GetInt("dynamodb.max-backoff-delay-seconds")) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return dynamodb.NewStore(client, authcourier.ConfigSpec.GetString("dynamodb.table-name"))
}

func newClickHouseStore(ctx context.Context, logger *slog.Logger) (authcourier.RecordStore, error) {
	return clickhouse.OpenStore(ctx, clickhouse.Config{
		Hosts:    authcourier.ConfigSpec.GetStringSlice("clickhouse.url"),
		Username: authcourier.ConfigSpec.GetString("clickhouse.username"),
		Password: authcourier.ConfigSpec.GetString("clickhouse.password"),
		Timeout:  time.Duration(authcourier.ConfigSpec.GetInt("clickhouse.timeout-seconds")) * time.Second,
		Logger:   logger,
	}, authcourier.ConfigSpec.GetString("clickhouse.database"))
}

// newArchiver returns nil when archiving is disabled
func newArchiver(ctx context.Context) (*authcourier.Archiver, error) {
	if !authcourier.ConfigSpec.GetBool("archive.enabled") {
		return nil, nil
	}

	client, err := s3.NewClient(ctx, s3.Config{
		Endpoint: authcourier.ConfigSpec.GetString("s3.endpoint"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return authcourier.NewArchiver(
		s3.NewUploader(client),
		authcourier.ConfigSpec.GetString("archive.bucket"),
		authcourier.ConfigSpec.GetString("archive.prefix"),
	), nil
}
