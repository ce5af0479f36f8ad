package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/scality/auth-courier/pkg/authcourier"
)

// Store upserts auth records with PutItem. The table is keyed by username
// alone, so each put replaces the previous item of that user.
type Store struct {
	client    *Client
	tableName string
}

// NewStore creates a store writing to tableName
func NewStore(client *Client, tableName string) (*Store, error) {
	if tableName == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	return &Store{client: client, tableName: tableName}, nil
}

// PutRecord writes record. Nil attributes are left out of the item.
// Retries are handled by the SDK client based on its retry configuration.
func (s *Store) PutRecord(ctx context.Context, record authcourier.AuthRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal auth record: %w", err)
	}

	_, err = s.client.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: table=%s: %w", s.tableName, err)
	}

	return nil
}

// Close is a no-op; the SDK client holds no resources needing release
func (s *Store) Close() error {
	return nil
}
