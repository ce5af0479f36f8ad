package dynamodb

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const (
	// Default HTTP client timeouts
	defaultDialTimeout           = 5 * time.Second  // Time to establish connection
	defaultResponseHeaderTimeout = 10 * time.Second // Time to receive response headers
	defaultIdleConnTimeout       = 90 * time.Second // Time to keep idle connections
	defaultTLSHandshakeTimeout   = 5 * time.Second  // Time for TLS handshake
)

// Client wraps the DynamoDB client
type Client struct {
	ddbClient *dynamodb.Client
}

// Config holds DynamoDB client configuration.
// Credentials come from the default chain (the function's execution role)
// unless a static key pair is given.
type Config struct {
	Endpoint         string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	MaxRetryAttempts int
	MaxBackoffDelay  time.Duration
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, fmt.Errorf("access key ID and secret access key must be set together")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: defaultDialTimeout,
			}).DialContext,
			ResponseHeaderTimeout: defaultResponseHeaderTimeout,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		},
	}

	optFns := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}

	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	// Set retry configuration if non-zero values provided
	if cfg.MaxRetryAttempts > 0 || cfg.MaxBackoffDelay > 0 {
		optFns = append(optFns, config.WithRetryer(func() aws.Retryer {
			var result aws.Retryer = retry.NewStandard()
			if cfg.MaxRetryAttempts > 0 {
				result = retry.AddWithMaxAttempts(result, cfg.MaxRetryAttempts)
			}
			if cfg.MaxBackoffDelay > 0 {
				result = retry.AddWithMaxBackoffDelay(result, cfg.MaxBackoffDelay)
			}
			return result
		}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{ddbClient: dynamodb.NewFromConfig(awsCfg, clientOpts...)}, nil
}

// API returns the underlying SDK client
func (c *Client) API() *dynamodb.Client {
	return c.ddbClient
}
