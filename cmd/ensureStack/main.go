package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/scality/auth-courier/pkg/provision"
	"github.com/scality/auth-courier/pkg/util"
)

func main() {
	tableName := pflag.String("table-name", "", "DynamoDB table receiving authentication records")
	roleName := pflag.String("role-name", "", "Execution role of the function")
	functionARN := pflag.String("function-arn", "", "ARN of the deployed auth-courier function")
	logGroup := pflag.String("log-group", provision.DefaultLogGroupName, "CloudTrail log group to subscribe to")
	filterName := pflag.String("filter-name", provision.DefaultFilterName, "Subscription filter name")
	account := pflag.String("account", "", "Source account of the log group (default: account of --function-arn)")
	region := pflag.String("region", "", "Region of the log group (default: region of --function-arn)")
	endpoint := pflag.String("endpoint", "", "Endpoint override for every AWS service (e.g. a local emulator)")
	waitTimeout := pflag.Duration("wait-timeout", 2*time.Minute, "Time to wait for a new table to become active (0 to skip)")
	logLevel := pflag.String("log-level", "info", "Log level: debug, info, warn, error")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 1 || args[0] != "apply" {
		fmt.Fprintf(os.Stderr, "Usage: ensureStack apply --table-name <name> --role-name <name> --function-arn <arn> [flags]\n")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	// Logs go to stderr while JSON output goes to stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: util.ParseLogLevel(*logLevel),
	}))

	spec := provision.StackSpec{
		TableName:    *tableName,
		RoleName:     *roleName,
		FunctionARN:  *functionARN,
		Account:      *account,
		Region:       *region,
		LogGroupName: *logGroup,
		FilterName:   *filterName,
		WaitTimeout:  *waitTimeout,
	}

	ctx := context.Background()
	result, err := applyStack(ctx, logger, spec, *endpoint)
	if err != nil {
		outputErr := provision.OutputError{
			Error: err.Error(),
		}
		if jsonErr := writeJSON(os.Stdout, outputErr); jsonErr != nil {
			logger.Error("failed to encode error output", "error", jsonErr)
		}
		os.Exit(1)
	}

	output := provision.OutputSuccess{
		Data: *result,
	}
	if err := writeJSON(os.Stdout, output); err != nil {
		logger.Error("failed to encode success output", "error", err)
		os.Exit(1)
	}
}

func applyStack(ctx context.Context, logger *slog.Logger, spec provision.StackSpec, endpoint string) (*provision.Result, error) {
	cfg, err := loadAWSConfig(ctx, &spec)
	if err != nil {
		return nil, err
	}

	var baseEndpoint *string
	if endpoint != "" {
		baseEndpoint = aws.String(endpoint)
	}

	clients := provision.Clients{
		Tables: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = baseEndpoint
		}),
		Roles: iam.NewFromConfig(cfg, func(o *iam.Options) {
			o.BaseEndpoint = baseEndpoint
		}),
		Permissions: lambda.NewFromConfig(cfg, func(o *lambda.Options) {
			o.BaseEndpoint = baseEndpoint
		}),
		Subscriptions: cloudwatchlogs.NewFromConfig(cfg, func(o *cloudwatchlogs.Options) {
			o.BaseEndpoint = baseEndpoint
		}),
	}

	logger.Info("applying stack",
		"table", spec.TableName,
		"role", spec.RoleName,
		"function", spec.FunctionARN,
		"logGroup", spec.LogGroupName,
	)

	result, err := provision.Apply(ctx, clients, spec)
	if err != nil {
		logger.Error("failed to apply stack", "error", err)
		return nil, err
	}

	if result.TableCreated {
		logger.Info("stack applied, table created", "tableArn", result.TableArn)
	} else {
		logger.Info("stack applied, table already existed", "tableArn", result.TableArn)
	}

	return result, nil
}

// loadAWSConfig completes spec and loads the SDK config for the region the
// log group ARN is built for, which defaults to the function's region
func loadAWSConfig(ctx context.Context, spec *provision.StackSpec) (aws.Config, error) {
	if _, err := spec.Complete(); err != nil {
		return aws.Config{}, err
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(spec.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// writeJSON writes v as one line of JSON
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
