package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	json "github.com/goccy/go-json"
)

const (
	// DefaultLogGroupName is the CloudTrail log group carrying SSO events
	DefaultLogGroupName = "CloudTrail/log-all-events"
	// DefaultFilterName names the subscription filter
	DefaultFilterName = "SsoAuthFilter"
	// DefaultFilterPattern selects SSO Authenticate events
	DefaultFilterPattern = `{$.eventSource = "sso.amazonaws.com" && $.eventName = "Authenticate"}`
	// DefaultStatementID identifies the invoke permission on the function
	DefaultStatementID = "CloudWatchLogsPermission"

	partitionKey = "username"
	logsService  = "logs.amazonaws.com"
	invokeAction = "lambda:InvokeFunction"
)

// tableWriteActions are the actions granted on the table to the function role
var tableWriteActions = []string{
	"dynamodb:BatchWriteItem",
	"dynamodb:PutItem",
	"dynamodb:UpdateItem",
	"dynamodb:DeleteItem",
}

// TableAPI is the subset of the DynamoDB client used to ensure the table
type TableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// RoleAPI is the subset of the IAM client used to grant table access
type RoleAPI interface {
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

// PermissionAPI is the subset of the Lambda client used to allow invocations
type PermissionAPI interface {
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
	GetPolicy(ctx context.Context, params *lambda.GetPolicyInput, optFns ...func(*lambda.Options)) (*lambda.GetPolicyOutput, error)
	RemovePermission(ctx context.Context, params *lambda.RemovePermissionInput, optFns ...func(*lambda.Options)) (*lambda.RemovePermissionOutput, error)
}

// SubscriptionAPI is the subset of the CloudWatch Logs client used to
// subscribe the function to the log group
type SubscriptionAPI interface {
	PutSubscriptionFilter(ctx context.Context, params *cloudwatchlogs.PutSubscriptionFilterInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutSubscriptionFilterOutput, error)
}

// Clients groups the service clients Apply talks to
type Clients struct {
	Tables        TableAPI
	Roles         RoleAPI
	Permissions   PermissionAPI
	Subscriptions SubscriptionAPI
}

// StackSpec declares the resources to provision
//
//nolint:govet // Field alignment is less important than readability for config structs
type StackSpec struct {
	TableName   string
	RoleName    string
	FunctionARN string

	// Account and Region default to the ones of FunctionARN
	Account string
	Region  string

	LogGroupName  string
	FilterName    string
	FilterPattern string
	StatementID   string

	// WaitTimeout bounds the wait for a new table to become active.
	// Zero skips the wait.
	WaitTimeout time.Duration
}

// Complete validates the spec and fills defaults. Account and Region are
// taken from FunctionARN when empty. Returns the ARN partition.
func (s *StackSpec) Complete() (partition string, err error) {
	if s.TableName == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	if s.RoleName == "" {
		return "", fmt.Errorf("role name cannot be empty")
	}
	if s.FunctionARN == "" {
		return "", fmt.Errorf("function ARN cannot be empty")
	}

	fnArn, err := arn.Parse(s.FunctionARN)
	if err != nil {
		return "", fmt.Errorf("invalid function ARN %q: %w", s.FunctionARN, err)
	}
	if fnArn.Service != "lambda" {
		return "", fmt.Errorf("function ARN %q is not a lambda ARN", s.FunctionARN)
	}

	if s.Account == "" {
		s.Account = fnArn.AccountID
	}
	if s.Region == "" {
		s.Region = fnArn.Region
	}
	if s.LogGroupName == "" {
		s.LogGroupName = DefaultLogGroupName
	}
	if s.FilterName == "" {
		s.FilterName = DefaultFilterName
	}
	if s.FilterPattern == "" {
		s.FilterPattern = DefaultFilterPattern
	}
	if s.StatementID == "" {
		s.StatementID = DefaultStatementID
	}

	return fnArn.Partition, nil
}

// LogGroupArn returns the ARN of the log group, covering all its streams
func LogGroupArn(partition, region, account, logGroupName string) string {
	return fmt.Sprintf("arn:%s:logs:%s:%s:log-group:%s:*", partition, region, account, logGroupName)
}

// Apply ensures the record table, the function's table permissions, the
// log service invoke permission and the subscription filter exist.
// Running it again against provisioned resources changes nothing.
func Apply(ctx context.Context, clients Clients, spec StackSpec) (*Result, error) {
	partition, err := spec.Complete()
	if err != nil {
		return nil, err
	}

	tableArn, created, err := ensureTable(ctx, clients.Tables, spec.TableName, spec.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure table: %w", err)
	}

	policyName, err := ensureRolePolicy(ctx, clients.Roles, spec.RoleName, spec.TableName, tableArn)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure role policy: %w", err)
	}

	logGroupArn := LogGroupArn(partition, spec.Region, spec.Account, spec.LogGroupName)

	permissionReplaced, err := ensurePermission(ctx, clients.Permissions, spec, logGroupArn)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure invoke permission: %w", err)
	}

	if err := ensureSubscription(ctx, clients.Subscriptions, spec); err != nil {
		return nil, fmt.Errorf("failed to ensure subscription filter: %w", err)
	}

	return &Result{
		TableArn:     tableArn,
		RoleName:     spec.RoleName,
		PolicyName:   policyName,
		StatementID:  spec.StatementID,
		FilterName:   spec.FilterName,
		LogGroupArn:  logGroupArn,
		TableCreated: created,

		PermissionReplaced: permissionReplaced,
	}, nil
}

// ensureTable creates the table if it doesn't exist, or validates the
// existing table's key schema.
func ensureTable(ctx context.Context, tables TableAPI, tableName string, waitTimeout time.Duration) (string, bool, error) {
	describeOutput, err := tables.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		if err := checkKeySchema(describeOutput.Table.KeySchema); err != nil {
			return "", false, err
		}
		return aws.ToString(describeOutput.Table.TableArn), false, nil
	}

	var notFound *dynamodbtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return "", false, fmt.Errorf("describe table failed: %w", err)
	}

	createOutput, err := tables.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []dynamodbtypes.AttributeDefinition{
			{AttributeName: aws.String(partitionKey), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dynamodbtypes.KeySchemaElement{
			{AttributeName: aws.String(partitionKey), KeyType: dynamodbtypes.KeyTypeHash},
		},
		BillingMode: dynamodbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *dynamodbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			// created concurrently
			return describeExisting(ctx, tables, tableName)
		}
		return "", false, fmt.Errorf("create table failed: %w", err)
	}

	if waitTimeout > 0 {
		waiter := dynamodb.NewTableExistsWaiter(tables)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, waitTimeout); err != nil {
			return "", false, fmt.Errorf("wait for table failed: %w", err)
		}
	}

	return aws.ToString(createOutput.TableDescription.TableArn), true, nil
}

func describeExisting(ctx context.Context, tables TableAPI, tableName string) (string, bool, error) {
	describeOutput, err := tables.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return "", false, fmt.Errorf("describe table failed: %w", err)
	}
	if err := checkKeySchema(describeOutput.Table.KeySchema); err != nil {
		return "", false, err
	}
	return aws.ToString(describeOutput.Table.TableArn), false, nil
}

func checkKeySchema(keySchema []dynamodbtypes.KeySchemaElement) error {
	if len(keySchema) != 1 ||
		aws.ToString(keySchema[0].AttributeName) != partitionKey ||
		keySchema[0].KeyType != dynamodbtypes.KeyTypeHash {
		return fmt.Errorf("table already exists with conflicting key schema: %s", describeKeySchema(keySchema))
	}
	return nil
}

func describeKeySchema(keySchema []dynamodbtypes.KeySchemaElement) string {
	parts := make([]string, 0, len(keySchema))
	for _, k := range keySchema {
		parts = append(parts, fmt.Sprintf("%s(%s)", aws.ToString(k.AttributeName), k.KeyType))
	}
	return strings.Join(parts, ",")
}

// ensureRolePolicy puts the inline write policy on the function role.
// PutRolePolicy replaces a policy of the same name.
func ensureRolePolicy(ctx context.Context, roles RoleAPI, roleName, tableName, tableArn string) (string, error) {
	policyDoc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":   "Allow",
				"Action":   tableWriteActions,
				"Resource": tableArn,
			},
		},
	}

	policyJSON, err := json.Marshal(policyDoc)
	if err != nil {
		return "", fmt.Errorf("marshal policy document failed: %w", err)
	}

	policyName := tableName + "-write"
	_, err = roles.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(string(policyJSON)),
	})
	if err != nil {
		return "", fmt.Errorf("put role policy failed: %w", err)
	}

	return policyName, nil
}

// ensurePermission lets the log service invoke the function for the log
// group. A statement with the same ID but another principal, account or
// source ARN is replaced. Reports whether an existing statement was replaced.
func ensurePermission(ctx context.Context, permissions PermissionAPI, spec StackSpec, logGroupArn string) (bool, error) {
	input := &lambda.AddPermissionInput{
		FunctionName:  aws.String(spec.FunctionARN),
		StatementId:   aws.String(spec.StatementID),
		Action:        aws.String(invokeAction),
		Principal:     aws.String(logsService),
		SourceAccount: aws.String(spec.Account),
		SourceArn:     aws.String(logGroupArn),
	}

	_, err := permissions.AddPermission(ctx, input)
	if err == nil {
		return false, nil
	}

	var conflict *lambdatypes.ResourceConflictException
	if !errors.As(err, &conflict) {
		return false, fmt.Errorf("add permission failed: %w", err)
	}

	policyOutput, err := permissions.GetPolicy(ctx, &lambda.GetPolicyInput{
		FunctionName: aws.String(spec.FunctionARN),
	})
	if err != nil {
		return false, fmt.Errorf("get policy failed: %w", err)
	}

	statement, err := findStatement(aws.ToString(policyOutput.Policy), spec.StatementID)
	if err != nil {
		return false, err
	}
	if statement != nil && statement.grants(spec.Account, logGroupArn) {
		return false, nil
	}

	_, err = permissions.RemovePermission(ctx, &lambda.RemovePermissionInput{
		FunctionName: aws.String(spec.FunctionARN),
		StatementId:  aws.String(spec.StatementID),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return false, fmt.Errorf("remove permission failed: %w", err)
		}
	}

	if _, err := permissions.AddPermission(ctx, input); err != nil {
		return false, fmt.Errorf("add permission failed: %w", err)
	}
	return true, nil
}

// policyStatement is one statement of a function resource policy
type policyStatement struct {
	Sid       string                                `json:"Sid"`
	Effect    string                                `json:"Effect"`
	Principal json.RawMessage                       `json:"Principal"`
	Action    json.RawMessage                       `json:"Action"`
	Condition map[string]map[string]json.RawMessage `json:"Condition"`
}

func findStatement(policy, sid string) (*policyStatement, error) {
	if policy == "" {
		return nil, nil
	}

	var document struct {
		Statement []policyStatement `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(policy), &document); err != nil {
		return nil, fmt.Errorf("parse function policy failed: %w", err)
	}

	for i := range document.Statement {
		if document.Statement[i].Sid == sid {
			return &document.Statement[i], nil
		}
	}
	return nil, nil
}

// grants reports whether the statement allows the log service to invoke the
// function from account for sourceArn
func (s *policyStatement) grants(account, sourceArn string) bool {
	if s.Effect != "Allow" || !rawEquals(s.Action, invokeAction) {
		return false
	}

	var principal struct {
		Service string `json:"Service"`
	}
	if err := json.Unmarshal(s.Principal, &principal); err != nil || principal.Service != logsService {
		return false
	}

	arnMatches := rawEquals(s.Condition["ArnLike"]["AWS:SourceArn"], sourceArn) ||
		rawEquals(s.Condition["ArnEquals"]["AWS:SourceArn"], sourceArn)
	return arnMatches && rawEquals(s.Condition["StringEquals"]["AWS:SourceAccount"], account)
}

// rawEquals reports whether raw is the JSON string want
func rawEquals(raw json.RawMessage, want string) bool {
	var got string
	return json.Unmarshal(raw, &got) == nil && got == want
}

// ensureSubscription creates or updates the subscription filter
func ensureSubscription(ctx context.Context, subscriptions SubscriptionAPI, spec StackSpec) error {
	_, err := subscriptions.PutSubscriptionFilter(ctx, &cloudwatchlogs.PutSubscriptionFilterInput{
		LogGroupName:   aws.String(spec.LogGroupName),
		FilterName:     aws.String(spec.FilterName),
		FilterPattern:  aws.String(spec.FilterPattern),
		DestinationArn: aws.String(spec.FunctionARN),
	})
	if err != nil {
		return fmt.Errorf("put subscription filter failed: %w", err)
	}
	return nil
}
