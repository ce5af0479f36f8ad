package authcourier

import "github.com/scality/auth-courier/pkg/util"

// ConfigSpec defines all configuration items for auth-courier
//
//nolint:gochecknoglobals // global config spec is intentional
var ConfigSpec = util.ConfigSpec{
	// Record store
	"store.backend": util.ConfigVarSpec{
		Help:         "Record store backend (dynamodb|clickhouse)",
		DefaultValue: "dynamodb",
		EnvVar:       "AUTH_COURIER_STORE_BACKEND",
	},

	// DynamoDB
	"dynamodb.table-name": util.ConfigVarSpec{
		Help:         "DynamoDB table receiving authentication records",
		DefaultValue: "",
		EnvVar:       "TABLE_NAME",
	},
	"dynamodb.endpoint": util.ConfigVarSpec{
		Help:         "DynamoDB endpoint override (empty for the regional AWS endpoint)",
		DefaultValue: "",
		EnvVar:       "AUTH_COURIER_DYNAMODB_ENDPOINT",
	},
	"dynamodb.region": util.ConfigVarSpec{
		Help:         "DynamoDB region (empty to use AWS_REGION)",
		DefaultValue: "",
		EnvVar:       "AUTH_COURIER_DYNAMODB_REGION",
	},
	"dynamodb.max-retry-attempts": util.ConfigVarSpec{
		Help:         "Maximum attempts per DynamoDB call, handled by the SDK retryer (0 for SDK default)",
		DefaultValue: 0,
		EnvVar:       "AUTH_COURIER_DYNAMODB_MAX_RETRY_ATTEMPTS",
	},
	"dynamodb.max-backoff-delay-seconds": util.ConfigVarSpec{
		Help:         "Maximum SDK retry backoff in seconds (0 for SDK default)",
		DefaultValue: 0,
		EnvVar:       "AUTH_COURIER_DYNAMODB_MAX_BACKOFF_DELAY_SECONDS",
	},

	// ClickHouse
	"clickhouse.url": util.ConfigVarSpec{
		Help:         "ClickHouse hosts, comma-separated",
		DefaultValue: "localhost:9000",
		EnvVar:       "AUTH_COURIER_CLICKHOUSE_URL",
		ParseFunc:    util.ParseHostList,
	},
	"clickhouse.username": util.ConfigVarSpec{
		Help:         "ClickHouse username",
		DefaultValue: "default",
		EnvVar:       "AUTH_COURIER_CLICKHOUSE_USERNAME",
	},
	"clickhouse.password": util.ConfigVarSpec{
		Help:         "ClickHouse password",
		DefaultValue: "",
		EnvVar:       "AUTH_COURIER_CLICKHOUSE_PASSWORD",
	},
	"clickhouse.database": util.ConfigVarSpec{
		Help:         "ClickHouse database holding the auth records table",
		DefaultValue: "auth",
		EnvVar:       "AUTH_COURIER_CLICKHOUSE_DATABASE",
	},
	"clickhouse.timeout-seconds": util.ConfigVarSpec{
		Help:         "ClickHouse dial and read timeout in seconds",
		DefaultValue: 10,
		EnvVar:       "AUTH_COURIER_CLICKHOUSE_TIMEOUT_SECONDS",
	},

	// Transform
	"transform.dispatch-mode": util.ConfigVarSpec{
		Help:         "How events of a batch are written (sequential|parallel)",
		DefaultValue: string(DispatchSequential),
		EnvVar:       "AUTH_COURIER_DISPATCH_MODE",
	},
	"transform.num-workers": util.ConfigVarSpec{
		Help:         "Concurrent writes per batch in parallel dispatch mode",
		DefaultValue: 4,
		EnvVar:       "AUTH_COURIER_NUM_WORKERS",
	},

	// Raw batch archive
	"archive.enabled": util.ConfigVarSpec{
		Help:         "Upload every decompressed batch to S3 before writing records",
		DefaultValue: false,
		EnvVar:       "AUTH_COURIER_ARCHIVE_ENABLED",
	},
	"archive.bucket": util.ConfigVarSpec{
		Help:         "S3 bucket receiving archived batches",
		DefaultValue: "",
		EnvVar:       "AUTH_COURIER_ARCHIVE_BUCKET",
	},
	"archive.prefix": util.ConfigVarSpec{
		Help:         "Key prefix of archived batches",
		DefaultValue: "sso-auth/",
		EnvVar:       "AUTH_COURIER_ARCHIVE_PREFIX",
	},
	"s3.endpoint": util.ConfigVarSpec{
		Help:         "S3 endpoint override (empty for the regional AWS endpoint)",
		DefaultValue: "",
		EnvVar:       "AUTH_COURIER_S3_ENDPOINT",
	},

	// Metrics server
	"metrics-server.enabled": util.ConfigVarSpec{
		Help:         "Serve Prometheus metrics over HTTP",
		DefaultValue: false,
		EnvVar:       "AUTH_COURIER_METRICS_SERVER_ENABLED",
	},
	"metrics-server.listen-address": util.ConfigVarSpec{
		Help:         "Metrics server listen address",
		DefaultValue: "0.0.0.0",
		EnvVar:       "AUTH_COURIER_METRICS_SERVER_LISTEN_ADDRESS",
	},
	"metrics-server.listen-port": util.ConfigVarSpec{
		Help:         "Metrics server listen port",
		DefaultValue: 9090,
		EnvVar:       "AUTH_COURIER_METRICS_SERVER_LISTEN_PORT",
	},

	// General
	"log-level": util.ConfigVarSpec{
		Help:         "Log level (error|warn|info|debug)",
		DefaultValue: "info",
		EnvVar:       "AUTH_COURIER_LOG_LEVEL",
	},
	"shutdown-timeout-seconds": util.ConfigVarSpec{
		Help:         "Time allowed to release resources on SIGTERM",
		DefaultValue: 2,
		EnvVar:       "AUTH_COURIER_SHUTDOWN_TIMEOUT_SECONDS",
	},
}
