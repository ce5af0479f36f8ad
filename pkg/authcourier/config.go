package authcourier

import "fmt"

const (
	// StoreBackendDynamoDB writes records with DynamoDB PutItem
	StoreBackendDynamoDB = "dynamodb"
	// StoreBackendClickHouse writes records to a ReplacingMergeTree table
	StoreBackendClickHouse = "clickhouse"

	// MaxNumWorkers bounds concurrent writes in parallel dispatch mode
	MaxNumWorkers = 64
)

// ValidateConfig performs additional validation beyond required field checks
func ValidateConfig() error {
	logLevel := ConfigSpec.GetString("log-level")
	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true}
	if !validLevels[logLevel] {
		return fmt.Errorf("invalid log-level: %s (must be error|warn|info|debug)", logLevel)
	}

	switch backend := ConfigSpec.GetString("store.backend"); backend {
	case StoreBackendDynamoDB:
		if ConfigSpec.GetString("dynamodb.table-name") == "" {
			return fmt.Errorf("dynamodb.table-name is required (set TABLE_NAME)")
		}
	case StoreBackendClickHouse:
		if len(ConfigSpec.GetStringSlice("clickhouse.url")) == 0 {
			return fmt.Errorf("clickhouse.url must list at least one host")
		}
		if ConfigSpec.GetInt("clickhouse.timeout-seconds") <= 0 {
			return fmt.Errorf("clickhouse.timeout-seconds must be positive, got %d",
				ConfigSpec.GetInt("clickhouse.timeout-seconds"))
		}
	default:
		return fmt.Errorf("invalid store.backend: %s (must be dynamodb|clickhouse)", backend)
	}

	if ConfigSpec.GetInt("dynamodb.max-retry-attempts") < 0 {
		return fmt.Errorf("dynamodb.max-retry-attempts must not be negative, got %d",
			ConfigSpec.GetInt("dynamodb.max-retry-attempts"))
	}

	mode := DispatchMode(ConfigSpec.GetString("transform.dispatch-mode"))
	if !mode.Valid() {
		return fmt.Errorf("invalid transform.dispatch-mode: %s (must be sequential|parallel)", mode)
	}

	numWorkers := ConfigSpec.GetInt("transform.num-workers")
	if numWorkers <= 0 {
		return fmt.Errorf("transform.num-workers must be positive, got %d", numWorkers)
	}
	if numWorkers > MaxNumWorkers {
		return fmt.Errorf("transform.num-workers (%d) exceeds maximum allowed (%d)", numWorkers, MaxNumWorkers)
	}

	if ConfigSpec.GetBool("archive.enabled") && ConfigSpec.GetString("archive.bucket") == "" {
		return fmt.Errorf("archive.bucket is required when archive.enabled is set")
	}

	return nil
}
