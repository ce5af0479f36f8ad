package clickhouse

// DatabaseName is the default ClickHouse database holding auth records
const DatabaseName = "auth"

// TableAuthRecords is the ReplacingMergeTree table of auth records, one
// row per username once merged
const TableAuthRecords = "auth_records"
