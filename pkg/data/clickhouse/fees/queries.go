package fees

import (
	"fmt"
	"strings"
)

const feeColumns = `block_number, tx_hash, log_index, token, integrator, integrator_fee, lifi_fee, inserted_at`

func onCluster(cluster string) string {
	if cluster == "" {
		return ""
	}
	return fmt.Sprintf(" ON CLUSTER %s", cluster)
}

// createTableQuery returns the DDL of the fee events table. ReplacingMergeTree collapses rows
// sharing (tx_hash, log_index) so a key is never counted twice even if two writers race.
func createTableQuery(table, cluster string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s%s (
		block_number UInt64,
		tx_hash String,
		log_index UInt64,
		token String,
		integrator String,
		integrator_fee UInt256,
		lifi_fee UInt256,
		inserted_at DateTime64(6, 'UTC')
	)
	ENGINE = ReplacingMergeTree
	ORDER BY (tx_hash, log_index)`, table, onCluster(cluster))
}

// existingKeysQuery selects the stored keys among the given transaction hashes, one placeholder
// per hash.
func existingKeysQuery(table string, hashes int) string {
	return fmt.Sprintf("SELECT tx_hash, log_index FROM %s FINAL WHERE tx_hash IN (%s)",
		table, placeholders(hashes))
}

// insertQuery is the statement a fee events batch is prepared from.
func insertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", table, feeColumns)
}

func queryByIntegratorQuery(table string) string {
	return fmt.Sprintf(`SELECT block_number, tx_hash, log_index, token, integrator,
		toString(integrator_fee), toString(lifi_fee)
	FROM %s FINAL
	WHERE integrator = ?
	ORDER BY inserted_at, block_number, log_index
	LIMIT ? OFFSET ?`, table)
}

func truncateQuery(table, cluster string) string {
	return fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s%s", table, onCluster(cluster))
}

// placeholders renders n comma-separated "?" markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
