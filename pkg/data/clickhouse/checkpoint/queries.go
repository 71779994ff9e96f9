package checkpoint

import "fmt"

// onCluster renders the ON CLUSTER clause for DDL, or nothing on a single node.
func onCluster(cluster string) string {
	if cluster == "" {
		return ""
	}
	return fmt.Sprintf(" ON CLUSTER %s", cluster)
}

func createTableQuery(table, cluster string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s%s (
		chain_id UInt64,
		last_ingested_block UInt64,
		updated_at DateTime64(3, 'UTC')
	)
	ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY chain_id`, table, onCluster(cluster))
}

func writeCheckpointQuery(table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (chain_id, last_ingested_block, updated_at) VALUES (?, ?, ?)", table)
}

func readCheckpointQuery(table string) string {
	return fmt.Sprintf(
		"SELECT last_ingested_block FROM %s FINAL WHERE chain_id = ? ORDER BY updated_at DESC LIMIT 1", table)
}

func deleteCheckpointQuery(table, cluster string) string {
	return fmt.Sprintf("DELETE FROM %s%s WHERE chain_id = ?", table, onCluster(cluster))
}
