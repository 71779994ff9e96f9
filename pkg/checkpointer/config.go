package checkpointer

import "time"

// Config holds the settings used around checkpoint persistence.
type Config struct {
	TableName string // Table (or collection) holding one row per chain

	// SalvageTimeout bounds the checkpoint write issued after a failed or cancelled run. It runs on
	// a fresh context so a cancelled run can still record its progress.
	SalvageTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName:      "fee_checkpoints",
		SalvageTimeout: 10 * time.Second,
	}
}
