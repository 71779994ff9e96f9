package storage

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	k, err := ParseKind("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, k)

	k, err = ParseKind("clickhouse")
	require.NoError(t, err)
	assert.Equal(t, ClickHouse, k)

	_, err = ParseKind("mysql")
	require.ErrorIs(t, err, ErrUnknownKind)
	_, err = ParseKind("")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestOpen_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := Open(t.Context(), Config{Kind: "sqlite"}, zap.NewNop().Sugar())
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestBackend_CloseWithoutConnection(t *testing.T) {
	t.Parallel()
	var b Backend
	b.Close()
}

func newFlagContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags() {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestConfigFromCLI_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := ConfigFromCLI(newFlagContext(t), "fee_checkpoints")
	require.NoError(t, err)

	assert.Equal(t, Postgres, cfg.Kind)
	assert.Equal(t, "fee_events", cfg.FeesTableName)
	assert.Equal(t, "fee_checkpoints", cfg.CheckpointTableName)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, int32(5), cfg.Postgres.MaxConns)
	assert.Equal(t, []string{"localhost:9000"}, cfg.ClickHouse.Hosts)
	assert.Equal(t, 10, cfg.ClickHouse.BlockBufferSize)
}

func TestConfigFromCLI_ClickHouse(t *testing.T) {
	t.Parallel()
	ctx := newFlagContext(t,
		"--store", "clickhouse",
		"--clickhouse-hosts", "ch1:9000, ch2:9000",
		"--clickhouse-cluster", "fees",
		"--fees-table-name", "fees_137",
	)
	cfg, err := ConfigFromCLI(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, ClickHouse, cfg.Kind)
	assert.Equal(t, []string{"ch1:9000", "ch2:9000"}, cfg.ClickHouse.Hosts)
	assert.Equal(t, "fees", cfg.ClickHouse.Cluster)
	assert.Equal(t, "fees_137", cfg.FeesTableName)
	assert.Empty(t, cfg.CheckpointTableName)
}

func TestConfigFromCLI_Errors(t *testing.T) {
	t.Parallel()
	_, err := ConfigFromCLI(newFlagContext(t, "--store", "mongo"), "")
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = ConfigFromCLI(newFlagContext(t, "--clickhouse-block-buffer-size", "256"), "")
	require.Error(t, err)
}
