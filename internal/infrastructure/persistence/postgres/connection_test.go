package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	cfg.MaxConns = 7
	cfg.LockTimeout = 1500 * time.Millisecond

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, "hifz", pc.ConnConfig.Database)
	assert.Equal(t, "1500", pc.ConnConfig.RuntimeParams["lock_timeout"])
	assert.Contains(t, cfg.DSN(), "connect_timeout=10")
}

func TestErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, IsUniqueViolation(wrap("23505")))
	assert.True(t, IsForeignKeyViolation(wrap("23503")))
	assert.True(t, IsContention(wrap("40001")))
	assert.True(t, IsContention(wrap("40P01")))
	assert.True(t, IsContention(wrap("55P03")))
	assert.False(t, IsContention(wrap("23505")))
	assert.False(t, IsContention(fmt.Errorf("plain")))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}
