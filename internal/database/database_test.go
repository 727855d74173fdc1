package database

import (
	"path/filepath"
	"testing"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host: "db", Port: "5432", User: "ledger", Password: "pw", Name: "ledger", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=ledger password=pw dbname=ledger sslmode=disable", dsn)
}

func TestInitSQLite(t *testing.T) {
	db, err := InitSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	defer db.Close()

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	_, err = InitSQLite(config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestInitRedis_Unreachable(t *testing.T) {
	rdb := InitRedis(config.RedisConfig{Host: "127.0.0.1", Port: "1"})
	assert.Nil(t, rdb)
}
