package bootstrap

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/config"
	"sdrops/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "svc",
		Password: "p@ss/word",
		DBName:   "automation",
		SSLMode:  "disable",
	})
	assert.Equal(t, "postgres://svc:p%40ss%2Fword@db:5432/automation?sslmode=disable", dsn)
}

func TestInitRedisDisabled(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())
	client, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Database.Redis.Host = mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.Database.Redis.Port = port

	dc := NewDatabaseConnector(cfg, logger.NopLogger())
	client, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)

	errs := dc.ShutdownDatabases(client, nil)
	assert.Empty(t, errs)
}
