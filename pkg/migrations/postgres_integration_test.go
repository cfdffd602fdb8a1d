//go:build integration

package migrations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/testinfra"
	"sdrops/pkg/migrations"
)

func TestUpDownVersion(t *testing.T) {
	db := testinfra.Postgres(t)

	version, dirty, err := migrations.Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	require.NoError(t, migrations.Up(db))

	require.NoError(t, migrations.Down(db))
	version, _, err = migrations.Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	var exists bool
	require.NoError(t, db.QueryRow(`SELECT to_regclass('public.export_escalations') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists)

	require.NoError(t, migrations.Up(db))
	require.NoError(t, db.QueryRow(`SELECT to_regclass('public.export_escalations') IS NOT NULL`).Scan(&exists))
	assert.True(t, exists)
}
