package database

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safezone-api-server/config"
	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/store"
)

func init() {
	auth.BcryptCost = 4
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSeedSuperAdmin_Idempotent(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	cfg := config.AdminConfig{Email: "root@dmc.lk", Password: "changeme", Name: "Root"}

	require.NoError(t, SeedSuperAdmin(ctx, m, cfg, discard()))
	u, err := m.FindByEmail(ctx, "root@dmc.lk")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, u.Role)
	assert.True(t, auth.CheckPasswordHash("changeme", u.Password))

	cfg.Password = "other"
	require.NoError(t, SeedSuperAdmin(ctx, m, cfg, discard()))
	u, err = m.FindByEmail(ctx, "root@dmc.lk")
	require.NoError(t, err)
	assert.True(t, auth.CheckPasswordHash("changeme", u.Password))
}

func TestSeedSampleZones(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, SeedSampleZones(ctx, m, discard()))
	n, err := m.CountActive(ctx, store.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, len(SampleZones()), n)

	full, err := m.CountActive(ctx, store.Filter{Status: models.StatusFull})
	require.NoError(t, err)
	assert.EqualValues(t, 1, full)

	require.NoError(t, SeedSampleZones(ctx, m, discard()))
	n, err = m.CountActive(ctx, store.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, len(SampleZones()), n)
}
