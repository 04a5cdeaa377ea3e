package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

func TestAutoRunEnabled(t *testing.T) {
	cases := []struct {
		env  string
		flag bool
		want bool
	}{
		{env: config.AppEnvDev, flag: true, want: true},
		{env: config.AppEnvDev, flag: false},
		{env: config.AppEnvProd, flag: true},
	}
	for _, tc := range cases {
		cfg := &config.Config{}
		cfg.App.Env = tc.env
		cfg.FeatureFlags.AutoMigrate = tc.flag
		assert.Equal(t, tc.want, AutoRunEnabled(cfg), "env=%s flag=%v", tc.env, tc.flag)
	}
	assert.False(t, AutoRunEnabled(nil))
}

func TestMaybeRunDevBuildsSQLiteSchema(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.App.Env = config.AppEnvDev
	cfg.FeatureFlags.AutoMigrate = true
	cfg.DB = config.DBConfig{Driver: config.DBDriverSQLite, DSN: filepath.Join(t.TempDir(), "dev.db")}

	client, err := db.New(ctx, cfg.DB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, MaybeRunDev(ctx, cfg, logger.Nop(), client))
	for _, model := range models.All() {
		assert.True(t, client.DB().Migrator().HasTable(model), "missing table for %T", model)
	}
}
