package infra

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithArgs(t *testing.T, args ...string) (*AppConfig, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return LoadConfig(viper.New(), fs)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Directory.Driver)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 64, cfg.Store.LockShards)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadConfig_SQLStoreInheritsDatabaseDriver(t *testing.T) {
	cfg, err := loadWithArgs(t, "--store.driver=sqlite", "--database.schema=/tmp/progress.db")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("PROGRESS_STORE_DRIVER", "redis")
	t.Setenv("PROGRESS_SECURITY_JWT_SECRET", "s3cret")

	cfg, err := loadWithArgs(t)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadWithArgs(t, "--store.driver=mongo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be one of")

	_, err = loadWithArgs(t, "--directory.driver=sql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver is required")
}
