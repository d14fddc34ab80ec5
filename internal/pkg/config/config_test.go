package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "preprocessing_1", cfg.PipelineConfig)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr())
	assert.Equal(t, filepath.Join("models", "regex_norm"), cfg.DefaultDirs["regex_norm"])
	assert.Equal(t, filepath.Join("corpus", "countvec"), cfg.VocabDirs["countvec"])
	assert.Equal(t, cfg.Cache.Host, cfg.Queue.RedisHost)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 10000, cfg.Cache.MemoryEntries)
	assert.Equal(t, 1000, cfg.RegexTimeoutMs)
}

func TestFromViper_PostgresRequiresUser(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{"DB_DRIVER": "postgres"}))
	require.Error(t, err)

	cfg, err := fromViper(newTestViper(map[string]interface{}{
		"DB_DRIVER": "postgres",
		"DB_USER":   "pipeline",
	}))
	require.NoError(t, err)
	assert.Equal(t, "pipeline", cfg.Database.User)
}

func TestFromViper_RejectsUnknownDriver(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{"DB_DRIVER": "mysql"}))
	assert.Error(t, err)
}

func TestFromViper_RejectsNegativeValues(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{"REGEX_TIMEOUT_MS": -1}))
	assert.Error(t, err)

	_, err = fromViper(newTestViper(map[string]interface{}{"CACHE_MEMORY_ENTRIES": -5}))
	assert.Error(t, err)
}

func TestResolvePipelineConfig(t *testing.T) {
	cfg, err := fromViper(newTestViper(nil))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("configs", "preprocessing_1.yml"), cfg.ResolvePipelineConfig("preprocessing_1"))
	assert.Equal(t, "/tmp/custom.yml", cfg.ResolvePipelineConfig("/tmp/custom.yml"))
}
