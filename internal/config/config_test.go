package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/spendguard/pkg/detectors"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Model.Trees)
	assert.Equal(t, 0, cfg.Model.SampleSize)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, detectors.DefaultConfig(), cfg.Model.Detector())
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "model.gob", cfg.Store.Key)
	assert.Equal(t, "csv", cfg.Training.Source)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
model:
  trees: 50
  contamination: 0.05
store:
  backend: Redis
  redis:
    addr: cache:6379
training:
  source: postgres
`), 0o644))

	t.Setenv("SPENDGUARD_MODEL_SEED", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Model.Trees)
	assert.Equal(t, 0.05, cfg.Model.Contamination)
	assert.Equal(t, int64(7), cfg.Model.Seed)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "postgres", cfg.Training.Source)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8000},
			Model:    ModelConfig{Trees: 100},
			Store:    StoreConfig{Backend: "file", Key: "model.gob", File: FileConfig{Dir: "models"}},
			Training: TrainingConfig{Source: "csv"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "no trees", mutate: func(c *Config) { c.Model.Trees = 0 }, wantErr: true},
		{name: "negative sample size", mutate: func(c *Config) { c.Model.SampleSize = -1 }, wantErr: true},
		{name: "contamination half", mutate: func(c *Config) { c.Model.Contamination = 0.5 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "ftp" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Store.Backend = "s3" }, wantErr: true},
		{name: "empty key", mutate: func(c *Config) { c.Store.Key = "" }, wantErr: true},
		{name: "unknown source", mutate: func(c *Config) { c.Training.Source = "kafka" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
