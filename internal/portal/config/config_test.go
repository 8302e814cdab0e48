package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WEB_URL", "https://wiki.comunidadeds.com.br")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "wiki.comunidadeds.com.br", cfg.WebURL.Host)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, DatabasePostgres, cfg.DatabaseDriver)
	assert.Equal(t, StorageLocal, cfg.StorageDriver)
	assert.Equal(t, "wiki", cfg.StorageBucket)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutoSaveDelay())
	assert.Equal(t, 1600, cfg.MaxImageWidth)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEB_URL", "http://localhost:3000")
	t.Setenv("STORAGE_DRIVER", "supabase")
	t.Setenv("SUPABASE_SERVICE_KEY", "chave-secreta")
	t.Setenv("AUTOSAVE_DELAY_MS", "300")
	t.Setenv("MINIFY_HTML", "true")
	t.Setenv("MAX_UPLOAD_MB", "nope")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageSupabase, cfg.StorageDriver)
	assert.Equal(t, "chave-secreta", cfg.SupabaseServiceKey)
	assert.Equal(t, 300*time.Millisecond, cfg.AutoSaveDelay())
	assert.True(t, cfg.MinifyHTML)
	assert.Equal(t, 10, cfg.MaxUploadMB)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no web url", map[string]string{"WEB_URL": ""}},
		{"bad web url", map[string]string{"WEB_URL": "http://[::1"}},
		{"bad storage", map[string]string{"WEB_URL": "http://x", "STORAGE_DRIVER": "ftp"}},
		{"bad database", map[string]string{"WEB_URL": "http://x", "DATABASE_DRIVER": "mysql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "a****f", maskValue("AWSSecretKey", "abcdef"))
	assert.Equal(t, "**", maskValue("SupabaseServiceKey", "ab"))
	assert.Equal(t, "postgres", maskValue("DatabaseDriver", "postgres"))
}
