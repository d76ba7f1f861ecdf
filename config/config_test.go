package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docrelay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[telegram]
token = "tg-token"

[agent.options]
api_key = "sk-test"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tg-token", cfg.Telegram.Token)
	assert.Equal(t, "openaichat", cfg.Agent.Type)
	assert.Equal(t, DefaultModelAlias, cfg.Agent.DefaultModel)
	assert.Equal(t, DefaultModels, cfg.Agent.Models)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 512, cfg.Image.MaxDimension)
	assert.Equal(t, 60, cfg.Image.Quality)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[telegram]
token = "tg-token"

[agent]
default_model = "tiny"

[agent.models]
tiny = "vendor.tiny-1"

[agent.options]
api_key = "sk-test"

[image]
max_dimension = 256
quality = 80
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "tiny", cfg.Agent.DefaultModel)
	assert.Equal(t, map[string]string{"tiny": "vendor.tiny-1"}, cfg.Agent.Models)
	assert.Equal(t, 256, cfg.Image.MaxDimension)
	assert.Equal(t, 80, cfg.Image.Quality)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_BASE_URL", "https://gw.example/v1")

	path := writeConfig(t, `
[telegram]
token = "file-token"

[agent.options]
api_key = "file-key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "env-key", cfg.Agent.Options["api_key"])
	assert.Equal(t, "https://gw.example/v1", cfg.Agent.Options["base_url"])
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing token",
			content: "[agent.options]\napi_key = \"k\"\n",
			wantErr: "telegram.token",
		},
		{
			name: "unknown default model",
			content: `
[telegram]
token = "t"

[agent]
default_model = "ghost"
`,
			wantErr: "default_model",
		},
		{
			name: "bad quality",
			content: `
[telegram]
token = "t"

[image]
quality = 0
`,
			wantErr: "quality",
		},
		{
			name: "bad dimension",
			content: `
[telegram]
token = "t"

[image]
max_dimension = -1
`,
			wantErr: "max_dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_BOT_TOKEN", "")
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
