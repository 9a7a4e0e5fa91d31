package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  port: 18080
  read_timeout: 30s
  write_timeout: 0s
  rate_limit: 20
store:
  enabled: false
monitoring:
  log_level: info
  log_format: console
providers:
  - name: dev
    dialect: dev
    auth: signed
    base_url: https://dev.example.com/api/chat
    device_id: dev-device-1
    device_secret: topsecret
    os_type: web
    models:
      default: dev-standard
  - name: openai
    dialect: openai
    auth: bearer
    base_url: https://api.openai.com/v1/chat/completions
    api_key: sk-test
`

func TestLoadFromBytes_Valid(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 18080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, DialectDev, cfg.Providers[0].Dialect)
	assert.Equal(t, AuthSigned, cfg.Providers[0].Auth)
	assert.Equal(t, "dev-standard", cfg.Providers[0].Models["default"])
	assert.Equal(t, AuthBearer, cfg.Providers[1].Auth)
}

func TestLoadFromBytes_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_GW_KEY", "sk-from-env")

	yaml := `
server:
  port: 8080
  read_timeout: 10s
providers:
  - name: openai
    dialect: openai
    auth: bearer
    base_url: https://api.openai.com/v1/chat/completions
    api_key: ${TEST_GW_KEY}
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers[0].APIKey)
}

func TestLoadFromBytes_EnvDefault(t *testing.T) {
	yaml := `
server:
  port: ${TEST_GW_UNSET_PORT:-9090}
  read_timeout: 10s
providers:
  - name: local
    dialect: openai
    auth: none
    base_url: http://localhost:11434/v1/chat/completions
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port is required",
		},
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Providers = nil },
			wantErr: "at least one provider",
		},
		{
			name:    "duplicate provider",
			mutate:  func(c *Config) { c.Providers[1].Name = c.Providers[0].Name },
			wantErr: "duplicate provider name",
		},
		{
			name:    "bearer without key",
			mutate:  func(c *Config) { c.Providers[1].APIKey = "" },
			wantErr: "api_key is required",
		},
		{
			name:    "signed without secret",
			mutate:  func(c *Config) { c.Providers[0].DeviceSecret = "" },
			wantErr: "device_secret is required",
		},
		{
			name:    "unknown dialect",
			mutate:  func(c *Config) { c.Providers[0].Dialect = "grpc" },
			wantErr: "unknown dialect",
		},
		{
			name:    "store enabled without path",
			mutate:  func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" },
			wantErr: "store.path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromBytes([]byte(validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
