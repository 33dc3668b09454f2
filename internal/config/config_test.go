package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRequestTimeout, cfg.Server.RequestTimeout.Duration)
	assert.Equal(t, DefaultPGDatabase, cfg.Postgres.Database)
	assert.Equal(t, DefaultDispatchSpec, cfg.Messaging.DispatchSpec)
	assert.Equal(t, DefaultTimelineLimit, cfg.Timeline.Limit)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"
request_timeout = "5s"

[postgres]
database = "crm_test"

[redis]
enabled = true
channel = "crm:test"

[mail]
provider = "mailgun"
from = "office@example.com"

[mail.mailgun]
domain = "mg.example.com"

[timeline]
heartbeat = "1m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout.Duration)
	assert.Equal(t, "crm_test", cfg.Postgres.Database)
	assert.Equal(t, DefaultPGHost, cfg.Postgres.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "crm:test", cfg.Redis.Channel)
	assert.Equal(t, "mailgun", cfg.Mail.Provider)
	assert.Equal(t, "mg.example.com", cfg.Mail.Mailgun.Domain)
	assert.Equal(t, time.Minute, cfg.Timeline.Heartbeat.Duration)
	assert.Equal(t, DefaultTimelineBuffer, cfg.Timeline.Buffer)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nrequest_timeout = \"soon\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
