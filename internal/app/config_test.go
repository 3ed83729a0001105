package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[server]
port = ":9999"
enable_auth = false
dev_mode = true

[api]
student_id_header = "X-Student"
required_headers = [
  { name = "X-Course", value = "airline-101" },
]

[database]
dsn = ":memory:"
migrations_dir = "../../migrations"

[queue]
workers = 3
max_attempts = 4

[notify]
smtp_addr = "smtp.example.com:587"
from = "school@example.com"
subject_prefix = "[School]"
`

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9999", config.Server.Port)
	assert.True(t, config.Server.DevMode)
	assert.Equal(t, "X-Student", config.API.StudentIDHeader)
	require.Len(t, config.API.RequiredHeaders, 1)
	assert.Equal(t, "X-Course", config.API.RequiredHeaders[0].Name)
	assert.Equal(t, 3, config.Queue.Workers)
	assert.Equal(t, "[School]", config.Notify.SubjectPrefix)

	// defaults
	assert.Equal(t, QueueMemory, config.Queue.Backend)
	assert.Equal(t, "./uploads", config.Storage.UploadDir)
	assert.Equal(t, int64(32), config.API.MaxUploadMB)
	assert.Equal(t, "Authorization", config.Auth.TokenHeader)
	assert.Equal(t, "auth:{student}", config.Auth.TokenKeyTemplate)
}

func TestParseConfigErrors(t *testing.T) {
	testCases := []struct {
		name string
		toml string
	}{
		{"missing port", "[database]\ndsn = \":memory:\""},
		{"missing dsn", "[server]\nport = \":1\""},
		{"unknown queue backend", "[server]\nport = \":1\"\n[database]\ndsn = \"x\"\n[queue]\nbackend = \"kafka\""},
		{"redis queue without url", "[server]\nport = \":1\"\n[database]\ndsn = \"x\"\n[queue]\nbackend = \"redis\""},
		{"not toml", "port = "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.toml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", config.Database.DSN)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
