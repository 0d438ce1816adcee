package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("INFO")
	SetFormat("text")
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
		SetFormat("text")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := reset(t)

	Debug("hidden %d", 1)
	Info("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[INFO] shown 2")

	buf.Reset()
	SetLevel("error")
	Warn("dropped")
	Error("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "[ERROR] kept")
}

func TestJSONFormat(t *testing.T) {
	buf := reset(t)
	SetFormat("json")

	Warn("cache %s", "miss")

	var line map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "cache miss", line["msg"])
	assert.NotEmpty(t, line["time"])
}

func TestConfigureFile(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "acl.log")

	require.NoError(t, Configure("debug", "text", path))
	Debug("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] to file")
}
