package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileGetsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waveform.logs")
	log, err := NewLogger(path, "info")
	require.NoError(t, err)

	log.Debug("[test] hidden")
	log.Info("[test] shown", zap.Int("count", 3))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "[test] shown", entry["msg"])
	assert.EqualValues(t, 3, entry["count"])
}

func TestInvalidLevel(t *testing.T) {
	_, err := NewLogger("", "loud")
	assert.Error(t, err)
}
