package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogOutputs(t *testing.T) {
	tests := []struct {
		name    string
		outputs []string
		console bool
		file    bool
	}{
		{"none", nil, false, false},
		{"stdout", []string{"stdout"}, true, false},
		{"console alias", []string{"console"}, true, false},
		{"both", []string{"stdout", "file"}, true, true},
		{"unknown ignored", []string{"syslog", "file"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console, file := logOutputs(tt.outputs)
			assert.Equal(t, tt.console, console)
			assert.Equal(t, tt.file, file)
		})
	}
}

func TestLogFilePath_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	path, err := logFilePath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, logFileName), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestInitLogger_FileOutput(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Output = []string{"file"}
	config.Logging.Dir = t.TempDir()
	config.Logging.Level = "debug"

	logger := InitLogger(config)
	require.NotNil(t, logger)
	logger.Info().Msg("file logger ready")
}
