package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const (
	defaultTimeFormat = "15:04:05"
	logFileName       = "portico.log"
	logFileMaxSize    = 100 * 1024 * 1024
	logFileMaxBackups = 3
)

// InitLogger builds the desk logger from the [logging] section.
// Console output is used whenever no file writer could be attached.
func InitLogger(config *Config) arbor.ILogger {
	timeFormat := config.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}

	toConsole, toFile := logOutputs(config.Logging.Output)
	logger := arbor.NewLogger()

	fileAttached := false
	if toFile {
		if path, err := logFilePath(config.Logging.Dir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
		} else {
			logger = logger.WithFileWriter(fileWriter(path, timeFormat))
			fileAttached = true
		}
	}

	if toConsole || !fileAttached {
		logger = logger.WithConsoleWriter(consoleWriter(timeFormat))
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

func logOutputs(outputs []string) (console, file bool) {
	for _, output := range outputs {
		switch output {
		case "stdout", "console":
			console = true
		case "file":
			file = true
		}
	}
	return console, file
}

// logFilePath resolves the log file, defaulting to a logs directory beside the executable
func logFilePath(dir string) (string, error) {
	if dir == "" {
		execPath, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		dir = filepath.Join(filepath.Dir(execPath), "logs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create logs directory: %w", err)
	}
	return filepath.Join(dir, logFileName), nil
}

func consoleWriter(timeFormat string) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: timeFormat,
	}
}

func fileWriter(path, timeFormat string) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   path,
		TimeFormat: timeFormat,
		MaxSize:    logFileMaxSize,
		MaxBackups: logFileMaxBackups,
		OutputType: models.OutputFormatLogfmt,
	}
}
