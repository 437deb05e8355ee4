package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// cronLogger adapts arbor to cron.Logger
type cronLogger struct {
	logger arbor.ILogger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("cron", formatPairs(keysAndValues)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("cron", formatPairs(keysAndValues)).Msg(msg)
}

func formatPairs(keysAndValues []interface{}) string {
	parts := make([]string, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return strings.Join(parts, " ")
}
