package migrate

import (
	"fmt"

	"github.com/omniaagent/crmsync/internal/logger"
)

// GetLogger returns the scheduler module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("scheduler")
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 == len(kv) {
			fields = append(fields, logger.String(key, ""))
			break
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
