package migrate

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the migrate module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("migrate")
}
