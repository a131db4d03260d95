package source

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the source module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("source")
}
