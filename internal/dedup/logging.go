package dedup

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the dedup module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("dedup")
}
