package person

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the person module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("person")
}
