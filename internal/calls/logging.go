package calls

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the calls module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("calls")
}
