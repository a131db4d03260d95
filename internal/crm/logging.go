package crm

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the crm module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("crm")
}
