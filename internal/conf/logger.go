package conf

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the configuration module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
