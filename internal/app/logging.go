package app

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
