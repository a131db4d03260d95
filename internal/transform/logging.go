package transform

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the transform module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("transform")
}
