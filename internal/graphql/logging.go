package graphql

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the graphql module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("graphql")
}
