package identity

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the identity module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("identity")
}
