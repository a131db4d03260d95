package checkpoint

import "github.com/omniaagent/crmsync/internal/logger"

// GetLogger returns the checkpoint module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("checkpoint")
}
