package conf

import (
	"os"
	"path/filepath"
	"time"

	"github.com/omniaagent/crmsync/internal/errors"
)

const appDir = "crmsync"

// GetDefaultConfigPaths returns the config.yaml search path: the working
// directory, the user config directory and /etc/crmsync.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", appDir),
		filepath.Join("/etc", appDir),
	}, nil
}

// DefaultConfigFile is where a missing config is created.
func DefaultConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(paths[1], "config.yaml"), nil
}

// FindConfigFile returns the first existing config.yaml on the search path.
func FindConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, path := range paths {
		candidate := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Newf("config file not found").
		Component("configuration").
		Category(errors.CategoryFileIO).
		Context("operation", "find-config-file").
		Build()
}

// Location loads an IANA zone name; empty means UTC.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("timezone", name).
			Build()
	}
	return loc, nil
}
