// Package secrets resolves credentials from config values and secret files.
// Config values may reference the environment as ${VAR} or ${VAR:-default};
// files are read for mounted secrets such as /run/secrets/crm-token.
//
// Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

const maxSecretFileSize = 64 * 1024

// Expand replaces ${VAR} and ${VAR:-default} references in s. A reference
// without a default to an unset or empty variable is an error.
func Expand(s string) (string, error) {
	if s == "" || !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretErr(fmt.Errorf("missing environment variable(s): %s", strings.Join(missing, ", ")), "expand", "")
	}
	return expanded, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// Files readable by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", secretErr(err, "stat", clean)
	}
	if !info.Mode().IsRegular() {
		return "", secretErr(fmt.Errorf("not a regular file"), "stat", clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", secretErr(fmt.Errorf("larger than %d bytes", maxSecretFileSize), "stat", clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", secretErr(err, "read", clean)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretErr(fmt.Errorf("secret file is empty"), "read", clean)
	}
	return secret, nil
}

// Resolve returns the expanded value, or the contents of file when the
// value is empty. Both empty resolves to "".
func Resolve(value, file string) (string, error) {
	v, err := Expand(value)
	if err != nil {
		return "", err
	}
	if v != "" || file == "" {
		return v, nil
	}
	return ReadFile(file)
}

func secretErr(err error, op, path string) error {
	b := errors.New(err).
		Component("configuration").
		Category(errors.CategoryConfiguration).
		Context("operation", "secret_"+op)
	if path != "" {
		b = b.Context("path", path)
	}
	return b.Build()
}

// GetLogger returns the secrets module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
