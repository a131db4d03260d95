// Package buildinfo holds build-time metadata and the identity of the
// current run, kept apart from user configuration.
package buildinfo

import "github.com/google/uuid"

// UnknownValue is returned for metadata that was not injected at build time.
const UnknownValue = "unknown"

// BuildInfo provides read access to build and run metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
	RunID() string
}

// Context is created once at startup. Version and BuildDate come from
// -ldflags; the run ID tags logs, the outcome ledger and pushed metrics.
type Context struct {
	version   string
	buildDate string
	runID     string
}

// NewContext returns a Context with a fresh random run ID.
func NewContext(version, buildDate string) *Context {
	return &Context{
		version:   version,
		buildDate: buildDate,
		runID:     uuid.NewString(),
	}
}

// WithRunID returns a copy of c using id as the run ID.
func (c *Context) WithRunID(id string) *Context {
	if c == nil {
		return &Context{runID: id}
	}
	cp := *c
	cp.runID = id
	return &cp
}

func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// RunID identifies this process invocation. A scheduled run keeps one ID for
// the whole process.
func (c *Context) RunID() string {
	if c == nil || c.runID == "" {
		return UnknownValue
	}
	return c.runID
}
