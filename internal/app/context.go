package app

import (
	"github.com/omniaagent/crmsync/internal/buildinfo"
	"github.com/omniaagent/crmsync/internal/conf"
)

// Context is shared by the root command and its sub-commands. Settings is
// nil until the root command has loaded the configuration.
type Context struct {
	Build    *buildinfo.Context
	Settings *conf.Settings
}

// NewContext returns a Context for build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Open wires an App from the loaded settings.
func (c *Context) Open(opts ...Option) (*App, error) {
	if c.Settings == nil {
		return nil, errNotLoaded
	}
	return New(c.Settings, c.Build, opts...)
}
