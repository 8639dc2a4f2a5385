package evauthz

import "github.com/oarkflow/evauthz/logger"

// Logger is re-exported so callers need not import the logger package.
type Logger = logger.Logger

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}
