package types

import (
	"github.com/ethereum/go-ethereum/log"
)

// LogOutput owns the logger of one invocation and the host-side log it
// accumulates.
type LogOutput interface {
	// Init prepares the output and returns the invocation logger, derived from
	// base.
	Init(base log.Logger) (log.Logger, error)
	Logger() log.Logger
	// HostLog returns the accumulated host log. It is only complete after
	// Close.
	HostLog() (StreamSource, error)
	// Clone returns a fresh, uninitialised output with the same settings.
	Clone() LogOutput
	Close() error
}
