package vm

import (
	"errors"

	"github.com/zurustar/blox/pkg/value"
)

// ErrCorruptStack is returned when a process finds a frame it cannot
// evaluate. It stops the whole project.
var ErrCorruptStack = value.NewInternalError("corrupt frame stack")

// ErrStopped is returned by Run when the project was stopped before every
// process finished: by Stop, by a stop-all block, by the context or by the
// run timeout.
var ErrStopped = errors.New("project stopped")

// ErrorScheme selects how failed remote calls and extensions surface.
type ErrorScheme uint8

const (
	// Hard raises a runtime error in the calling process.
	Hard ErrorScheme = iota
	// Soft makes the error text the block's value and records it for the
	// RPCError and SyscallError reporters.
	Soft
)

func (s ErrorScheme) String() string {
	if s == Soft {
		return "soft"
	}
	return "hard"
}

// ParseErrorScheme parses "hard" or "soft".
func ParseErrorScheme(s string) (ErrorScheme, bool) {
	switch s {
	case "hard", "":
		return Hard, true
	case "soft":
		return Soft, true
	default:
		return Hard, false
	}
}
