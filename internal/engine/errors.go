package engine

import (
	"fmt"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// Error pairs one of the §7 error kinds with the detail message
// delivered to a session's upstream.
type Error struct {
	Kind    model.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind model.ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrEngineNotRunning is returned by Enqueue and Info when called
// before Start or after Stop has completed; Enqueue also returns it once
// a stop is under way. Stop on an engine that is not running returns nil.
var ErrEngineNotRunning = fmt.Errorf("engine: not running")

// ErrAlreadyRunning is returned by a second Start call.
var ErrAlreadyRunning = fmt.Errorf("engine: already running")
