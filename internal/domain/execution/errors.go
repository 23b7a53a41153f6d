package execution

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInterrupted marks an execution that was deliberately stopped.
	ErrInterrupted = errors.New("execution interrupted")
	// ErrEngineUnavailable is returned when no script engine can accept work.
	ErrEngineUnavailable = errors.New("script engine unavailable")
)

// Positioned is implemented by errors that know where in the script source
// they originated.
type Positioned interface {
	error
	LineNumber() int
	ColumnNumber() int
}

// ScriptError is raised by a runtime module when the script itself fails.
// Line and Column are one-based; zero means unknown.
type ScriptError struct {
	Script  string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	loc := e.Script
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
		if e.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Column)
		}
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if loc == "" {
		return msg
	}
	return loc + ": " + msg
}

func (e *ScriptError) Unwrap() error { return e.Err }

func (e *ScriptError) LineNumber() int   { return e.Line }
func (e *ScriptError) ColumnNumber() int { return e.Column }

// SubmissionError reports that a script never started because the engine
// refused or could not accept it.
type SubmissionError struct {
	Script string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Script, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Unknown source positions.
const (
	UnknownLine   = -1
	UnknownColumn = 0
)

// SourcePosition returns the position carried by the first Positioned error
// found in err's chain, starting at err itself and walking through its causes.
func SourcePosition(err error) (line, column int, ok bool) {
	var positioned Positioned
	if err != nil && errors.As(err, &positioned) {
		return positioned.LineNumber(), positioned.ColumnNumber(), true
	}
	return UnknownLine, UnknownColumn, false
}

// IsInterrupted reports whether err, at any depth, marks a deliberate stop
// rather than a script fault.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
