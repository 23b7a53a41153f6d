package execution

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Listener receives the terminal callback of an execution. Exactly one of
// the two methods is invoked, at most once, on a goroutine owned by the engine.
type Listener interface {
	OnSuccess(exec *Execution, result any)
	OnException(exec *Execution, err error)
}

// Completion is the terminal state of an execution.
type Completion struct {
	Result     any
	Err        error
	FinishedAt time.Time
}

// Execution is the handle of a submitted script. It settles exactly once.
type Execution struct {
	id       string
	script   ScriptHandle
	config   Config
	listener Listener

	once       sync.Once
	done       chan struct{}
	completion Completion
}

// NewExecution creates an unsettled execution for script. listener may be nil.
func NewExecution(script ScriptHandle, cfg Config, listener Listener) *Execution {
	return &Execution{
		id:       uuid.NewString(),
		script:   script,
		config:   cfg,
		listener: listener,
		done:     make(chan struct{}),
	}
}

func (e *Execution) ID() string           { return e.id }
func (e *Execution) Script() ScriptHandle { return e.script }
func (e *Execution) Config() Config       { return e.config }

// Done is closed once the execution has settled and its listener returned.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Completion returns the terminal state and whether the execution has settled.
func (e *Execution) Completion() (Completion, bool) {
	select {
	case <-e.done:
		return e.completion, true
	default:
		return Completion{}, false
	}
}

// Finish settles the execution and invokes the listener. It reports false
// when the execution had already settled, in which case nothing happens.
func (e *Execution) Finish(result any, err error) bool {
	settled := false
	e.once.Do(func() {
		e.completion = Completion{Result: result, Err: err, FinishedAt: time.Now()}
		settled = true
	})
	if !settled {
		return false
	}
	defer close(e.done)

	if e.listener == nil {
		return true
	}
	if err != nil {
		e.listener.OnException(e, err)
	} else {
		e.listener.OnSuccess(e, result)
	}
	return true
}
