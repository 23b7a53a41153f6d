// Package yaegi runs Go-source scripts in-process with the yaegi interpreter.
package yaegi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"scriptd/internal/domain/execution"
	runtimex "scriptd/internal/runtime"
)

// Config controls the interpreter created for every run.
type Config struct {
	// Stdout and Stderr receive a copy of the script output when set.
	Stdout io.Writer
	Stderr io.Writer
	// Env is the base environment visible to scripts.
	Env []string
	// Unrestricted gives scripts access to the real process environment.
	Unrestricted bool
}

// Module implements runtime.Module for Go-source scripts.
type Module struct {
	cfg Config
}

var _ runtimex.Module = (*Module)(nil)

// New constructs a yaegi-backed module.
func New(cfg Config) *Module {
	return &Module{cfg: cfg}
}

func (m *Module) Language() execution.Language {
	return execution.LanguageGo
}

// Prepare loads the script source. The source is interpreted afresh on
// every run so that repeated runs do not share globals.
func (m *Module) Prepare(ctx context.Context, script execution.ScriptHandle, cfg execution.Config) (runtimex.PreparedScript, error) {
	if script.Language() != execution.LanguageGo {
		return nil, fmt.Errorf("yaegi runtime: script language %q is not go", script.Language())
	}

	source, err := script.ReadSource()
	if err != nil {
		return nil, err
	}

	return &preparedScript{
		module: m,
		script: script,
		source: source,
		config: cfg,
	}, nil
}

func (m *Module) Close() error {
	return nil
}

type preparedScript struct {
	module *Module
	script execution.ScriptHandle
	source string
	config execution.Config
}

func (p *preparedScript) Run(ctx context.Context) (*execution.Result, error) {
	runCtx := ctx
	limit := p.config.Limits.TimeLimit
	if limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	env, err := runtimex.ScriptEnv(p.config)
	if err != nil {
		return nil, fmt.Errorf("yaegi runtime: %w", err)
	}

	var stdout, stderr bytes.Buffer
	i := interp.New(interp.Options{
		Stdout:       teeWriter(&stdout, p.module.cfg.Stdout),
		Stderr:       teeWriter(&stderr, p.module.cfg.Stderr),
		Args:         []string{p.script.Name()},
		Env:          append(append([]string(nil), p.module.cfg.Env...), env...),
		Unrestricted: p.module.cfg.Unrestricted,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("yaegi runtime: load stdlib: %w", err)
	}

	start := time.Now()
	value, err := i.EvalWithContext(runCtx, p.source)
	result := &execution.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%s: time limit %s exceeded: %w", p.script.Name(), limit, context.DeadlineExceeded)
		}
		return result, p.scriptError(err, result.Stderr)
	}

	if value.IsValid() && value.CanInterface() {
		result.Value = value.Interface()
	}
	return result, nil
}

func (p *preparedScript) Close() error {
	return nil
}

func (p *preparedScript) scriptError(err error, stderr string) error {
	if execution.IsInterrupted(err) {
		return fmt.Errorf("%s: %w", p.script.Name(), err)
	}

	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return &execution.ScriptError{
			Script:  p.script.Name(),
			Line:    list[0].Pos.Line,
			Column:  list[0].Pos.Column,
			Message: list[0].Msg,
			Err:     err,
		}
	}

	if line, col, ok := parsePosition(err.Error()); ok {
		return &execution.ScriptError{
			Script:  p.script.Name(),
			Line:    line,
			Column:  col,
			Message: stripPosition(err.Error()),
			Err:     err,
		}
	}

	// Runtime panics carry no position; the interpreter reports it on stderr.
	// yaegi may name the enclosing statement rather than the faulting expression.
	if line, col, ok := panicPosition(stderr); ok {
		return &execution.ScriptError{
			Script:  p.script.Name(),
			Line:    line,
			Column:  col,
			Message: "panic: " + err.Error(),
			Err:     err,
		}
	}

	return fmt.Errorf("%s: %w", p.script.Name(), err)
}

var (
	positionPattern = regexp.MustCompile(`(\d+):(\d+): `)
	panicPattern    = regexp.MustCompile(`(\d+):(\d+): panic`)
)

func parsePosition(msg string) (line, col int, ok bool) {
	return matchPosition(positionPattern.FindStringSubmatch(msg))
}

func stripPosition(msg string) string {
	loc := positionPattern.FindStringIndex(msg)
	if loc == nil {
		return msg
	}
	return msg[loc[1]:]
}

func panicPosition(stderr string) (line, col int, ok bool) {
	matches := panicPattern.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	// The innermost frame is reported first.
	return matchPosition(matches[0])
}

func matchPosition(match []string) (line, col int, ok bool) {
	if len(match) != 3 {
		return 0, 0, false
	}
	line, err := strconv.Atoi(match[1])
	if err != nil || line <= 0 {
		return 0, 0, false
	}
	col, err = strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, false
	}
	return line, col, true
}

func teeWriter(buf *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}
	return io.MultiWriter(buf, extra)
}
