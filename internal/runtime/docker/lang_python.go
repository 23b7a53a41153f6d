package docker

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"scriptd/internal/domain/execution"
	runtimex "scriptd/internal/runtime"
)

type pythonPreparedScript struct {
	module *Module
	script execution.ScriptHandle
	source string
	config execution.Config
}

func (p *pythonPreparedScript) Run(ctx context.Context) (*execution.Result, error) {
	// The script sees the container side of the working directory mount.
	envConfig := p.config
	if envConfig.WorkingDirectory != "" {
		envConfig.WorkingDirectory = p.module.config.Workdir
	}
	env, err := runtimex.ScriptEnv(envConfig)
	if err != nil {
		return nil, fmt.Errorf("docker runtime: %w", err)
	}

	result, err := p.module.engine.runProgram(ctx, runSpec{
		Image:    p.module.config.Image,
		Workdir:  p.module.config.Workdir,
		HostDir:  p.config.WorkingDirectory,
		Command:  []string{"python", path.Join(scriptDir, scriptFilename)},
		Env:      env,
		FilesDir: scriptDir,
		Files: []fileSpec{
			{
				Name: scriptFilename,
				Mode: 0o644,
				Data: []byte(p.source),
			},
		},
		Limits: p.config.Limits,
	})
	if err != nil {
		return result, fmt.Errorf("%s: %w", p.script.Name(), err)
	}

	if result.ExitCode != 0 {
		return result, pythonError(p.script.Name(), result)
	}
	return result, nil
}

func (p *pythonPreparedScript) Close() error {
	return nil
}

var tracebackFramePattern = regexp.MustCompile(`File "` + regexp.QuoteMeta(path.Join(scriptDir, scriptFilename)) + `", line (\d+)`)

// pythonError turns a failed run into a ScriptError positioned at the
// innermost traceback frame that belongs to the script.
func pythonError(name string, result *execution.Result) error {
	message := lastLine(result.Stderr)
	if message == "" {
		message = fmt.Sprintf("exit status %d", result.ExitCode)
	}
	cause := fmt.Errorf("python exited with status %d", result.ExitCode)

	frames := tracebackFramePattern.FindAllStringSubmatch(result.Stderr, -1)
	if len(frames) == 0 {
		return fmt.Errorf("%s: %s: %w", name, message, cause)
	}

	line, err := strconv.Atoi(frames[len(frames)-1][1])
	if err != nil {
		return fmt.Errorf("%s: %s: %w", name, message, cause)
	}

	return &execution.ScriptError{
		Script:  name,
		Line:    line,
		Column:  execution.UnknownColumn,
		Message: message,
		Err:     cause,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
