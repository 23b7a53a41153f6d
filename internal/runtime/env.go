package runtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"scriptd/internal/domain/execution"
)

// WorkdirEnv names the variable carrying the execution working directory.
const WorkdirEnv = "SCRIPT_WORKDIR"

// ArgumentEnvName is the environment variable carrying the argument key.
func ArgumentEnvName(key string) string {
	return "SCRIPT_ARG_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(key))
}

// ScriptEnv renders the working directory and JSON-encoded arguments of cfg
// as environment entries, sorted by argument key.
func ScriptEnv(cfg execution.Config) ([]string, error) {
	env := make([]string, 0, len(cfg.Arguments)+1)
	if cfg.WorkingDirectory != "" {
		env = append(env, WorkdirEnv+"="+cfg.WorkingDirectory)
	}

	keys := make([]string, 0, len(cfg.Arguments))
	for key := range cfg.Arguments {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		encoded, err := json.Marshal(cfg.Arguments[key])
		if err != nil {
			return nil, fmt.Errorf("encode argument %q: %w", key, err)
		}
		env = append(env, ArgumentEnvName(key)+"="+string(encoded))
	}
	return env, nil
}
