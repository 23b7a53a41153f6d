package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scriptd/internal/domain/execution"
)

func TestScriptEnv(t *testing.T) {
	t.Parallel()

	env, err := ScriptEnv(execution.Config{
		WorkingDirectory: "/srv/scripts",
		Arguments: map[string]any{
			"trigger":   map[string]any{"action": "backup"},
			"retry-max": 3,
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"SCRIPT_WORKDIR=/srv/scripts",
		"SCRIPT_ARG_RETRY_MAX=3",
		`SCRIPT_ARG_TRIGGER={"action":"backup"}`,
	}, env)
}

func TestScriptEnvRejectsUnencodableArguments(t *testing.T) {
	t.Parallel()

	_, err := ScriptEnv(execution.Config{Arguments: map[string]any{"fn": func() {}}})
	require.ErrorContains(t, err, `encode argument "fn"`)
}
