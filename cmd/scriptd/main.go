package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scriptd/internal/domain/execution"
	"scriptd/internal/infra/console"
	"scriptd/internal/logging"
)

var (
	config appConfig
	logger *zap.Logger

	flagNotify   bool
	flagLanguage string
	flagName     string
	flagWorkdir  string
	flagTimes    int
	flagDelay    time.Duration
	flagInterval time.Duration
	flagTriggers []string
)

var rootCmd = &cobra.Command{
	Use:           "scriptd",
	Short:         "Run scripts asynchronously and report how they finished",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(config.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a .go or .py script file once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := execution.NewFileHandle(args[0])
		if err != nil {
			return err
		}
		return submitAndWait(cmd, func(a *app) (*execution.Execution, error) {
			if flagNotify {
				return a.dispatcher.RunWithNotification(cmd.Context(), handle)
			}
			return a.dispatcher.Run(cmd.Context(), handle)
		})
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval <source|->",
	Short: "Run in-memory source, read from the argument or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		if source == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			source = string(data)
		}

		handle := execution.NewInlineHandle(flagName, execution.Language(flagLanguage), source, flagWorkdir)
		return submitAndWait(cmd, func(a *app) (*execution.Execution, error) {
			if flagNotify {
				return a.dispatcher.RunWithNotification(cmd.Context(), handle)
			}
			return a.dispatcher.Run(cmd.Context(), handle)
		})
	},
}

var repeatCmd = &cobra.Command{
	Use:   "repeat <script>",
	Short: "Run a script file repeatedly; --times -1 repeats until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := execution.NewFileHandle(args[0])
		if err != nil {
			return err
		}
		return submitAndWait(cmd, func(a *app) (*execution.Execution, error) {
			return a.dispatcher.RunRepeated(cmd.Context(), handle, flagTimes, flagDelay, flagInterval)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run configured tasks when their triggers arrive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), config, flagTriggers, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	config = loadAppConfig()

	rootCmd.PersistentFlags().StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&config.ScriptDir, "script-dir", config.ScriptDir, "working directory for inline scripts without one")
	rootCmd.PersistentFlags().BoolVar(&config.DockerEnabled, "docker", config.DockerEnabled, "enable the Docker-backed python runtime")

	runCmd.Flags().BoolVar(&flagNotify, "notify", false, "publish a completion notification")
	evalCmd.Flags().BoolVar(&flagNotify, "notify", false, "publish a completion notification")
	evalCmd.Flags().StringVar(&flagLanguage, "lang", string(execution.LanguageGo), "source language (go, python)")
	evalCmd.Flags().StringVar(&flagName, "name", "", "display name of the script")
	evalCmd.Flags().StringVar(&flagWorkdir, "workdir", "", "working directory of the script")
	repeatCmd.Flags().IntVar(&flagTimes, "times", 1, "number of runs, -1 for no limit")
	repeatCmd.Flags().DurationVar(&flagDelay, "delay", 0, "wait before the first run")
	repeatCmd.Flags().DurationVar(&flagInterval, "interval", 0, "wait between runs")
	serveCmd.Flags().StringVar(&config.TasksFile, "tasks", config.TasksFile, "tasks file")
	serveCmd.Flags().StringSliceVar(&flagTriggers, "trigger", nil, "actions to trigger when Kafka is not configured")
	serveCmd.Flags().IntVar(&config.MaxTriggers, "max-triggers", config.MaxTriggers, "stop after this many triggers, 0 for no limit")
	serveCmd.Flags().IntVar(&config.MaxParallel, "max-parallel", config.MaxParallel, "maximum triggered executions in flight")

	rootCmd.AddCommand(runCmd, evalCmd, repeatCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(os.Stderr, "scriptd: %v\n", err)
		}
		os.Exit(1)
	}
}

// submitAndWait composes the app, submits through submit, prints the
// completion notifications and the script output, and waits for the
// execution to settle. Interrupting the command stops the execution.
func submitAndWait(cmd *cobra.Command, submit func(*app) (*execution.Execution, error)) error {
	a, err := newApp(config, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	notifications, unsubscribe := a.bus.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		console.Print(cmd.ErrOrStderr(), notifications)
	}()
	stopPrinting := sync.OnceFunc(func() {
		unsubscribe()
		<-printed
	})
	defer stopPrinting()

	exec, err := submit(a)
	if err != nil {
		var submitErr *execution.SubmissionError
		if errors.As(err, &submitErr) {
			// Already shown by the alerter.
			return errSilent
		}
		return err
	}
	if exec == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "scriptd: no working directory, nothing submitted")
		return nil
	}

	completion := a.await(cmd.Context(), exec)
	stopPrinting()
	if result, ok := completion.Result.(*execution.Result); ok {
		fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	}
	return completion.Err
}

// errSilent ends the process with a failure status without printing again.
var errSilent = errors.New("submission failed")
