package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"scriptd/internal/domain/execution"
	"scriptd/internal/runtime/docker"
)

const (
	defaultTriggersTopic      = "script-triggers"
	defaultNotificationsTopic = "script-notifications"
	defaultKafkaGroupID       = "scriptd"
	defaultTasksFile          = "tasks.yaml"
	defaultLogLevel           = "info"
	pythonDockerImage         = "python:3.12-alpine"
	containerWorkdir          = "/workspace"
)

type appConfig struct {
	KafkaBrokers       []string
	TriggersTopic      string
	NotificationsTopic string
	GroupID            string
	MaxTriggers        int
	MaxParallel        int
	TasksFile          string
	ScriptDir          string
	LogLevel           string
	Unrestricted       bool
	DockerEnabled      bool
	Docker             docker.Config
}

func loadAppConfig() appConfig {
	return appConfig{
		KafkaBrokers:       parseBrokerList(os.Getenv("KAFKA_BROKERS")),
		TriggersTopic:      envOrDefault("KAFKA_TOPIC", defaultTriggersTopic),
		NotificationsTopic: envOrDefault("KAFKA_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
		GroupID:            envOrDefault("KAFKA_GROUP_ID", defaultKafkaGroupID),
		MaxTriggers:        parseMaxTriggers(os.Getenv("TRIGGER_EXPECTED")),
		MaxParallel:        parseMaxParallel(os.Getenv("RUNNER_MAX_PARALLEL")),
		TasksFile:          envOrDefault("SCRIPTD_TASKS", defaultTasksFile),
		ScriptDir:          os.Getenv("SCRIPTD_SCRIPT_DIR"),
		LogLevel:           envOrDefault("SCRIPTD_LOG_LEVEL", defaultLogLevel),
		Unrestricted:       parseBool(os.Getenv("SCRIPTD_UNRESTRICTED")),
		DockerEnabled:      parseBool(os.Getenv("SCRIPTD_DOCKER")),
		Docker:             dockerConfigFromEnv(),
	}
}

func (c appConfig) kafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func parseMaxTriggers(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}

func parseMaxParallel(raw string) int {
	if raw == "" {
		return 1
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 1
	}
	return value
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(raw)
	return err == nil && value
}

func dockerConfigFromEnv() docker.Config {
	return docker.Config{
		Image:   envOrDefault("PYTHON_IMAGE", pythonDockerImage),
		Workdir: envOrDefault("PYTHON_WORKDIR", containerWorkdir),
		DefaultLimits: execution.RunLimits{
			TimeLimit:        parseDuration(os.Getenv("RUNNER_TIME_LIMIT"), 0),
			MemoryLimitBytes: parseBytes(os.Getenv("RUNNER_MEMORY_LIMIT")),
		},
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func parseBytes(raw string) int64 {
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
