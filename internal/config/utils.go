package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// resolveEnvString resolves environment variable if value is in format "os.environ/VAR_NAME"
func resolveEnvString(value string) string {
	const prefix = "os.environ/"
	if strings.HasPrefix(value, prefix) {
		envVar := strings.TrimPrefix(value, prefix)
		if envValue := os.Getenv(envVar); envValue != "" {
			return envValue
		}
		slog.Warn("environment variable not set, returning empty string",
			"env_var", envVar,
			"pattern", value,
		)
		return ""
	}
	return value
}

// parseFunc is a function type that parses a string value into the desired type
type parseFunc[T any] func(string) (T, error)

// parseField resolves env variable and parses value with proper error context
func parseField[T any](tempValue string, defaultValue T, parser parseFunc[T], fieldPath string) (T, error) {
	if tempValue == "" {
		return defaultValue, nil
	}

	resolved := resolveEnvString(tempValue)
	parsed, err := parser(resolved)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", fieldPath, err)
	}
	return parsed, nil
}

func parseIntValue(s string) (int, error) {
	return strconv.Atoi(s)
}

func parseBoolValue(s string) (bool, error) {
	return strconv.ParseBool(s)
}

// PrintConfig outputs the configuration in a structured, readable format to the logger
func PrintConfig(logger *slog.Logger, cfg *Config) {
	logger.Info("=== Configuration Loaded ===")

	logger.Info("server",
		"port", cfg.Server.Port,
		"key_prefix", cfg.Server.KeyPrefix,
		"master_key", "***REDACTED***",
		"max_body_size_mb", cfg.Server.MaxBodySizeMB,
		"logging_level", cfg.Server.LoggingLevel,
		"request_timeout", cfg.Server.RequestTimeout.String(),
		"read_timeout", cfg.Server.ReadTimeout.String(),
		"write_timeout", cfg.Server.WriteTimeout.String(),
		"idle_timeout", cfg.Server.IdleTimeout.String(),
	)

	logger.Info("transport",
		"tcp_keepalive", cfg.Transport.TCPKeepAlive,
		"tcp_keepalive_interval", cfg.Transport.TCPKeepAliveInterval.String(),
		"http2_adaptive_window", cfg.Transport.HTTP2AdaptiveWindow,
		"service_timeout", cfg.Transport.ServiceTimeout.String(),
	)

	logger.Info("general",
		"real_usage", cfg.General.RealUsage,
		"timezone", cfg.General.Timezone,
		"gcpp_host", cfg.General.GCPPHost,
	)

	logger.Info("ntp",
		"enabled", cfg.NTP.Enabled,
		"servers", cfg.NTP.Servers,
		"sync_interval", cfg.NTP.SyncInterval.String(),
		"sample_count", cfg.NTP.SampleCount,
	)

	logger.Info("state",
		"tokens_file", cfg.State.TokensFile,
		"proxies_file", cfg.State.ProxiesFile,
	)

	logger.Info("monitoring",
		"prometheus_enabled", cfg.Monitoring.PrometheusEnabled,
		"health_check_path", cfg.Monitoring.HealthCheckPath,
		"tracing_enabled", cfg.Monitoring.TracingEnabled,
	)

	if cfg.RequestLog.Postgres.Enabled {
		logger.Info("request_log.postgres (ENABLED)",
			"max_conns", cfg.RequestLog.Postgres.MaxConns,
			"connect_timeout", cfg.RequestLog.Postgres.ConnectTimeout.String(),
		)
	}
	if cfg.RequestLog.S3.Enabled {
		logger.Info("request_log.s3 (ENABLED)",
			"endpoint", cfg.RequestLog.S3.Endpoint,
			"bucket", cfg.RequestLog.S3.Bucket,
		)
	}

	logger.Info("=== Configuration Ready ===")
}
