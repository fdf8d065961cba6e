// Package config loads the gateway's YAML configuration file, applying
// "os.environ/VAR_NAME" overrides field-by-field via an UnmarshalYAML +
// tempConfig idiom (see utils.go for the shared resolveEnv*/parseField
// helpers reused by every section below).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Region is the default upstream region tag (spec.md §6.4 GENERAL_GCPP_HOST).
type Region string

const (
	RegionAsia Region = "Asia"
	RegionEU   Region = "EU"
	RegionUS   Region = "US"
)

func (r Region) IsValid() bool {
	switch r {
	case RegionAsia, RegionEU, RegionUS:
		return true
	}
	return false
}

// Config is the top-level configuration document.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	General    GeneralConfig    `yaml:"general"`
	NTP        NTPConfig        `yaml:"ntp"`
	State      StateConfig      `yaml:"state"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	RequestLog RequestLogConfig `yaml:"request_log,omitempty"`
}

// ServerConfig holds the inbound HTTP listener and admin-auth settings.
type ServerConfig struct {
	Port                int           `yaml:"port"`
	PrivateReverseProxy string        `yaml:"pri_reverse_proxy_host,omitempty"` // PRI_REVERSE_PROXY_HOST
	PublicReverseProxy  string        `yaml:"pub_reverse_proxy_host,omitempty"` // PUB_REVERSE_PROXY_HOST
	KeyPrefix           string        `yaml:"key_prefix"`                      // KEY_PREFIX, default "sk-"
	MasterKey           string        `yaml:"master_key"`
	MaxBodySizeMB       int           `yaml:"max_body_size_mb"`
	LoggingLevel        string        `yaml:"logging_level"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
}

// UnmarshalYAML implements env-override unmarshaling for ServerConfig.
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Port                string `yaml:"port"`
		PrivateReverseProxy string `yaml:"pri_reverse_proxy_host,omitempty"`
		PublicReverseProxy  string `yaml:"pub_reverse_proxy_host,omitempty"`
		KeyPrefix           string `yaml:"key_prefix"`
		MasterKey           string `yaml:"master_key"`
		MaxBodySizeMB       string `yaml:"max_body_size_mb"`
		LoggingLevel        string `yaml:"logging_level"`
		RequestTimeout      string `yaml:"request_timeout"`
		ReadTimeout         string `yaml:"read_timeout"`
		WriteTimeout        string `yaml:"write_timeout"`
		IdleTimeout         string `yaml:"idle_timeout"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if s.Port, err = parseField(temp.Port, 8080, parseIntValue, "server.port"); err != nil {
		return err
	}
	s.PrivateReverseProxy = resolveEnvString(temp.PrivateReverseProxy)
	s.PublicReverseProxy = resolveEnvString(temp.PublicReverseProxy)
	if s.KeyPrefix = resolveEnvString(temp.KeyPrefix); s.KeyPrefix == "" {
		s.KeyPrefix = "sk-"
	}
	s.MasterKey = resolveEnvString(temp.MasterKey)
	if s.MaxBodySizeMB, err = parseField(temp.MaxBodySizeMB, 10, parseIntValue, "server.max_body_size_mb"); err != nil {
		return err
	}
	s.LoggingLevel = resolveEnvString(temp.LoggingLevel)
	if s.RequestTimeout, err = parseField(temp.RequestTimeout, 30*time.Second, time.ParseDuration, "server.request_timeout"); err != nil {
		return err
	}
	if s.ReadTimeout, err = parseField(temp.ReadTimeout, 60*time.Second, time.ParseDuration, "server.read_timeout"); err != nil {
		return err
	}
	if s.WriteTimeout, err = parseField(temp.WriteTimeout, 10*time.Minute, time.ParseDuration, "server.write_timeout"); err != nil {
		return err
	}
	if s.IdleTimeout, err = parseField(temp.IdleTimeout, 20*time.Minute, time.ParseDuration, "server.idle_timeout"); err != nil {
		return err
	}
	return nil
}

// TransportConfig holds the outbound transport tuning knobs of spec.md §6.4.
type TransportConfig struct {
	TCPKeepAlive              bool          `yaml:"tcp_keepalive"`
	TCPKeepAliveInterval      time.Duration `yaml:"tcp_keepalive_interval"`
	TCPKeepAliveRetries       int           `yaml:"tcp_keepalive_retries"`
	HTTP2AdaptiveWindow       bool          `yaml:"http2_adaptive_window"`
	HTTP2KeepAliveInterval    time.Duration `yaml:"http2_keep_alive_interval"`
	HTTP2KeepAliveTimeout     time.Duration `yaml:"http2_keep_alive_timeout"`
	HTTP2KeepAliveWhileIdle   bool          `yaml:"http2_keep_alive_while_idle"`
	ServiceTimeout            time.Duration `yaml:"service_timeout"`
}

// Upper bounds for the transport tuning fields. TransportConfig.UnmarshalYAML
// clamps a larger configured value down to its bound; Validate does not
// check them.
const (
	maxTCPKeepAliveInterval   = 10 * time.Minute
	maxTCPKeepAliveRetries    = 20
	maxHTTP2KeepAliveInterval = 5 * time.Minute
	maxHTTP2KeepAliveTimeout  = time.Minute
	maxServiceTimeout         = 30 * time.Minute
)

func (t *TransportConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		TCPKeepAlive            string `yaml:"tcp_keepalive"`
		TCPKeepAliveInterval    string `yaml:"tcp_keepalive_interval"`
		TCPKeepAliveRetries     string `yaml:"tcp_keepalive_retries"`
		HTTP2AdaptiveWindow     string `yaml:"http2_adaptive_window"`
		HTTP2KeepAliveInterval  string `yaml:"http2_keep_alive_interval"`
		HTTP2KeepAliveTimeout   string `yaml:"http2_keep_alive_timeout"`
		HTTP2KeepAliveWhileIdle string `yaml:"http2_keep_alive_while_idle"`
		ServiceTimeout          string `yaml:"service_timeout"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if t.TCPKeepAlive, err = parseField(temp.TCPKeepAlive, true, parseBoolValue, "transport.tcp_keepalive"); err != nil {
		return err
	}
	if t.TCPKeepAliveInterval, err = parseField(temp.TCPKeepAliveInterval, 30*time.Second, time.ParseDuration, "transport.tcp_keepalive_interval"); err != nil {
		return err
	}
	if t.TCPKeepAliveRetries, err = parseField(temp.TCPKeepAliveRetries, 3, parseIntValue, "transport.tcp_keepalive_retries"); err != nil {
		return err
	}
	if t.HTTP2AdaptiveWindow, err = parseField(temp.HTTP2AdaptiveWindow, true, parseBoolValue, "transport.http2_adaptive_window"); err != nil {
		return err
	}
	if t.HTTP2KeepAliveInterval, err = parseField(temp.HTTP2KeepAliveInterval, 15*time.Second, time.ParseDuration, "transport.http2_keep_alive_interval"); err != nil {
		return err
	}
	if t.HTTP2KeepAliveTimeout, err = parseField(temp.HTTP2KeepAliveTimeout, 10*time.Second, time.ParseDuration, "transport.http2_keep_alive_timeout"); err != nil {
		return err
	}
	if t.HTTP2KeepAliveWhileIdle, err = parseField(temp.HTTP2KeepAliveWhileIdle, false, parseBoolValue, "transport.http2_keep_alive_while_idle"); err != nil {
		return err
	}
	if t.ServiceTimeout, err = parseField(temp.ServiceTimeout, 5*time.Minute, time.ParseDuration, "transport.service_timeout"); err != nil {
		return err
	}

	if t.TCPKeepAliveInterval > maxTCPKeepAliveInterval {
		t.TCPKeepAliveInterval = maxTCPKeepAliveInterval
	}
	if t.TCPKeepAliveRetries > maxTCPKeepAliveRetries {
		t.TCPKeepAliveRetries = maxTCPKeepAliveRetries
	}
	if t.HTTP2KeepAliveInterval > maxHTTP2KeepAliveInterval {
		t.HTTP2KeepAliveInterval = maxHTTP2KeepAliveInterval
	}
	if t.HTTP2KeepAliveTimeout > maxHTTP2KeepAliveTimeout {
		t.HTTP2KeepAliveTimeout = maxHTTP2KeepAliveTimeout
	}
	if t.ServiceTimeout > maxServiceTimeout {
		t.ServiceTimeout = maxServiceTimeout
	}
	return nil
}

// GeneralConfig holds the remaining general-purpose defaults of §6.4.
type GeneralConfig struct {
	RealUsage bool   `yaml:"real_usage"` // REAL_USAGE
	Timezone  string `yaml:"timezone"`   // GENERAL_TIMEZONE
	GCPPHost  Region `yaml:"gcpp_host"`  // GENERAL_GCPP_HOST
}

func (g *GeneralConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		RealUsage string `yaml:"real_usage"`
		Timezone  string `yaml:"timezone"`
		GCPPHost  string `yaml:"gcpp_host"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if g.RealUsage, err = parseField(temp.RealUsage, false, parseBoolValue, "general.real_usage"); err != nil {
		return err
	}
	if g.Timezone = resolveEnvString(temp.Timezone); g.Timezone == "" {
		g.Timezone = "UTC"
	}
	region := resolveEnvString(temp.GCPPHost)
	if region == "" {
		region = string(RegionUS)
	}
	g.GCPPHost = Region(region)
	return nil
}

// NTPConfig holds the clock-sync schedule of §6.4.
type NTPConfig struct {
	Servers            []string      `yaml:"servers"`
	SyncInterval       time.Duration `yaml:"sync_interval_secs"`
	SampleCount        int           `yaml:"sample_count"`
	SampleInterval     time.Duration `yaml:"sample_interval_ms"`
	Enabled            bool          `yaml:"enabled"`
}

func (n *NTPConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Servers        []string `yaml:"servers"`
		SyncInterval   string   `yaml:"sync_interval_secs"`
		SampleCount    string   `yaml:"sample_count"`
		SampleInterval string   `yaml:"sample_interval_ms"`
		Enabled        string   `yaml:"enabled"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	n.Servers = temp.Servers
	if len(n.Servers) == 0 {
		n.Servers = []string{"pool.ntp.org"}
	}

	var err error
	syncSecs, err := parseField(temp.SyncInterval, 3600, parseIntValue, "ntp.sync_interval_secs")
	if err != nil {
		return err
	}
	n.SyncInterval = time.Duration(syncSecs) * time.Second

	if n.SampleCount, err = parseField(temp.SampleCount, 4, parseIntValue, "ntp.sample_count"); err != nil {
		return err
	}

	sampleMillis, err := parseField(temp.SampleInterval, 200, parseIntValue, "ntp.sample_interval_ms")
	if err != nil {
		return err
	}
	n.SampleInterval = time.Duration(sampleMillis) * time.Millisecond

	if n.Enabled, err = parseField(temp.Enabled, true, parseBoolValue, "ntp.enabled"); err != nil {
		return err
	}
	return nil
}

// StateConfig holds the persisted-state file paths of spec.md §6.5.
type StateConfig struct {
	TokensFile  string `yaml:"tokens_file"`
	ProxiesFile string `yaml:"proxies_file"`
}

func (s *StateConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		TokensFile  string `yaml:"tokens_file"`
		ProxiesFile string `yaml:"proxies_file"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	if s.TokensFile = resolveEnvString(temp.TokensFile); s.TokensFile == "" {
		s.TokensFile = "tokens.yaml"
	}
	if s.ProxiesFile = resolveEnvString(temp.ProxiesFile); s.ProxiesFile == "" {
		s.ProxiesFile = "proxies.yaml"
	}
	return nil
}

// MonitoringConfig controls Prometheus metrics exposure and request tracing.
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	HealthCheckPath   string `yaml:"health_check_path"`
	TracingEnabled    bool   `yaml:"tracing_enabled"`
}

func (m *MonitoringConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		PrometheusEnabled string `yaml:"prometheus_enabled"`
		HealthCheckPath   string `yaml:"health_check_path"`
		TracingEnabled    string `yaml:"tracing_enabled"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if m.PrometheusEnabled, err = parseField(temp.PrometheusEnabled, false, parseBoolValue, "monitoring.prometheus_enabled"); err != nil {
		return err
	}
	if m.HealthCheckPath = resolveEnvString(temp.HealthCheckPath); m.HealthCheckPath == "" {
		m.HealthCheckPath = "/health"
	}
	if m.TracingEnabled, err = parseField(temp.TracingEnabled, false, parseBoolValue, "monitoring.tracing_enabled"); err != nil {
		return err
	}
	return nil
}

// RequestLogConfig holds the optional accounting-log sinks.
type RequestLogConfig struct {
	Postgres PostgresSinkConfig `yaml:"postgres,omitempty"`
	S3       S3SinkConfig       `yaml:"s3,omitempty"`
}

// PostgresSinkConfig configures the optional pgx-backed accounting sink.
type PostgresSinkConfig struct {
	Enabled     bool          `yaml:"enabled"`
	DatabaseURL string        `yaml:"database_url"` // os.environ/REQUESTLOG_DATABASE_URL
	MaxConns    int           `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (p *PostgresSinkConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Enabled        string `yaml:"enabled"`
		DatabaseURL    string `yaml:"database_url"`
		MaxConns       string `yaml:"max_conns"`
		ConnectTimeout string `yaml:"connect_timeout"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if p.Enabled, err = parseField(temp.Enabled, false, parseBoolValue, "request_log.postgres.enabled"); err != nil {
		return err
	}
	p.DatabaseURL = resolveEnvString(temp.DatabaseURL)
	if p.MaxConns, err = parseField(temp.MaxConns, 10, parseIntValue, "request_log.postgres.max_conns"); err != nil {
		return err
	}
	if p.ConnectTimeout, err = parseField(temp.ConnectTimeout, 5*time.Second, time.ParseDuration, "request_log.postgres.connect_timeout"); err != nil {
		return err
	}
	return nil
}

// S3SinkConfig configures the optional minio-backed accounting sink.
type S3SinkConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"` // os.environ/REQUESTLOG_S3_ACCESS_KEY
	SecretKey string `yaml:"secret_key"` // os.environ/REQUESTLOG_S3_SECRET_KEY
	UseSSL    bool   `yaml:"use_ssl"`
}

func (s *S3SinkConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Enabled   string `yaml:"enabled"`
		Endpoint  string `yaml:"endpoint"`
		Bucket    string `yaml:"bucket"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		UseSSL    string `yaml:"use_ssl"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if s.Enabled, err = parseField(temp.Enabled, false, parseBoolValue, "request_log.s3.enabled"); err != nil {
		return err
	}
	s.Endpoint = resolveEnvString(temp.Endpoint)
	s.Bucket = resolveEnvString(temp.Bucket)
	s.AccessKey = resolveEnvString(temp.AccessKey)
	s.SecretKey = resolveEnvString(temp.SecretKey)
	if s.UseSSL, err = parseField(temp.UseSSL, true, parseBoolValue, "request_log.s3.use_ssl"); err != nil {
		return err
	}
	return nil
}

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	// yaml.v3 only calls a section's UnmarshalYAML for keys present in the
	// file, so sections are first filled from an empty mapping to give
	// absent sections their defaults.
	empty := &yaml.Node{Kind: yaml.MappingNode}
	for _, section := range []yaml.Unmarshaler{&cfg.Server, &cfg.Transport, &cfg.General, &cfg.NTP, &cfg.State, &cfg.Monitoring} {
		if err := section.UnmarshalYAML(empty); err != nil {
			return nil, fmt.Errorf("failed to apply config defaults: %w", err)
		}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks field ranges and applies any remaining defaults that
// depend on more than one field.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("invalid max_body_size_mb: %d", c.Server.MaxBodySizeMB)
	}
	if c.Server.MasterKey == "" {
		return fmt.Errorf("master_key is required")
	}
	if !strings.HasPrefix(c.Server.KeyPrefix, "sk") {
		return fmt.Errorf("key_prefix %q looks unlikely to be an administrative bearer prefix", c.Server.KeyPrefix)
	}

	switch c.Server.LoggingLevel {
	case "", "info", "debug", "warn", "error":
		if c.Server.LoggingLevel == "" {
			c.Server.LoggingLevel = "info"
		}
	default:
		return fmt.Errorf("invalid logging_level: %s", c.Server.LoggingLevel)
	}

	if !c.General.GCPPHost.IsValid() {
		return fmt.Errorf("invalid general.gcpp_host: %s (must be Asia, EU, or US)", c.General.GCPPHost)
	}
	if _, err := time.LoadLocation(c.General.Timezone); err != nil {
		return fmt.Errorf("invalid general.timezone: %w", err)
	}

	if c.NTP.Enabled && len(c.NTP.Servers) == 0 {
		return fmt.Errorf("ntp.servers must not be empty when ntp.enabled is true")
	}

	if c.RequestLog.Postgres.Enabled && c.RequestLog.Postgres.DatabaseURL == "" {
		return fmt.Errorf("request_log.postgres.database_url is required when enabled")
	}
	if c.RequestLog.S3.Enabled && (c.RequestLog.S3.Endpoint == "" || c.RequestLog.S3.Bucket == "") {
		return fmt.Errorf("request_log.s3.endpoint and bucket are required when enabled")
	}

	return nil
}
