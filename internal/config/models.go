package config

import (
	"strconv"
	"time"
)

// Config holds the full application configuration
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	FHIR      FHIRConfig      `mapstructure:"fhir"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP front end configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	CORSOrigin     string        `mapstructure:"cors_origin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider         string        `mapstructure:"provider"` // groq, openai
	Model            string        `mapstructure:"model"`
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"` // Optional, for OpenAI-compatible APIs
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`       // tool selection round
	FinalTemperature float64       `mapstructure:"final_temperature"` // answer round
	Retry            RetryConfig   `mapstructure:"retry"`
}

// RetryConfig holds HTTP retry configuration
type RetryConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`         // Default: 1 (no retry)
	Multiplier        int `mapstructure:"multiplier"`           // Default: 1
	MaxWaitPerAttempt int `mapstructure:"max_wait_per_attempt"` // Default: 10 seconds
	MaxTotalWait      int `mapstructure:"max_total_wait"`       // Default: 30 seconds
}

// FHIRConfig holds record server configuration
type FHIRConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AuthToken        string        `mapstructure:"auth_token"`
	Timeout          time.Duration `mapstructure:"timeout"`
	IdentifierSystem string        `mapstructure:"identifier_system"` // prefix for mrn/nationalid/iqama systems
}

// WorkerConfig holds tool worker configuration
type WorkerConfig struct {
	Mode           string        `mapstructure:"mode"`    // process, pooled, inprocess
	Command        string        `mapstructure:"command"` // empty means this binary's worker subcommand
	Args           []string      `mapstructure:"args"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	PoolSize       int           `mapstructure:"pool_size"`
}

// ChatConfig holds conversation orchestration settings
type ChatConfig struct {
	MaxToolResultTokens int    `mapstructure:"max_tool_result_tokens"`
	PromptsDir          string `mapstructure:"prompts_dir"` // optional override directory
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	LogDir       string `mapstructure:"log_dir"`
	FileLevel    string `mapstructure:"file_level"`    // debug, info, warn, error
	ConsoleLevel string `mapstructure:"console_level"` // debug, info, warn, error
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

const (
	WorkerModeProcess   = "process"
	WorkerModePooled    = "pooled"
	WorkerModeInProcess = "inprocess"
)

// Addr returns the listen address for the HTTP server
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetMaxConcurrency returns the tool concurrency limit with a default
func (c *WorkerConfig) GetMaxConcurrency() int {
	if c.MaxConcurrency <= 0 {
		return 4
	}
	return c.MaxConcurrency
}

// GetPoolSize returns the pooled worker count, bounded by the concurrency limit
func (c *WorkerConfig) GetPoolSize() int {
	if c.PoolSize <= 0 {
		return c.GetMaxConcurrency()
	}
	return c.PoolSize
}
