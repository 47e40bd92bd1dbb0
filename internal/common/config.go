package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Jobs        BulkJobConfig   `toml:"jobs"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// WebSocketConfig contains configuration for the progress-hub log/event stream
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	PingInterval    string   `toml:"ping_interval"`    // Keepalive ping interval (default: "30s")
}

// CrawlerConfig contains per-engine defaults for the crawl orchestration engines.
// The engines read UserAgent, BrowserHeadless and PremiumSearchTopN. The
// timeout, retry, body-size and browser pool/settle fields are loaded but no
// engine reads them: crawl timeouts and retries come from the CrawlStrategy.
type CrawlerConfig struct {
	UserAgent           string        `toml:"user_agent"`            // Default user agent string for the HTTP engine
	DefaultTimeout      time.Duration `toml:"default_timeout"`       // Fallback engine timeout when a strategy omits one
	ActivityTimeout     time.Duration `toml:"activity_timeout"`      // Inactivity ceiling for chunked reads
	MaxTotalTime        time.Duration `toml:"max_total_time"`        // Hard wall-clock ceiling per crawl (default 300s)
	MaxRetries          int           `toml:"max_retries"`           // Default max_retries when a strategy omits one
	MaxBodySize         int64         `toml:"max_body_size"`         // Maximum response body size in bytes
	BrowserHeadless     bool          `toml:"browser_headless"`      // Run chromedp in headless mode
	BrowserPoolSize     int           `toml:"browser_pool_size"`     // Number of pooled chromedp contexts
	BrowserWaitSettle   time.Duration `toml:"browser_wait_settle"`   // Idle-DOM settle window for the browser engine
	PremiumSearchTopN   int           `toml:"premium_search_top_n"`  // Number of grounding results requested from the premium engine
}

// BulkJobConfig contains configuration for the bulk job manager's worker pool
type BulkJobConfig struct {
	MaxConcurrent    int    `toml:"max_concurrent"`     // Shown in the startup banner and log; a bulk job's pool size comes from the request's max_concurrent (default 5, hard cap 16), not from this value
	ResultRetention  string `toml:"result_retention"`   // Not read: the finished-job sweep only logs jobs eligible for purge and removes none
	SweepSchedule    string `toml:"sweep_schedule"`     // Cron schedule for the finished-job sweep (default every 5 minutes)
	ResultFileDir    string `toml:"result_file_dir"`    // Directory for persisted bulk result files
}

// GeminiConfig contains configuration for the premium (Gemini + Google Search grounding) engine.
// The engine reads APIKey and RateLimit only: it always calls the gemini-2.0-flash
// model, takes its timeout from the crawl strategy (45s when unset) and sends no temperature.
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for grounded search (default: "gemini-2.5-flash")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "45s")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between requests (default: "4s")
	Temperature float32 `toml:"temperature"` // Generation temperature (default: 0.3)
}

// ClaudeConfig contains configuration for the AI-assisted extraction engine.
// The engine reads APIKey, Model, Timeout and RateLimit; it always requests up
// to 4096 tokens and sends no temperature, so MaxTokens and Temperature have no effect.
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for extraction (default: "claude-haiku-4-5")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "45s")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between requests (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in the TOML config file.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode - allows test URLs
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
			},
			PingInterval: "30s",
		},
		Crawler: CrawlerConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			DefaultTimeout:    30 * time.Second,
			ActivityTimeout:   10 * time.Second,
			MaxTotalTime:      300 * time.Second,
			MaxRetries:        3,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			BrowserHeadless:   true,
			BrowserPoolSize:   2,
			BrowserWaitSettle: 1 * time.Second,
			PremiumSearchTopN: 5,
		},
		Jobs: BulkJobConfig{
			MaxConcurrent:   5,
			ResultRetention: "1h",
			SweepSchedule:   "0 */5 * * * *",
			ResultFileDir:   "./data/results",
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-4-5",
			MaxTokens:   4096,
			Timeout:     "45s",
			RateLimit:   "1s",
			Temperature: 0.3,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.5-flash",
			Timeout:     "45s",
			RateLimit:   "4s",
			Temperature: 0.3,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files. Priority system: CLI flags > Environment variables > Last config file > ... > First config file > Defaults
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// PORT is honored literally (spec's external contract); CRAWLER_-prefixed
// variables are the service's own namespace for everything else.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CRAWLER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if port := os.Getenv("CRAWLER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CRAWLER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if level := os.Getenv("CRAWLER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CRAWLER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CRAWLER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if maxConcurrent := os.Getenv("CRAWLER_JOBS_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Jobs.MaxConcurrent = mc
		}
	}

	if userAgent := os.Getenv("CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if defaultTimeout := os.Getenv("CRAWLER_DEFAULT_TIMEOUT"); defaultTimeout != "" {
		if dt, err := time.ParseDuration(defaultTimeout); err == nil {
			config.Crawler.DefaultTimeout = dt
		}
	}
	if activityTimeout := os.Getenv("CRAWLER_ACTIVITY_TIMEOUT"); activityTimeout != "" {
		if at, err := time.ParseDuration(activityTimeout); err == nil {
			config.Crawler.ActivityTimeout = at
		}
	}
	if maxTotalTime := os.Getenv("CRAWLER_MAX_TOTAL_TIME"); maxTotalTime != "" {
		if mt, err := time.ParseDuration(maxTotalTime); err == nil {
			config.Crawler.MaxTotalTime = mt
		}
	}

	// Claude / Anthropic configuration (OPENAI_API_KEY is the spec's literal
	// external-contract name for the AI-assisted engine's key; ANTHROPIC_API_KEY
	// is honored too since anthropic-sdk-go is the concrete backing library).
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("CRAWLER_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("CRAWLER_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Gemini / Google configuration (FIRECRAWL_API_KEY is the spec's literal
	// external-contract name for the premium engine's key; GEMINI_API_KEY and
	// GOOGLE_API_KEY are honored too since genai is the concrete backing library).
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("FIRECRAWL_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("CRAWLER_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("CRAWLER_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name, preferring the literal
// environment variable over the value already loaded into config.
func ResolveAPIKey(name string, configFallback string) (string, error) {
	if envValue := os.Getenv(name); envValue != "" {
		return envValue, nil
	}
	if configFallback != "" {
		return configFallback, nil
	}
	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed.
// Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

// DeepCloneConfig creates a deep copy of the Config struct.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.WebSocket.ExcludePatterns) > 0 {
		clone.WebSocket.ExcludePatterns = make([]string, len(c.WebSocket.ExcludePatterns))
		copy(clone.WebSocket.ExcludePatterns, c.WebSocket.ExcludePatterns)
	}

	return &clone
}
