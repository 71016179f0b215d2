package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		// Set default values
		setDefaults()

		// Set up environment variable reading for overrides
		viper.SetEnvPrefix("PODSCRIBE")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		// The pipeline keys are additionally documented without the prefix.
		bindPipelineEnv()

		// Load config from fixed location (cleaned for safety)
		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		// Try to read the config file
		if err := viper.ReadInConfig(); err != nil {
			// If the config file doesn't exist, just use defaults and env vars
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		// Validate the configuration
		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// bindPipelineEnv binds the documented PIPELINE_* variables directly, so
// operators can use them without the PODSCRIBE_ prefix.
func bindPipelineEnv() {
	keys := []string{
		"pipeline.sync_interval_seconds",
		"pipeline.download_buffer_size",
		"pipeline.download_buffer_threshold",
		"pipeline.download_batch_size",
		"pipeline.download_workers",
		"pipeline.post_processing_workers",
		"pipeline.idle_wait_seconds",
		"pipeline.max_retries",
	}
	for _, key := range keys {
		envName := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(key, envName)
	}
}

// pipelineBounds lists each pipeline key with its lower bound.
var pipelineBounds = []struct {
	key string
	min int
}{
	{"pipeline.sync_interval_seconds", 60},
	{"pipeline.download_buffer_size", 1},
	{"pipeline.download_buffer_threshold", 1},
	{"pipeline.download_batch_size", 1},
	{"pipeline.download_workers", 1},
	{"pipeline.post_processing_workers", 0},
	{"pipeline.idle_wait_seconds", 1},
	{"pipeline.max_retries", 1},
}

// validate validates the configuration using Viper values. Bad values fail
// fast at startup rather than surfacing mid-pipeline.
func validate() error {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	for _, bound := range pipelineBounds {
		if v := viper.GetInt(bound.key); v < bound.min {
			return fmt.Errorf("%s must be >= %d, got %d", bound.key, bound.min, v)
		}
	}

	threshold := viper.GetInt("pipeline.download_buffer_threshold")
	bufferSize := viper.GetInt("pipeline.download_buffer_size")
	if threshold >= bufferSize {
		return fmt.Errorf("pipeline.download_buffer_threshold (%d) must be less than pipeline.download_buffer_size (%d)",
			threshold, bufferSize)
	}

	if hour := viper.GetInt("digest.default_hour"); hour < 0 || hour > 23 {
		return fmt.Errorf("digest.default_hour must be in [0,23], got %d", hour)
	}

	return nil
}

// Validate validates a Config struct (for testing)
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Pipeline.DownloadBufferThreshold >= c.Pipeline.DownloadBufferSize {
		return fmt.Errorf("download buffer threshold (%d) must be less than buffer size (%d)",
			c.Pipeline.DownloadBufferThreshold, c.Pipeline.DownloadBufferSize)
	}
	if c.Pipeline.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1")
	}
	if c.Digest.DefaultHour < 0 || c.Digest.DefaultHour > 23 {
		return fmt.Errorf("digest default hour must be in [0,23]")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Database defaults
	viper.SetDefault("database.path", "./data/podscribe.db")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.connection_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.verbose", false)

	// Storage defaults
	viper.SetDefault("storage.audio_dir", "./data/audio")
	viper.SetDefault("storage.web_base_url", "")

	// Pipeline defaults
	viper.SetDefault("pipeline.sync_interval_seconds", 900)
	viper.SetDefault("pipeline.download_buffer_size", 10)
	viper.SetDefault("pipeline.download_buffer_threshold", 5)
	viper.SetDefault("pipeline.download_batch_size", 10)
	viper.SetDefault("pipeline.download_workers", 5)
	viper.SetDefault("pipeline.post_processing_workers", 4)
	viper.SetDefault("pipeline.idle_wait_seconds", 10)
	viper.SetDefault("pipeline.max_retries", 3)

	// Download defaults
	viper.SetDefault("download.timeout", 10*time.Minute)
	viper.SetDefault("download.max_file_size", int64(500*1024*1024))
	viper.SetDefault("download.user_agent", "podscribe/1.0 (+https://github.com/podscribe/podscribe)")
	viper.SetDefault("download.retry_attempts", 3)
	viper.SetDefault("download.retry_backoff", time.Second)

	// Whisper defaults
	viper.SetDefault("whisper.base_url", "http://localhost:9000")
	viper.SetDefault("whisper.model", "large-v3")
	viper.SetDefault("whisper.language", "en")
	viper.SetDefault("whisper.timeout", 30*time.Minute)

	// YouTube defaults
	viper.SetDefault("youtube.caption_language", "en")
	viper.SetDefault("youtube.max_videos", 50)

	// GenAI defaults
	viper.SetDefault("genai.model", "gemini-2.5-flash")
	viper.SetDefault("genai.store_display_name", "podscribe-transcripts")
	viper.SetDefault("genai.upload_poll_timeout", 5*time.Minute)
	viper.SetDefault("genai.requests_per_window", 9)
	viper.SetDefault("genai.rate_window", 60*time.Second)
	viper.SetDefault("genai.max_retries", 5)
	viper.SetDefault("genai.max_backoff", 32*time.Second)

	// Digest defaults
	viper.SetDefault("digest.enabled", false)
	viper.SetDefault("digest.from_address", "")
	viper.SetDefault("digest.default_hour", 8)
	viper.SetDefault("digest.default_timezone", "UTC")
	viper.SetDefault("digest.max_episodes", 20)
	viper.SetDefault("digest.smtp_host", "")
	viper.SetDefault("digest.smtp_port", 587)
	viper.SetDefault("digest.smtp_username", "")
	viper.SetDefault("digest.smtp_password", "")
}
