package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Download Download `mapstructure:"download"`
	Whisper  Whisper  `mapstructure:"whisper"`
	YouTube  YouTube  `mapstructure:"youtube"`
	GenAI    GenAI    `mapstructure:"genai"`
	Digest   Digest   `mapstructure:"digest"`
}

// Database contains sqlite settings
type Database struct {
	Path                  string        `mapstructure:"path"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
	Verbose               bool          `mapstructure:"verbose"`
}

// Storage contains on-disk layout settings
type Storage struct {
	AudioDir   string `mapstructure:"audio_dir"`
	WebBaseURL string `mapstructure:"web_base_url"`
}

// Pipeline contains orchestrator settings. The integer keys map 1:1 to the
// documented PIPELINE_* environment variables.
type Pipeline struct {
	SyncIntervalSeconds     int `mapstructure:"sync_interval_seconds"`
	DownloadBufferSize      int `mapstructure:"download_buffer_size"`
	DownloadBufferThreshold int `mapstructure:"download_buffer_threshold"`
	DownloadBatchSize       int `mapstructure:"download_batch_size"`
	DownloadWorkers         int `mapstructure:"download_workers"`
	PostProcessingWorkers   int `mapstructure:"post_processing_workers"`
	IdleWaitSeconds         int `mapstructure:"idle_wait_seconds"`
	MaxRetries              int `mapstructure:"max_retries"`
}

// Download contains HTTP audio fetch settings
type Download struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxFileSize   int64         `mapstructure:"max_file_size"`
	UserAgent     string        `mapstructure:"user_agent"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// Whisper contains transcription server settings
type Whisper struct {
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// YouTube contains YouTube Data API settings
type YouTube struct {
	APIKey          string `mapstructure:"api_key"`
	CaptionLanguage string `mapstructure:"caption_language"`
	MaxVideos       int    `mapstructure:"max_videos"`
}

// GenAI contains grounded-generation provider settings
type GenAI struct {
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	StoreDisplayName   string        `mapstructure:"store_display_name"`
	UploadPollTimeout  time.Duration `mapstructure:"upload_poll_timeout"`
	RequestsPerWindow  int           `mapstructure:"requests_per_window"`
	RateWindow         time.Duration `mapstructure:"rate_window"`
	MaxRetries         int           `mapstructure:"max_retries"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`
}

// Digest contains email digest settings. SMTP fields empty means no mail
// transport; digest runs are skipped.
type Digest struct {
	Enabled         bool   `mapstructure:"enabled"`
	FromAddress     string `mapstructure:"from_address"`
	DefaultHour     int    `mapstructure:"default_hour"`
	DefaultTimezone string `mapstructure:"default_timezone"`
	MaxEpisodes     int    `mapstructure:"max_episodes"`
	SMTPHost        string `mapstructure:"smtp_host"`
	SMTPPort        int    `mapstructure:"smtp_port"`
	SMTPUsername    string `mapstructure:"smtp_username"`
	SMTPPassword    string `mapstructure:"smtp_password"`
}
