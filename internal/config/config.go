// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/validation"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Camera    CameraConfig
	Storage   StorageConfig
	Retry     RetryConfig
	Merge     MergeConfig
	Scheduler SchedulerConfig
	YouTube   YouTubeConfig
	Server    ServerConfig
	RabbitMQ  RabbitMQConfig
	Logging   LoggingConfig
}

// CameraConfig describes the camera web interface. Timeouts are in seconds.
type CameraConfig struct {
	BaseURL         string
	RequestTimeout  int
	DownloadTimeout int
	ChunkSize       int
}

// StorageConfig contains the local archive location.
type StorageConfig struct {
	DataDir string
}

// RetryConfig contains the retry policy shared by every stage.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// MergeConfig contains the external merge tool settings.
type MergeConfig struct {
	FFmpegPath string
	Timeout    time.Duration
}

// SchedulerConfig contains the continuous-mode schedule.
type SchedulerConfig struct {
	Enabled               bool
	ScrapeIntervalMinutes int
	DailyProcessTime      string
}

// YouTubeConfig contains publish credentials and upload metadata defaults.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	ClientSecrets     string
	TokenPath         string
	TitlePrefix       string
	Description       string
	Tags              string
	Category          string
	Privacy           string
	RateLimitCooldown time.Duration
}

// ServerConfig contains the optional admin HTTP server configuration.
type ServerConfig struct {
	Enabled         bool
	Port            int
	APIKeys         string
	ShutdownTimeout time.Duration
}

// RabbitMQConfig contains the optional publication notifier settings.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// envBindings maps config keys onto the environment variables the archiver
// has always been configured with.
var envBindings = map[string]string{
	"camera.baseurl":                  "RPICAM_BASE_URL",
	"camera.requesttimeout":           "RPICAM_REQUEST_TIMEOUT",
	"camera.downloadtimeout":          "RPICAM_DOWNLOAD_TIMEOUT",
	"camera.chunksize":                "RPICAM_DOWNLOAD_CHUNK_SIZE",
	"storage.datadir":                 "RPICAM_DATA_DIR",
	"retry.maxretries":                "RPICAM_MAX_RETRIES",
	"retry.basedelay":                 "RPICAM_RETRY_BASE_DELAY",
	"merge.ffmpegpath":                "RPICAM_FFMPEG_PATH",
	"merge.timeout":                   "RPICAM_MERGE_TIMEOUT",
	"scheduler.enabled":               "RPICAM_ENABLE_SCHEDULER",
	"scheduler.scrapeintervalminutes": "RPICAM_SCRAPE_INTERVAL_MINUTES",
	"scheduler.dailyprocesstime":      "RPICAM_DAILY_PROCESS_TIME",
	"youtube.clientsecrets":           "YOUTUBE_CLIENT_SECRETS",
	"youtube.tokenpath":               "YOUTUBE_TOKEN_PATH",
	"youtube.titleprefix":             "YOUTUBE_UPLOAD_TITLE_PREFIX",
	"youtube.description":             "YOUTUBE_UPLOAD_DESCRIPTION",
	"youtube.tags":                    "YOUTUBE_UPLOAD_TAGS",
	"youtube.category":                "YOUTUBE_UPLOAD_CATEGORY",
	"youtube.privacy":                 "YOUTUBE_PRIVACY_STATUS",
	"youtube.ratelimitcooldown":       "YOUTUBE_RATE_LIMIT_COOLDOWN",
	"server.enabled":                  "RPICAM_ADMIN_ENABLED",
	"server.port":                     "RPICAM_ADMIN_PORT",
	"server.apikeys":                  "RPICAM_ADMIN_API_KEYS",
	"server.shutdowntimeout":          "RPICAM_ADMIN_SHUTDOWN_TIMEOUT",
	"rabbitmq.url":                    "RPICAM_RABBITMQ_URL",
	"rabbitmq.exchange":               "RPICAM_RABBITMQ_EXCHANGE",
	"rabbitmq.routingkey":             "RPICAM_RABBITMQ_ROUTING_KEY",
	"logging.level":                   "RPICAM_LOG_LEVEL",
	"logging.file":                    "RPICAM_LOG_FILE",
}

// Load loads configuration from an optional config file and environment
// variables. It does not validate; callers decide how fatal a bad value is.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// AutomaticEnv does not reach nested keys, so every key is bound explicitly.
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Camera
	viper.SetDefault("camera.baseurl", "")
	viper.SetDefault("camera.requesttimeout", 30)
	viper.SetDefault("camera.downloadtimeout", 60)
	viper.SetDefault("camera.chunksize", 8192)

	// Storage
	viper.SetDefault("storage.datadir", "/data/videos")

	// Retry
	viper.SetDefault("retry.maxretries", 5)
	viper.SetDefault("retry.basedelay", 1*time.Second)

	// Merge
	viper.SetDefault("merge.ffmpegpath", "ffmpeg")
	viper.SetDefault("merge.timeout", 300*time.Second)

	// Scheduler
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.scrapeintervalminutes", 15)
	viper.SetDefault("scheduler.dailyprocesstime", "23:59")

	// YouTube
	viper.SetDefault("youtube.clientsecrets", "client_secrets.json")
	viper.SetDefault("youtube.tokenpath", "token.json")
	viper.SetDefault("youtube.titleprefix", "RPiCam")
	viper.SetDefault("youtube.description", "Uploaded by RPI-Cam-Web-Interface-Scraper")
	viper.SetDefault("youtube.tags", "RPiCam,AutoUpload")
	viper.SetDefault("youtube.category", "22")
	viper.SetDefault("youtube.privacy", "unlisted")
	viper.SetDefault("youtube.ratelimitcooldown", 1*time.Hour)

	// Admin server
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.apikeys", "")
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// RabbitMQ
	viper.SetDefault("rabbitmq.url", "")
	viper.SetDefault("rabbitmq.exchange", "rpicam.archive")
	viper.SetDefault("rabbitmq.routingkey", "day.published")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}

// Validate checks the values every mode depends on. A missing base URL is the
// classic startup failure.
func (c *Config) Validate() error {
	var problems []string

	if c.Camera.BaseURL == "" {
		problems = append(problems, "RPICAM_BASE_URL is required")
	} else if u, err := url.Parse(c.Camera.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("RPICAM_BASE_URL must be an http(s) URL, got %q", c.Camera.BaseURL))
	}
	if c.Camera.RequestTimeout <= 0 {
		problems = append(problems, "RPICAM_REQUEST_TIMEOUT must be positive")
	}
	if c.Camera.DownloadTimeout <= 0 {
		problems = append(problems, "RPICAM_DOWNLOAD_TIMEOUT must be positive")
	}
	if c.Camera.ChunkSize <= 0 {
		problems = append(problems, "RPICAM_DOWNLOAD_CHUNK_SIZE must be positive")
	}
	if c.Storage.DataDir == "" {
		problems = append(problems, "RPICAM_DATA_DIR must not be empty")
	}
	if c.Retry.MaxRetries < 1 {
		problems = append(problems, "RPICAM_MAX_RETRIES must be at least 1")
	}
	if c.Retry.BaseDelay < 0 {
		problems = append(problems, "RPICAM_RETRY_BASE_DELAY must not be negative")
	}
	if c.Merge.Timeout <= 0 {
		problems = append(problems, "RPICAM_MERGE_TIMEOUT must be positive")
	}
	if c.Scheduler.ScrapeIntervalMinutes < 1 {
		problems = append(problems, "RPICAM_SCRAPE_INTERVAL_MINUTES must be at least 1")
	}
	if _, _, err := validation.ParseTimeOfDay(c.Scheduler.DailyProcessTime); err != nil {
		problems = append(problems, "RPICAM_DAILY_PROCESS_TIME: "+err.Error())
	}
	if c.YouTube.RateLimitCooldown <= 0 {
		problems = append(problems, "YOUTUBE_RATE_LIMIT_COOLDOWN must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PreviewURL is the camera listing and deletion endpoint.
func (c *Config) PreviewURL() string {
	return strings.TrimRight(c.Camera.BaseURL, "/") + "/preview.php"
}

// RequestTimeout is the per-request timeout for listing and deletion calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Camera.RequestTimeout) * time.Second
}

// DownloadTimeout is how long a download may wait for headers or for the
// next chunk of the body.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Camera.DownloadTimeout) * time.Second
}

// ScrapeInterval is the minimum time between two scheduled scrapes.
func (c *Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scheduler.ScrapeIntervalMinutes) * time.Minute
}

// DailyTime returns the configured daily run time. Call Validate first.
func (c *Config) DailyTime() (hour, minute int) {
	hour, minute, _ = validation.ParseTimeOfDay(c.Scheduler.DailyProcessTime)
	return hour, minute
}

// Tags splits the comma separated upload tags, dropping blanks.
func (c *Config) Tags() []string {
	return splitList(c.YouTube.Tags)
}

// APIKeys splits the comma separated admin API keys, dropping blanks.
func (c *Config) APIKeys() []string {
	return splitList(c.Server.APIKeys)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
