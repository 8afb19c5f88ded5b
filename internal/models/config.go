package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrConfig marks missing or invalid startup settings. It is fatal at startup only.
var ErrConfig = errors.New("configuration error")

const (
	BackendGoogle = "google"
	BackendLocal  = "local"

	DefaultRange    = "X!A2:C"
	DefaultInterval = 24 * time.Hour
)

type Config struct {
	ServerAddr        string `yaml:"server_addr"`
	Range             string `yaml:"range"`
	QueueBackend      string `yaml:"queue_backend"`
	AssetBackend      string `yaml:"asset_backend"`
	GoogleCredentials string `yaml:"google_credentials"`

	Twitter   TwitterConfig   `yaml:"twitter"`
	Instagram InstagramConfig `yaml:"instagram"`
	Schedule  ScheduleConfig  `yaml:"schedule"`

	DatabaseURL   string      `yaml:"database_url"`
	RedisAddr     string      `yaml:"redis_addr"`
	ClaimTTL      string      `yaml:"claim_ttl"`
	Kafka         KafkaConfig `yaml:"kafka"`
	WatermarkText string      `yaml:"watermark_text"`
	LogLevel      string      `yaml:"log_level"`
	LogFormat     string      `yaml:"log_format"`
}

// QueueConfig holds the per-platform queue and asset locations. With the local
// backends SpreadsheetID is a workbook path and FolderID a directory.
type QueueConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	FolderID      string `yaml:"folder_id"`
}

type TwitterConfig struct {
	QueueConfig       `yaml:",inline"`
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
}

type InstagramConfig struct {
	QueueConfig `yaml:",inline"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type ScheduleConfig struct {
	Interval  string     `yaml:"interval"`
	Platforms []Platform `yaml:"platforms"`
	LockPath  string     `yaml:"lock_path"`
}

type KafkaConfig struct {
	Broker       string `yaml:"broker"`
	EventsTopic  string `yaml:"events_topic"`
	TriggerTopic string `yaml:"trigger_topic"`
	GroupID      string `yaml:"group_id"`
}

// LoadConfig reads the yaml file at path when it exists and then applies
// environment overrides. A missing file is not an error: the service is
// usually configured from the environment alone.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%s: %w: %v", op, ErrConfig, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("%s: %v", op, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.ServerAddr = ":" + port
	}
	setFromEnv(&c.Range, "SAMPLE_RANGE_NAME")
	setFromEnv(&c.QueueBackend, "QUEUE_BACKEND")
	setFromEnv(&c.AssetBackend, "ASSET_BACKEND")
	setFromEnv(&c.GoogleCredentials, "GOOGLE_APPLICATION_CREDENTIALS")

	setFromEnv(&c.Twitter.SpreadsheetID, "TWITTER_SPREADSHEET_ID")
	setFromEnv(&c.Instagram.SpreadsheetID, "INSTAGRAM_SPREADSHEET_ID")
	// DRIVE_FOLDER_ID is the legacy shared folder; per-platform values win.
	setFromEnv(&c.Twitter.FolderID, "DRIVE_FOLDER_ID")
	setFromEnv(&c.Instagram.FolderID, "DRIVE_FOLDER_ID")
	setFromEnv(&c.Twitter.FolderID, "TWITTER_DRIVE_FOLDER_ID")
	setFromEnv(&c.Instagram.FolderID, "INSTAGRAM_DRIVE_FOLDER_ID")

	setFromEnv(&c.Twitter.ConsumerKey, "CONSUMER_KEY")
	setFromEnv(&c.Twitter.ConsumerSecret, "CONSUMER_SECRET")
	setFromEnv(&c.Twitter.AccessToken, "ACCESS_TOKEN")
	setFromEnv(&c.Twitter.AccessTokenSecret, "ACCESS_TOKEN_SECRET")
	setFromEnv(&c.Instagram.Username, "INSTAGRAM_USERNAME")
	setFromEnv(&c.Instagram.Password, "INSTAGRAM_PASSWORD")

	setFromEnv(&c.Schedule.Interval, "SCHEDULE_INTERVAL")
	setFromEnv(&c.Schedule.LockPath, "SCHEDULE_LOCK_PATH")
	if v := os.Getenv("SCHEDULE_PLATFORMS"); v != "" {
		c.Schedule.Platforms = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Schedule.Platforms = append(c.Schedule.Platforms, Platform(p))
			}
		}
	}

	setFromEnv(&c.DatabaseURL, "DATABASE_URL")
	setFromEnv(&c.RedisAddr, "REDIS_ADDR")
	setFromEnv(&c.ClaimTTL, "CLAIM_TTL")
	setFromEnv(&c.Kafka.Broker, "KAFKA_BROKER")
	setFromEnv(&c.Kafka.EventsTopic, "KAFKA_EVENTS_TOPIC")
	setFromEnv(&c.Kafka.TriggerTopic, "KAFKA_TRIGGER_TOPIC")
	setFromEnv(&c.WatermarkText, "WATERMARK_TEXT")
	setFromEnv(&c.LogLevel, "LOG_LEVEL")
	setFromEnv(&c.LogFormat, "LOG_FORMAT")
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":5000"
	}
	if c.Range == "" {
		c.Range = DefaultRange
	}
	if c.QueueBackend == "" {
		c.QueueBackend = BackendGoogle
	}
	if c.AssetBackend == "" {
		c.AssetBackend = BackendGoogle
	}
	if len(c.Schedule.Platforms) == 0 {
		c.Schedule.Platforms = []Platform{PlatformTwitter}
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "autoposter"
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require(c.Range, "range")
	require(c.Twitter.SpreadsheetID, "twitter.spreadsheet_id")
	require(c.Twitter.FolderID, "twitter.folder_id")
	require(c.Instagram.SpreadsheetID, "instagram.spreadsheet_id")
	require(c.Instagram.FolderID, "instagram.folder_id")
	require(c.Twitter.ConsumerKey, "twitter.consumer_key")
	require(c.Twitter.ConsumerSecret, "twitter.consumer_secret")
	require(c.Twitter.AccessToken, "twitter.access_token")
	require(c.Twitter.AccessTokenSecret, "twitter.access_token_secret")
	require(c.Instagram.Username, "instagram.username")
	require(c.Instagram.Password, "instagram.password")
	if c.QueueBackend == BackendGoogle || c.AssetBackend == BackendGoogle {
		require(c.GoogleCredentials, "google_credentials")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfig, strings.Join(missing, ", "))
	}

	for _, backend := range []string{c.QueueBackend, c.AssetBackend} {
		if backend != BackendGoogle && backend != BackendLocal {
			return fmt.Errorf("%w: unknown backend %q", ErrConfig, backend)
		}
	}
	for _, p := range c.Schedule.Platforms {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown scheduled platform %q", ErrConfig, p)
		}
	}
	if _, err := c.ScheduleInterval(); err != nil {
		return err
	}
	if _, err := c.ClaimDuration(); err != nil {
		return err
	}
	return nil
}

// ScheduleInterval parses schedule.interval, defaulting to 24h.
func (c *Config) ScheduleInterval() (time.Duration, error) {
	return parseDuration(c.Schedule.Interval, DefaultInterval, "schedule.interval")
}

// ClaimDuration parses claim_ttl, defaulting to 10m.
func (c *Config) ClaimDuration() (time.Duration, error) {
	return parseDuration(c.ClaimTTL, 10*time.Minute, "claim_ttl")
}

func parseDuration(value string, fallback time.Duration, name string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrConfig, name, value)
	}
	return d, nil
}

// Queue returns the queue locations for a platform.
func (c *Config) Queue(p Platform) (QueueConfig, bool) {
	switch p {
	case PlatformTwitter:
		return c.Twitter.QueueConfig, true
	case PlatformInstagram:
		return c.Instagram.QueueConfig, true
	}
	return QueueConfig{}, false
}

// GoogleCredentialsJSON accepts either inline service-account JSON or a path to it.
func (c *Config) GoogleCredentialsJSON() ([]byte, error) {
	const op = "models.GoogleCredentialsJSON"

	raw := strings.TrimSpace(c.GoogleCredentials)
	if raw == "" {
		return nil, fmt.Errorf("%s: %w: google credentials not set", op, ErrConfig)
	}
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	data, err := os.ReadFile(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrConfig, err)
	}
	return data, nil
}
