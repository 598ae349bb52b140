// Package config centralizes runtime configuration: YAML file when present,
// environment overrides on top, sane defaults for every retry knob.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkwisp/mediadrop/internal/publish"
)

const (
	configPathEnv = "MEDIADROP_CONFIG"

	metaTokenEnv      = "META_TOKEN"
	igIDEnv           = "IG_ID"
	fbPageIDEnv       = "FB_PAGE_ID"
	threadsUserEnv    = "THREADS_USER_ID"
	threadsTokenEnv   = "THREADS_ACCESS_TOKEN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"

	s3EndpointEnv  = "MEDIADROP_S3_ENDPOINT"
	s3AccessKeyEnv = "MEDIADROP_S3_ACCESS_KEY"
	s3SecretKeyEnv = "MEDIADROP_S3_SECRET_KEY"
	s3BucketEnv    = "MEDIADROP_S3_BUCKET"
	s3PrefixEnv    = "MEDIADROP_S3_PREFIX"
	s3RegionEnv    = "MEDIADROP_S3_REGION"
)

// Duration wraps time.Duration so YAML values can be written as "15s".
type Duration time.Duration

// UnmarshalYAML parses duration strings like "30s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetryConfig parameterizes one retry loop.
type RetryConfig struct {
	MaxAttempts   int      `yaml:"maxAttempts"`
	Interval      Duration `yaml:"interval"`
	RateLimitWait Duration `yaml:"rateLimitWait"`
	Budget        Duration `yaml:"budget"`
}

// Policy converts to the publish package's retry policy.
func (r RetryConfig) Policy() publish.Policy {
	return publish.Policy{
		MaxAttempts:   r.MaxAttempts,
		Interval:      r.Interval.Std(),
		RateLimitWait: r.RateLimitWait.Std(),
		Budget:        r.Budget.Std(),
	}
}

// PollConfig parameterizes one media-readiness wait.
type PollConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	Interval    Duration `yaml:"interval"`
	Grace       Duration `yaml:"grace"`
}

// Policy converts to the publish package's poll policy.
func (p PollConfig) Policy() publish.PollPolicy {
	return publish.PollPolicy{
		MaxAttempts: p.MaxAttempts,
		Interval:    p.Interval.Std(),
		Grace:       p.Grace.Std(),
	}
}

// StorageConfig describes the S3-compatible media bucket.
type StorageConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	AccessKey string   `yaml:"accessKey"`
	SecretKey string   `yaml:"secretKey"`
	Bucket    string   `yaml:"bucket"`
	Prefix    string   `yaml:"prefix"`
	Region    string   `yaml:"region"`
	UseSSL    bool     `yaml:"useSSL"`
	LinkTTL   Duration `yaml:"linkTTL"`
}

// TelegramConfig wires the notification chat.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetaConfig identifies the Meta account shared by Instagram and Facebook.
type MetaConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	UserToken   string `yaml:"userToken"`
	PageID      string `yaml:"pageId"`
	InstagramID string `yaml:"instagramId"`
}

// InstagramConfig holds the Instagram publishing knobs.
type InstagramConfig struct {
	Publish       RetryConfig `yaml:"publish"`
	Verify        RetryConfig `yaml:"verify"`
	Readiness     PollConfig  `yaml:"readiness"`
	IndexingDelay Duration    `yaml:"indexingDelay"`
}

// FacebookConfig holds the Facebook page publishing knobs.
type FacebookConfig struct {
	Publish       RetryConfig `yaml:"publish"`
	Verify        RetryConfig `yaml:"verify"`
	IndexingDelay Duration    `yaml:"indexingDelay"`
}

// ThreadsConfig holds the Threads account and publishing knobs.
type ThreadsConfig struct {
	BaseURL       string      `yaml:"baseUrl"`
	UserID        string      `yaml:"userId"`
	AccessToken   string      `yaml:"accessToken"`
	Publish       RetryConfig `yaml:"publish"`
	Verify        RetryConfig `yaml:"verify"`
	Readiness     PollConfig  `yaml:"readiness"`
	IndexingDelay Duration    `yaml:"indexingDelay"`
}

// Config holds everything one run needs.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Meta      MetaConfig      `yaml:"meta"`
	Instagram InstagramConfig `yaml:"instagram"`
	Facebook  FacebookConfig  `yaml:"facebook"`
	Threads   ThreadsConfig   `yaml:"threads"`
}

// Load reads YAML configuration (explicit path, or MEDIADROP_CONFIG when
// empty) over the defaults and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Meta.UserToken, metaTokenEnv)
	setIfEnv(&c.Meta.InstagramID, igIDEnv)
	setIfEnv(&c.Meta.PageID, fbPageIDEnv)
	setIfEnv(&c.Threads.UserID, threadsUserEnv)
	setIfEnv(&c.Threads.AccessToken, threadsTokenEnv)
	setIfEnv(&c.Telegram.BotToken, telegramTokenEnv)
	setIfEnv(&c.Telegram.ChatID, telegramChatIDEnv)

	setIfEnv(&c.Storage.Endpoint, s3EndpointEnv)
	setIfEnv(&c.Storage.AccessKey, s3AccessKeyEnv)
	setIfEnv(&c.Storage.SecretKey, s3SecretKeyEnv)
	setIfEnv(&c.Storage.Bucket, s3BucketEnv)
	setIfEnv(&c.Storage.Prefix, s3PrefixEnv)
	setIfEnv(&c.Storage.Region, s3RegionEnv)
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Default returns the configuration with every knob at its default value.
func Default() Config {
	publishRetry := RetryConfig{
		MaxAttempts:   3,
		Interval:      Duration(5 * time.Second),
		RateLimitWait: Duration(30 * time.Second),
		Budget:        Duration(30 * time.Second),
	}
	verifyRetry := RetryConfig{
		MaxAttempts:   10,
		Interval:      Duration(5 * time.Second),
		RateLimitWait: Duration(30 * time.Second),
		Budget:        Duration(60 * time.Second),
	}

	return Config{
		Storage: StorageConfig{
			UseSSL:  true,
			LinkTTL: Duration(time.Hour),
		},
		Meta: MetaConfig{
			BaseURL: "https://graph.facebook.com/v18.0",
		},
		Instagram: InstagramConfig{
			Publish: publishRetry,
			Verify:  verifyRetry,
			Readiness: PollConfig{
				MaxAttempts: 10,
				Interval:    Duration(15 * time.Second),
				Grace:       Duration(15 * time.Second),
			},
			IndexingDelay: Duration(8 * time.Second),
		},
		Facebook: FacebookConfig{
			Publish:       publishRetry,
			Verify:        verifyRetry,
			IndexingDelay: Duration(4 * time.Second),
		},
		Threads: ThreadsConfig{
			BaseURL: "https://graph.threads.net/v1.0",
			Publish: RetryConfig{
				MaxAttempts:   5,
				Interval:      Duration(5 * time.Second),
				RateLimitWait: Duration(30 * time.Second),
				Budget:        Duration(30 * time.Second),
			},
			Verify: verifyRetry,
			Readiness: PollConfig{
				MaxAttempts: 60,
				Interval:    Duration(4 * time.Second),
				Grace:       Duration(3 * time.Second),
			},
			IndexingDelay: Duration(3 * time.Second),
		},
	}
}
