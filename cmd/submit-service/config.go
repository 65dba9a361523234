package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"ucode/internal/common/cache"
	"ucode/internal/common/db"
	"ucode/internal/common/mq"
	"ucode/internal/common/storage"
	"ucode/internal/judge/poller"
	"ucode/internal/submit/service"
	pkgrepo "ucode/pkg/repository"
	"ucode/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 40 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultWaitAttempts = 15
	defaultWaitInterval = 2 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// SubmitConfig holds submission settings.
type SubmitConfig struct {
	SourceBucket     string                  `yaml:"sourceBucket"`
	SourceKeyPrefix  string                  `yaml:"sourceKeyPrefix"`
	MaxCodeBytes     int                     `yaml:"maxCodeBytes"`
	PracticeMaxScore int                     `yaml:"practiceMaxScore"`
	IdempotencyTTL   time.Duration           `yaml:"idempotencyTTL"`
	RateLimit        service.RateLimitConfig `yaml:"rateLimit"`
	Timeouts         service.TimeoutConfig   `yaml:"timeouts"`
	Pagination       pkgrepo.PageBounds      `yaml:"pagination"`
	Wait             poller.Config           `yaml:"wait"`
	StatusConsumer   StatusConsumerConfig    `yaml:"statusConsumer"`
}

// StatusConsumerConfig configures the judge status subscription.
type StatusConsumerConfig struct {
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
}

func (c StatusConsumerConfig) toSubscribeOptions() mq.SubscribeOptions {
	return mq.SubscribeOptions{
		ConsumerGroup:   c.ConsumerGroup,
		Concurrency:     c.Concurrency,
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay,
		DeadLetterTopic: c.DeadLetter,
	}
}

// AppConfig holds submit-service configuration.
type AppConfig struct {
	Server           ServerConfig        `yaml:"server"`
	Logger           logger.Config       `yaml:"logger"`
	Database         db.MySQLConfig      `yaml:"database"`
	Redis            cache.RedisConfig   `yaml:"redis"`
	Kafka            mq.KafkaConfig      `yaml:"kafka"`
	Topics           service.TopicConfig `yaml:"topics"`
	MinIO            storage.MinIOConfig `yaml:"minio"`
	Submit           SubmitConfig        `yaml:"submit"`
	LanguageCacheTTL time.Duration       `yaml:"languageCacheTTL"`
	LanguageEmptyTTL time.Duration       `yaml:"languageEmptyTTL"`
}

// loadYAML reads path, expands ${VAR} references from the environment and
// decodes the result into out.
func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadDotEnv loads an optional .env file; a missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	if cfg.Topics.Graded == "" {
		cfg.Topics.Graded = "judge.graded"
	}
	if cfg.Topics.Practice == "" {
		cfg.Topics.Practice = "judge.practice"
	}
	if cfg.Topics.Run == "" {
		cfg.Topics.Run = "judge.run"
	}
	if cfg.Topics.Status == "" {
		cfg.Topics.Status = "judge.status"
	}

	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 256 * 1024
	}
	if cfg.Submit.IdempotencyTTL == 0 {
		cfg.Submit.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Submit.RateLimit.Window == 0 {
		cfg.Submit.RateLimit.Window = time.Minute
	}
	if cfg.Submit.RateLimit.UserMax == 0 {
		cfg.Submit.RateLimit.UserMax = 30
	}
	if cfg.Submit.RateLimit.IPMax == 0 {
		cfg.Submit.RateLimit.IPMax = 60
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}
	cfg.Submit.Pagination = cfg.Submit.Pagination.Normalize()
	if cfg.Submit.Wait.MaxAttempts == 0 {
		cfg.Submit.Wait.MaxAttempts = defaultWaitAttempts
	}
	if cfg.Submit.Wait.Interval == 0 {
		cfg.Submit.Wait.Interval = defaultWaitInterval
	}
	cfg.Submit.Wait = cfg.Submit.Wait.Normalize()
	if err := checkWaitBudget(cfg.Server, cfg.Submit); err != nil {
		return nil, err
	}

	if cfg.Submit.StatusConsumer.ConsumerGroup == "" {
		cfg.Submit.StatusConsumer.ConsumerGroup = "submit-service"
	}
	if cfg.Submit.StatusConsumer.RetryDelay == 0 {
		cfg.Submit.StatusConsumer.RetryDelay = time.Second
	}

	if cfg.Submit.SourceBucket == "" {
		cfg.Submit.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Submit.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}

	return &cfg, nil
}

// checkWaitBudget rejects a wait budget whose sleeps plus one slow read do not
// fit in the server write deadline.
func checkWaitBudget(server ServerConfig, submit SubmitConfig) error {
	if server.WriteTimeout <= 0 {
		return nil
	}
	worst := submit.Wait.Budget() + submit.Timeouts.DB
	if worst >= server.WriteTimeout {
		return fmt.Errorf("submit.wait budget %s (with db timeout) must be below server.writeTimeout %s",
			worst, server.WriteTimeout)
	}
	return nil
}
