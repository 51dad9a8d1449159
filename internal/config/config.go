package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// QueuePair holds the critical / non-critical queue names for one channel.
type QueuePair struct {
	Critical    string
	NonCritical string
}

type Config struct {
	AppEnv string

	HTTPAddr string

	DatabaseURL string
	RedisURL    string

	// RabbitMQ
	RabbitURL    string
	IngressTopic string
	IngressQueue string
	DLQQueue     string
	SMSQueues    QueuePair
	EmailQueues  QueuePair
	PushQueues   QueuePair

	// Delivery worker
	MaxRetries  int
	BackoffBase time.Duration

	// Dispatcher
	BatchSize   int
	IngressWait time.Duration
	ChannelWait time.Duration
	IdleSleep   time.Duration

	// Fanout publisher
	PublishChunk    int
	PublishWorkers  int
	PublishAttempts int

	// Transports
	SMSTimeout   time.Duration
	EmailTimeout time.Duration
	PushTimeout  time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioBaseURL    string

	SendGridAPIKey string
	SendGridURL    string
	EmailFrom      string

	APNSBaseURL   string
	APNSAuthToken string
	APNSTopic     string

	// Public base URL this process advertises for socket relay sessions.
	RelayBaseURL string

	// Publish rate limiting
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	LogLevel  string
	LogFormat string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8084")

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")

	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.IngressTopic = getEnv("INGRESS_TOPIC", "event")
	cfg.IngressQueue = getEnv("INGRESS_QUEUE", "event_queue")
	cfg.DLQQueue = getEnv("DLQ_QUEUE", "dlq")
	cfg.SMSQueues = QueuePair{
		Critical:    getEnv("SMS_QUEUE_CRITICAL", "sms_queue_critical"),
		NonCritical: getEnv("SMS_QUEUE_NON_CRITICAL", "sms_queue_non_critical"),
	}
	cfg.EmailQueues = QueuePair{
		Critical:    getEnv("EMAIL_QUEUE_CRITICAL", "email_queue_critical"),
		NonCritical: getEnv("EMAIL_QUEUE_NON_CRITICAL", "email_queue_non_critical"),
	}
	cfg.PushQueues = QueuePair{
		Critical:    getEnv("PUSH_QUEUE_CRITICAL", "push_notification_queue_critical"),
		NonCritical: getEnv("PUSH_QUEUE_NON_CRITICAL", "push_notification_queue_non_critical"),
	}

	cfg.MaxRetries = getIntEnv("MAX_RETRIES", 5)
	cfg.BackoffBase = getDuration("BACKOFF_BASE", 2*time.Second)

	cfg.BatchSize = getIntEnv("BATCH_SIZE", 10)
	cfg.IngressWait = getDuration("INGRESS_WAIT", 20*time.Second)
	cfg.ChannelWait = getDuration("CHANNEL_WAIT", 5*time.Second)
	cfg.IdleSleep = getDuration("IDLE_SLEEP", 1*time.Second)

	cfg.PublishChunk = getIntEnv("PUBLISH_CHUNK", 10)
	cfg.PublishWorkers = getIntEnv("PUBLISH_WORKERS", 4)
	cfg.PublishAttempts = getIntEnv("PUBLISH_ATTEMPTS", 3)

	cfg.SMSTimeout = getDuration("SMS_TIMEOUT", 5*time.Second)
	cfg.EmailTimeout = getDuration("EMAIL_TIMEOUT", 5*time.Second)
	cfg.PushTimeout = getDuration("PUSH_TIMEOUT", 10*time.Second)

	cfg.TwilioAccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.TwilioAuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.TwilioFromNumber = getEnv("TWILIO_FROM_NUMBER", "")
	cfg.TwilioBaseURL = getEnv("TWILIO_BASE_URL", "https://api.twilio.com")

	cfg.SendGridAPIKey = getEnv("SENDGRID_API_KEY", "")
	cfg.SendGridURL = getEnv("SENDGRID_URL", "https://api.sendgrid.com/v3/mail/send")
	cfg.EmailFrom = getEnv("EMAIL_FROM", "notifications@example.com")

	cfg.APNSBaseURL = getEnv("APNS_BASE_URL", "https://api.push.apple.com")
	cfg.APNSAuthToken = getEnv("APNS_AUTH_TOKEN", "")
	cfg.APNSTopic = getEnv("APNS_TOPIC", "")

	cfg.RelayBaseURL = getEnv("RELAY_BASE_URL", "ws://localhost:8084")

	cfg.RLEnabled = getEnv("RL_ENABLED", "true") == "true"
	cfg.RLLimit = getIntEnv("RL_LIMIT", 100)
	cfg.RLWindow = getDuration("RL_WINDOW", 1*time.Minute)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	cfg.HTTPReadTimeout = getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTPWriteTimeout = getDuration("HTTP_WRITE_TIMEOUT", 20*time.Second)
	cfg.HTTPIdleTimeout = getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)

	// validation
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing DATABASE_URL")
	}
	if cfg.AppEnv != "dev" && cfg.RabbitURL == "" {
		return nil, fmt.Errorf("missing RABBIT_URL (required when APP_ENV != dev)")
	}
	if cfg.MaxRetries <= 0 {
		return nil, fmt.Errorf("MAX_RETRIES must be positive")
	}

	return cfg, nil
}

// ChannelQueues returns the queue pair for a channel name (sms/email/push).
func (c *Config) ChannelQueues(channel string) (QueuePair, error) {
	switch channel {
	case "sms":
		return c.SMSQueues, nil
	case "email":
		return c.EmailQueues, nil
	case "push":
		return c.PushQueues, nil
	}
	return QueuePair{}, fmt.Errorf("unknown channel %q", channel)
}

// AllQueues lists every queue the service owns, for topology declaration.
func (c *Config) AllQueues() []string {
	return []string{
		c.IngressQueue,
		c.SMSQueues.Critical, c.SMSQueues.NonCritical,
		c.EmailQueues.Critical, c.EmailQueues.NonCritical,
		c.PushQueues.Critical, c.PushQueues.NonCritical,
		c.DLQQueue,
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
