package queue

import "time"

// Config holds env-driven server defaults.
type Config struct {
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxAttempts     int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	BackoffInitial  time.Duration `env:"QUEUE_BACKOFF_INITIAL" envDefault:"1s"`
	BackoffMax      time.Duration `env:"QUEUE_BACKOFF_MAX" envDefault:"1m"`
}

// ServerOptions converts cfg into server options.
func (cfg Config) ServerOptions() []ServerOption {
	return []ServerOption{
		WithPollInterval(cfg.PollInterval),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithBackoff(ExponentialBackoff(cfg.BackoffInitial, cfg.BackoffMax)),
	}
}

// ClientOptions converts cfg into client options.
func (cfg Config) ClientOptions() []ClientOption {
	return []ClientOption{WithDefaultMaxAttempts(cfg.MaxAttempts)}
}
