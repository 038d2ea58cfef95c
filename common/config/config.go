package config

import (
	"time"
	_ "time/tzdata"
)

type (
	Config struct {
		Log         Log         `koanf:"log" yaml:"log" validate:"required"`
		Server      Server      `koanf:"server" yaml:"server" validate:"required"`
		Temporal    Temporal    `koanf:"temporal" yaml:"temporal" validate:"required"`
		Persistence Persistence `koanf:"persistence" yaml:"persistence" validate:"required"`
		Redis       Redis       `koanf:"redis" yaml:"redis"`
		Source      Source      `koanf:"source" yaml:"source" validate:"required"`
		Notify      Notify      `koanf:"notify" yaml:"notify" validate:"required"`
		Alerts      Alerts      `koanf:"alerts" yaml:"alerts" validate:"required"`
		Digest      Digest      `koanf:"digest" yaml:"digest" validate:"required"`
		Ledger      Ledger      `koanf:"ledger" yaml:"ledger" validate:"required"`
		Metrics     Metrics     `koanf:"metrics" yaml:"metrics"`
	}

	Log struct {
		Level  string `koanf:"level" validate:"oneof=debug info warn error"`
		Format string `koanf:"format" validate:"oneof=json text"`
	}

	Server struct {
		Host string `koanf:"host"`
		Port int    `koanf:"port" validate:"required,min=1,max=65535"`
		// MachineID seeds the ID generator. Zero derives it from the private IP address.
		MachineID int `koanf:"machine_id" validate:"min=0,max=65535"`
	}

	Temporal struct {
		HostPort  string `koanf:"host_port" validate:"required"`
		Namespace string `koanf:"namespace" validate:"required"`
		TaskQueue string `koanf:"task_queue" validate:"required"`
	}

	Persistence struct {
		Driver  string `koanf:"driver" validate:"required,oneof=postgres mysql sqlite libsql memory"`
		DSN     string `koanf:"dsn" validate:"required_unless=Driver memory"`
		Migrate bool   `koanf:"migrate"`
	}

	// Redis is optional. Leaving Addr empty disables the seen-deal cache and the fire lock.
	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db" validate:"min=0"`
		TLS      bool          `koanf:"tls"`
		SeenTTL  time.Duration `koanf:"seen_ttl"`
		LockTTL  time.Duration `koanf:"lock_ttl"`
	}

	Source struct {
		BaseURL           string        `koanf:"base_url" validate:"required,url"`
		UserAgent         string        `koanf:"user_agent" validate:"required"`
		Timeout           time.Duration `koanf:"timeout" validate:"min=1s"`
		RequestsPerSecond float64       `koanf:"requests_per_second" validate:"min=0"`
		Burst             int           `koanf:"burst" validate:"min=0"`
		ClientID          string        `koanf:"client_id"`
		ClientSecret      string        `koanf:"client_secret" validate:"required_with=ClientID"`
		TokenURL          string        `koanf:"token_url" validate:"required_with=ClientID"`
		BreakerThreshold  uint32        `koanf:"breaker_threshold" validate:"min=1"`
		BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
	}

	Notify struct {
		Driver           string        `koanf:"driver" validate:"required,oneof=log webhook"`
		WebhookURL       string        `koanf:"webhook_url" validate:"required_if=Driver webhook"`
		WebhookSecret    string        `koanf:"webhook_secret"`
		Timeout          time.Duration `koanf:"timeout" validate:"min=1s"`
		BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"min=1"`
	}

	Alerts struct {
		Interval      time.Duration `koanf:"interval" validate:"min=1m"`
		FetchLimit    int           `koanf:"fetch_limit" validate:"min=1,max=100"`
		ThrottleAfter int           `koanf:"throttle_after" validate:"min=0"`
		ThrottleDelay time.Duration `koanf:"throttle_delay"`
	}

	Digest struct {
		Dispatch        string        `koanf:"dispatch" validate:"oneof=inline temporal"`
		Timezone        string        `koanf:"timezone" validate:"required,timezone"`
		DriftTolerance  time.Duration `koanf:"drift_tolerance" validate:"min=1s"`
		Debounce        time.Duration `koanf:"debounce"`
		BiweeklyMinDays int           `koanf:"biweekly_min_days" validate:"min=1"`
		FetchLimit      int           `koanf:"fetch_limit" validate:"min=1,max=100"`
	}

	Ledger struct {
		Retention     time.Duration `koanf:"retention" validate:"min=1h"`
		PurgeSchedule string        `koanf:"purge_schedule" validate:"required"`
	}

	Metrics struct {
		Namespace string `koanf:"namespace"`
	}
)

func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		Server: Server{
			Port: 8080,
		},
		Temporal: Temporal{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "digest",
		},
		Persistence: Persistence{
			Driver:  "sqlite",
			DSN:     "file:deals.db",
			Migrate: true,
		},
		Redis: Redis{
			SeenTTL: 24 * time.Hour,
			LockTTL: 10 * time.Minute,
		},
		Source: Source{
			UserAgent:         "deal-notifier/1.0",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 2,
			Burst:             1,
			BreakerThreshold:  5,
			BreakerTimeout:    time.Minute,
		},
		Notify: Notify{
			Driver:           "log",
			Timeout:          10 * time.Second,
			BreakerThreshold: 5,
		},
		Alerts: Alerts{
			Interval:      15 * time.Minute,
			FetchLimit:    5,
			ThrottleAfter: 5,
			ThrottleDelay: 1500 * time.Millisecond,
		},
		Digest: Digest{
			Dispatch:        "inline",
			Timezone:        "Europe/Warsaw",
			DriftTolerance:  2 * time.Minute,
			Debounce:        30 * time.Minute,
			BiweeklyMinDays: 13,
			FetchLimit:      10,
		},
		Ledger: Ledger{
			Retention:     30 * 24 * time.Hour,
			PurgeSchedule: "@daily",
		},
		Metrics: Metrics{
			Namespace: "deals",
		},
	}
}

func (d *Digest) Location() (*time.Location, error) {
	return time.LoadLocation(d.Timezone)
}
