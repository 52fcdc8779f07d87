package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"studiobook/internal/schedule"
)

type Config struct {
	HTTPAddr           string
	GRPCHost           string
	GRPCPort           int
	GRPCRequestTimeout time.Duration
	DatabaseURL        string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	DBConnMaxIdleTime  time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisTTL           time.Duration
	AMQPURL            string
	AMQPExchange       string
	MetricsEnabled     bool
	MetricsPath        string
	ShutdownTimeout    time.Duration
	LogLevel           string

	RemoteURL       string
	RemoteTransport string
	RemoteTimeout   time.Duration
	RemoteTimezone  string
	PollInterval    time.Duration

	Schedule Schedule
}

type Schedule struct {
	StartHour   int
	EndHour     int
	Granularity int
	MaxDuration time.Duration
	MinLeadTime time.Duration
}

// GRPCAddr is the listen address assembled from host and port.
func (c Config) GRPCAddr() string {
	return net.JoinHostPort(c.GRPCHost, strconv.Itoa(c.GRPCPort))
}

// Load reads configuration from STUDIOBOOK_* variables, their unprefixed
// aliases and an optional studiobook.{yaml,toml,json} in the working directory.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STUDIOBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("studiobook")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.addr", "")
	v.SetDefault("grpc.request_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "30s")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "studiobook.events")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.transport", "http")
	v.SetDefault("remote.timeout", "15s")
	v.SetDefault("remote.timezone", "Local")
	v.SetDefault("poll.interval", "15s")
	v.SetDefault("schedule.start_hour", 8)
	v.SetDefault("schedule.end_hour", 23)
	v.SetDefault("schedule.granularity", 30)
	v.SetDefault("schedule.max_duration", "0s")
	v.SetDefault("schedule.min_lead_time", "0s")

	_ = v.BindEnv("http.addr", "STUDIOBOOK_HTTP_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("grpc.host", "STUDIOBOOK_GRPC_HOST", "GRPC_HOST")
	_ = v.BindEnv("grpc.port", "STUDIOBOOK_GRPC_PORT", "GRPC_PORT")
	_ = v.BindEnv("grpc.addr", "STUDIOBOOK_GRPC_ADDR", "GRPC_ADDR")
	_ = v.BindEnv("grpc.request_timeout", "STUDIOBOOK_GRPC_REQUEST_TIMEOUT")
	_ = v.BindEnv("database.url", "STUDIOBOOK_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.max_open_conns", "STUDIOBOOK_DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "STUDIOBOOK_DATABASE_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "STUDIOBOOK_DATABASE_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.conn_max_idle_time", "STUDIOBOOK_DATABASE_CONN_MAX_IDLE_TIME")
	_ = v.BindEnv("redis.addr", "STUDIOBOOK_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "STUDIOBOOK_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "STUDIOBOOK_REDIS_DB")
	_ = v.BindEnv("redis.ttl", "STUDIOBOOK_REDIS_TTL")
	_ = v.BindEnv("amqp.url", "STUDIOBOOK_AMQP_URL", "AMQP_URL")
	_ = v.BindEnv("amqp.exchange", "STUDIOBOOK_AMQP_EXCHANGE")
	_ = v.BindEnv("metrics.enabled", "STUDIOBOOK_METRICS_ENABLED")
	_ = v.BindEnv("metrics.path", "STUDIOBOOK_METRICS_PATH")
	_ = v.BindEnv("shutdown.timeout", "STUDIOBOOK_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "STUDIOBOOK_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("remote.url", "STUDIOBOOK_REMOTE_URL", "BOOKING_API_URL")
	_ = v.BindEnv("remote.transport", "STUDIOBOOK_REMOTE_TRANSPORT")
	_ = v.BindEnv("remote.timeout", "STUDIOBOOK_REMOTE_TIMEOUT")
	_ = v.BindEnv("remote.timezone", "STUDIOBOOK_REMOTE_TIMEZONE")
	_ = v.BindEnv("poll.interval", "STUDIOBOOK_POLL_INTERVAL")
	_ = v.BindEnv("schedule.start_hour", "STUDIOBOOK_SCHEDULE_START_HOUR")
	_ = v.BindEnv("schedule.end_hour", "STUDIOBOOK_SCHEDULE_END_HOUR")
	_ = v.BindEnv("schedule.granularity", "STUDIOBOOK_SCHEDULE_GRANULARITY")
	_ = v.BindEnv("schedule.max_duration", "STUDIOBOOK_SCHEDULE_MAX_DURATION")
	_ = v.BindEnv("schedule.min_lead_time", "STUDIOBOOK_SCHEDULE_MIN_LEAD_TIME")

	var cfg Config
	for key, dst := range map[string]*time.Duration{
		"grpc.request_timeout":        &cfg.GRPCRequestTimeout,
		"database.conn_max_lifetime":  &cfg.DBConnMaxLifetime,
		"database.conn_max_idle_time": &cfg.DBConnMaxIdleTime,
		"redis.ttl":                   &cfg.RedisTTL,
		"shutdown.timeout":            &cfg.ShutdownTimeout,
		"remote.timeout":              &cfg.RemoteTimeout,
		"poll.interval":               &cfg.PollInterval,
		"schedule.max_duration":       &cfg.Schedule.MaxDuration,
		"schedule.min_lead_time":      &cfg.Schedule.MinLeadTime,
	} {
		d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if addr := strings.TrimSpace(v.GetString("grpc.addr")); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err == nil {
			if host != "" {
				v.Set("grpc.host", host)
			}
			if port, err := strconv.Atoi(portStr); err == nil {
				v.Set("grpc.port", port)
			}
		}
	}

	transport := strings.ToLower(strings.TrimSpace(v.GetString("remote.transport")))
	if transport != "http" && transport != "grpc" {
		return Config{}, fmt.Errorf("remote.transport: want http or grpc, got %q", transport)
	}

	cfg.HTTPAddr = strings.TrimSpace(v.GetString("http.addr"))
	cfg.GRPCHost = strings.TrimSpace(v.GetString("grpc.host"))
	cfg.GRPCPort = v.GetInt("grpc.port")
	cfg.DatabaseURL = strings.TrimSpace(v.GetString("database.url"))
	cfg.DBMaxOpenConns = v.GetInt("database.max_open_conns")
	cfg.DBMaxIdleConns = v.GetInt("database.max_idle_conns")
	cfg.RedisAddr = strings.TrimSpace(v.GetString("redis.addr"))
	cfg.RedisPassword = v.GetString("redis.password")
	cfg.RedisDB = v.GetInt("redis.db")
	cfg.AMQPURL = strings.TrimSpace(v.GetString("amqp.url"))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString("amqp.exchange"))
	cfg.MetricsEnabled = v.GetBool("metrics.enabled")
	cfg.MetricsPath = v.GetString("metrics.path")
	cfg.LogLevel = v.GetString("log.level")
	cfg.RemoteURL = strings.TrimSpace(v.GetString("remote.url"))
	cfg.RemoteTransport = transport
	cfg.RemoteTimezone = strings.TrimSpace(v.GetString("remote.timezone"))
	cfg.Schedule.StartHour = v.GetInt("schedule.start_hour")
	cfg.Schedule.EndHour = v.GetInt("schedule.end_hour")
	cfg.Schedule.Granularity = v.GetInt("schedule.granularity")
	return cfg, nil
}

// Location resolves RemoteTimezone; an empty value means the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.RemoteTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.RemoteTimezone)
	if err != nil {
		return nil, fmt.Errorf("remote.timezone: %w", err)
	}
	return loc, nil
}

// Policy builds the admission rules shared by the service and the client
// cache.
func (c Config) Policy() (schedule.Policy, error) {
	loc, err := c.Location()
	if err != nil {
		return schedule.Policy{}, err
	}
	p := schedule.Policy{
		Window: schedule.Window{
			StartHour:   c.Schedule.StartHour,
			EndHour:     c.Schedule.EndHour,
			Granularity: c.Schedule.Granularity,
		},
		MaxDuration: c.Schedule.MaxDuration,
		MinLeadTime: c.Schedule.MinLeadTime,
		Location:    loc,
	}
	if err := p.Window.Validate(); err != nil {
		return schedule.Policy{}, fmt.Errorf("schedule: %w", err)
	}
	return p, nil
}
