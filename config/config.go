// Package config loads the settings of a quartz scheduler from TOML files
// and QUARTZ_ environment variables.
package config

import (
	"bytes"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	quartz "github.com/netresearch/go-quartz"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
// Nested keys use underscores, e.g. QUARTZ_SCHEDULER_BATCH_SIZE.
const EnvPrefix = "QUARTZ"

// Config is the effective configuration of a scheduler instance.
type Config struct {
	InstanceID       string          `mapstructure:"instance_id"`
	MisfireThreshold time.Duration   `mapstructure:"misfire_threshold"`
	Log              LogConfig       `mapstructure:"log"`
	Scheduler        SchedulerConfig `mapstructure:"scheduler"`
	Jobs             []JobConfig     `mapstructure:"jobs"`
}

// LogConfig selects the zap logger built by NewLogger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// SchedulerConfig tunes the driving loop.
type SchedulerConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeWindow time.Duration `mapstructure:"batch_time_window"`
	IdleWaitTime    time.Duration `mapstructure:"idle_wait_time"`
}

// JobConfig declares a job fired by a cron expression.
type JobConfig struct {
	Name        string         `mapstructure:"name"`
	Group       string         `mapstructure:"group"`
	Type        string         `mapstructure:"type"`
	Description string         `mapstructure:"description"`
	Cron        string         `mapstructure:"cron"`
	TimeZone    string         `mapstructure:"time_zone"`
	Priority    int            `mapstructure:"priority"`
	Durable     bool           `mapstructure:"durable"`
	Concurrent  bool           `mapstructure:"concurrent"`
	Data        map[string]any `mapstructure:"data"`
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("instance_id", "")
	v.SetDefault("misfire_threshold", quartz.DefaultMisfireThreshold)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("scheduler.batch_size", quartz.DefaultBatchSize)
	v.SetDefault("scheduler.batch_time_window", time.Duration(0))
	v.SetDefault("scheduler.idle_wait_time", quartz.DefaultIdleWaitTime)
}

// New returns a viper instance with defaults and environment binding, but
// no config file.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the configuration from path, or only defaults and environment
// when path is empty.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

// LoadBytes reads a TOML document. Mostly useful in tests.
func LoadBytes(data []byte) (*Config, error) {
	v := New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return LoadWithViper(v)
}

// LoadWithViper unmarshals and validates the configuration held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and every job declaration.
func (c *Config) Validate() error {
	if c.MisfireThreshold < 0 {
		return errors.Newf("misfire_threshold must not be negative, got %v", c.MisfireThreshold)
	}
	if c.Scheduler.BatchSize < 1 {
		return errors.Newf("scheduler.batch_size must be positive, got %d", c.Scheduler.BatchSize)
	}
	if c.Scheduler.BatchTimeWindow < 0 {
		return errors.Newf("scheduler.batch_time_window must not be negative, got %v", c.Scheduler.BatchTimeWindow)
	}
	if c.Scheduler.IdleWaitTime <= 0 {
		return errors.Newf("scheduler.idle_wait_time must be positive, got %v", c.Scheduler.IdleWaitTime)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Newf("log.format must be json or console, got %q", c.Log.Format)
	}

	seen := make(map[quartz.JobKey]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		if j.Name == "" {
			return errors.Newf("jobs[%d]: name is required", i)
		}
		key := quartz.NewJobKey(j.Name, j.Group)
		if seen[key] {
			return errors.Wrapf(quartz.ErrObjectAlreadyExists, "jobs[%d]: job %s declared twice", i, key)
		}
		seen[key] = true
		if _, err := j.location(); err != nil {
			return errors.Wrapf(err, "jobs[%d]", i)
		}
		if err := quartz.ValidateCronExpression(j.Cron); err != nil {
			return errors.Wrapf(err, "jobs[%d] (%s)", i, key)
		}
	}
	return nil
}

// StoreOptions returns the MemoryStore options the configuration selects.
func (c *Config) StoreOptions() []quartz.StoreOption {
	opts := []quartz.StoreOption{quartz.WithMisfireThreshold(c.MisfireThreshold)}
	if c.InstanceID != "" {
		opts = append(opts, quartz.WithInstanceID(c.InstanceID))
	}
	return opts
}

// SchedulerOptions returns the Scheduler options the configuration selects.
func (c *Config) SchedulerOptions() []quartz.SchedulerOption {
	return []quartz.SchedulerOption{
		quartz.WithBatchSize(c.Scheduler.BatchSize),
		quartz.WithBatchTimeWindow(c.Scheduler.BatchTimeWindow),
		quartz.WithIdleWaitTime(c.Scheduler.IdleWaitTime),
	}
}

// NewLogger builds the zap logger selected by the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	var zc zap.Config
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return logger, nil
}

func (j JobConfig) location() (*time.Location, error) {
	if j.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(j.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "time_zone %q", j.TimeZone)
	}
	return loc, nil
}

// Build returns the job and the cron trigger firing it. A job without a
// type gets defaultType.
func (j JobConfig) Build(defaultType string) (*quartz.JobDetail, quartz.OperableTrigger, error) {
	jobType := j.Type
	if jobType == "" {
		jobType = defaultType
	}
	jb := quartz.NewJob(jobType).
		WithIdentity(j.Name, j.Group).
		WithDescription(j.Description).
		SetJobData(quartz.NewJobDataMap(j.Data))
	if j.Durable {
		jb = jb.StoreDurably()
	}
	if !j.Concurrent {
		jb = jb.DisallowConcurrentExecution()
	}
	job, err := jb.Build()
	if err != nil {
		return nil, nil, err
	}

	loc, err := j.location()
	if err != nil {
		return nil, nil, err
	}
	tb := quartz.NewTrigger().
		WithIdentity(j.Name, j.Group).
		ForJobDetail(job).
		WithSchedule(quartz.CronSchedule(j.Cron).InTimeZone(loc))
	if j.Priority != 0 {
		tb = tb.WithPriority(j.Priority)
	}
	trigger, err := tb.Build()
	if err != nil {
		return nil, nil, err
	}
	return job, trigger, nil
}

type tomlLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type tomlScheduler struct {
	BatchSize       int    `toml:"batch_size"`
	BatchTimeWindow string `toml:"batch_time_window"`
	IdleWaitTime    string `toml:"idle_wait_time"`
}

type tomlJob struct {
	Name        string         `toml:"name"`
	Group       string         `toml:"group,omitempty"`
	Type        string         `toml:"type,omitempty"`
	Description string         `toml:"description,omitempty"`
	Cron        string         `toml:"cron"`
	TimeZone    string         `toml:"time_zone,omitempty"`
	Priority    int            `toml:"priority,omitempty"`
	Durable     bool           `toml:"durable"`
	Concurrent  bool           `toml:"concurrent"`
	Data        map[string]any `toml:"data,omitempty"`
}

type tomlConfig struct {
	InstanceID       string        `toml:"instance_id,omitempty"`
	MisfireThreshold string        `toml:"misfire_threshold"`
	Log              tomlLog       `toml:"log"`
	Scheduler        tomlScheduler `toml:"scheduler"`
	Jobs             []tomlJob     `toml:"jobs,omitempty"`
}

// MarshalTOML renders the configuration as a TOML document that Load
// accepts. Durations are written in time.Duration notation.
func (c *Config) MarshalTOML() ([]byte, error) {
	out := tomlConfig{
		InstanceID:       c.InstanceID,
		MisfireThreshold: c.MisfireThreshold.String(),
		Log:              tomlLog(c.Log),
		Scheduler: tomlScheduler{
			BatchSize:       c.Scheduler.BatchSize,
			BatchTimeWindow: c.Scheduler.BatchTimeWindow.String(),
			IdleWaitTime:    c.Scheduler.IdleWaitTime.String(),
		},
	}
	for _, j := range c.Jobs {
		out.Jobs = append(out.Jobs, tomlJob(j))
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return buf.Bytes(), nil
}
