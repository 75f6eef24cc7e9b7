package asyncexec

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xraph/asyncexec/backoff"
)

// Config holds the tuning knobs of a node's async executor, its
// acquisition loops and its expired-lock sweeper. Every field can be set
// from YAML or from the environment (prefix ASYNCEXEC_).
type Config struct {
	// NodeName is the lock owner written into claimed jobs. Empty means a
	// generated node ID.
	NodeName string `yaml:"node_name" env:"NODE_NAME"`

	// AutoActivate starts the executor together with the engine.
	AutoActivate bool `yaml:"auto_activate" env:"AUTO_ACTIVATE"`

	// CorePoolSize is the number of worker goroutines executing jobs.
	CorePoolSize int `yaml:"core_pool_size" env:"CORE_POOL_SIZE"`

	// QueueCapacity bounds the hand-off queue between acquisition and
	// workers.
	QueueCapacity int `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`

	// TimerLockTime is the lease granted to a node that claims a timer job.
	TimerLockTime time.Duration `yaml:"timer_lock_time" env:"TIMER_LOCK_TIME"`

	// AsyncJobLockTime is the lease granted to a node that claims an
	// executable job.
	AsyncJobLockTime time.Duration `yaml:"async_job_lock_time" env:"ASYNC_JOB_LOCK_TIME"`

	// AcquirePageSize is how many candidates one acquisition cycle reads.
	AcquirePageSize int `yaml:"acquire_page_size" env:"ACQUIRE_PAGE_SIZE"`

	// MaxTimerJobsPerAcquisition caps timer claims per cycle.
	MaxTimerJobsPerAcquisition int `yaml:"max_timer_jobs_per_acquisition" env:"MAX_TIMER_JOBS_PER_ACQUISITION"`

	// MaxAsyncJobsPerAcquisition caps executable claims per cycle.
	MaxAsyncJobsPerAcquisition int `yaml:"max_async_jobs_per_acquisition" env:"MAX_ASYNC_JOBS_PER_ACQUISITION"`

	// DefaultTimerAcquireWait is the pause between timer acquisition cycles.
	DefaultTimerAcquireWait time.Duration `yaml:"default_timer_acquire_wait" env:"DEFAULT_TIMER_ACQUIRE_WAIT"`

	// DefaultAsyncAcquireWait is the pause between async acquisition cycles.
	DefaultAsyncAcquireWait time.Duration `yaml:"default_async_acquire_wait" env:"DEFAULT_ASYNC_ACQUIRE_WAIT"`

	// DefaultQueueFullWait is the pause when the hand-off queue is full.
	DefaultQueueFullWait time.Duration `yaml:"default_queue_full_wait" env:"DEFAULT_QUEUE_FULL_WAIT"`

	// RetryWaitTime is the base delay before a failed job is retried.
	RetryWaitTime time.Duration `yaml:"retry_wait_time" env:"RETRY_WAIT_TIME"`

	// RetryBackoff picks how the wait grows between retries: linear,
	// constant, exponential or exponential-jitter.
	RetryBackoff string `yaml:"retry_backoff" env:"RETRY_BACKOFF"`

	// DefaultRetries is the retry budget of newly created jobs.
	DefaultRetries int `yaml:"default_retries" env:"DEFAULT_RETRIES"`

	// ResetExpiredJobsInterval is the sweeper's pause between cycles.
	ResetExpiredJobsInterval time.Duration `yaml:"reset_expired_jobs_interval" env:"RESET_EXPIRED_JOBS_INTERVAL"`

	// ResetExpiredJobsPageSize is how many expired locks one sweep reads.
	ResetExpiredJobsPageSize int `yaml:"reset_expired_jobs_page_size" env:"RESET_EXPIRED_JOBS_PAGE_SIZE"`

	// ShutdownTimeout bounds how long Stop waits for in-flight handlers.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoActivate:               true,
		CorePoolSize:               8,
		QueueCapacity:              100,
		TimerLockTime:              60 * time.Minute,
		AsyncJobLockTime:           60 * time.Minute,
		AcquirePageSize:            512,
		MaxTimerJobsPerAcquisition: 512,
		MaxAsyncJobsPerAcquisition: 512,
		DefaultTimerAcquireWait:    10 * time.Second,
		DefaultAsyncAcquireWait:    10 * time.Second,
		DefaultQueueFullWait:       time.Second,
		RetryWaitTime:              500 * time.Millisecond,
		RetryBackoff:               backoff.NameLinear,
		DefaultRetries:             3,
		ResetExpiredJobsInterval:   60 * time.Second,
		ResetExpiredJobsPageSize:   3,
		ShutdownTimeout:            60 * time.Second,
	}
}

// LoadConfig builds a Config from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). An empty
// path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("asyncexec: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("asyncexec: parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ASYNCEXEC_"}); err != nil {
		return cfg, fmt.Errorf("asyncexec: parse environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every size or duration that would stall the executor.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, v))
		}
	}
	positiveDur := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, name, d))
		}
	}

	positive("core_pool_size", c.CorePoolSize)
	positive("queue_capacity", c.QueueCapacity)
	positive("acquire_page_size", c.AcquirePageSize)
	positive("max_timer_jobs_per_acquisition", c.MaxTimerJobsPerAcquisition)
	positive("max_async_jobs_per_acquisition", c.MaxAsyncJobsPerAcquisition)
	positive("reset_expired_jobs_page_size", c.ResetExpiredJobsPageSize)
	positiveDur("timer_lock_time", c.TimerLockTime)
	positiveDur("async_job_lock_time", c.AsyncJobLockTime)
	positiveDur("reset_expired_jobs_interval", c.ResetExpiredJobsInterval)
	if c.DefaultRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: default_retries must not be negative", ErrInvalidConfig))
	}
	if c.RetryWaitTime < 0 {
		errs = append(errs, fmt.Errorf("%w: retry_wait_time must not be negative", ErrInvalidConfig))
	}
	if _, err := backoff.Named(c.RetryBackoff, c.RetryWaitTime); err != nil {
		errs = append(errs, fmt.Errorf("%w: retry_backoff: %w", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}
