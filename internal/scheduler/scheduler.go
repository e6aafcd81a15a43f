// Package scheduler runs the engine's periodic recompute jobs from a YAML
// job file. Jobs are idempotent: re-running one for the same inputs
// overwrites derived state rather than duplicating it.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/bookpulse/engine/internal/telemetry"
)

// Job is one scheduled job definition.
type Job struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "snapshot.refresh", "vpin.refresh", "zones.reconcile", "signal.compute", "snapshots.prune"
	Every       time.Duration `yaml:"every"`
	Description string        `yaml:"description"`
	Enabled     bool          `yaml:"enabled"`
	Config      JobConfig     `yaml:"config"`
}

// JobConfig holds job-specific parameters.
type JobConfig struct {
	Venues    []string      `yaml:"venues"`
	Symbols   []string      `yaml:"symbols"`
	Depth     int           `yaml:"depth"`
	Retention time.Duration `yaml:"retention"` // snapshots.prune: drop rows older than this
	Staleness time.Duration `yaml:"staleness"` // zones.reconcile: deactivate zones untouched for this long
}

// Config is the full scheduler configuration.
type Config struct {
	Jobs   []Job        `yaml:"jobs"`
	Global GlobalConfig `yaml:"global"`
}

// GlobalConfig holds global scheduler settings.
type GlobalConfig struct {
	Timezone string `yaml:"timezone"`
}

// Runner executes one job type. The scheduler knows nothing about the
// analytics services behind a job; the caller registers a Runner per type.
type Runner func(ctx context.Context, job Job) error

// Result describes one job execution.
type Result struct {
	JobName   string        `yaml:"job_name"`
	StartTime time.Time     `yaml:"start_time"`
	Duration  time.Duration `yaml:"duration"`
	Success   bool          `yaml:"success"`
	Error     string        `yaml:"error,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running      bool          `yaml:"running"`
	EnabledJobs  int           `yaml:"enabled_jobs"`
	DisabledJobs int           `yaml:"disabled_jobs"`
	Uptime       time.Duration `yaml:"uptime"`
	LastRun      time.Time     `yaml:"last_run"`
}

// Scheduler ticks each enabled job on its own interval.
type Scheduler struct {
	config  Config
	metrics *telemetry.Metrics

	mu        sync.Mutex
	runners   map[string]Runner
	running   bool
	startTime time.Time
	lastRun   time.Time
}

// New builds a scheduler from a config. Pass metrics as nil to skip
// instrumentation (tests do).
func New(cfg Config, metrics *telemetry.Metrics) *Scheduler {
	return &Scheduler{
		config:  cfg,
		metrics: metrics,
		runners: make(map[string]Runner),
	}
}

// NewFromFile loads the job file and builds a scheduler.
func NewFromFile(path string, metrics *telemetry.Metrics) (*Scheduler, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, metrics), nil
}

// LoadConfig reads and validates a YAML job file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read job file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse job file: %w", err)
	}

	if cfg.Global.Timezone == "" {
		cfg.Global.Timezone = "UTC"
	}
	for i := range cfg.Jobs {
		if cfg.Jobs[i].Name == "" {
			return cfg, fmt.Errorf("job %d has no name", i)
		}
		if cfg.Jobs[i].Enabled && cfg.Jobs[i].Every <= 0 {
			return cfg, fmt.Errorf("job %q: interval must be positive", cfg.Jobs[i].Name)
		}
	}
	return cfg, nil
}

// Register binds a runner to a job type. Jobs of an unregistered type fail
// at execution, not at registration, so partial wiring stays usable.
func (s *Scheduler) Register(jobType string, run Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[jobType] = run
}

// Jobs returns the configured job list.
func (s *Scheduler) Jobs() []Job {
	return s.config.Jobs
}

// GetStatus reports the current scheduler state.
func (s *Scheduler) GetStatus() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, disabled := 0, 0
	for _, job := range s.config.Jobs {
		if job.Enabled {
			enabled++
		} else {
			disabled++
		}
	}

	st := &Status{
		Running:      s.running,
		EnabledJobs:  enabled,
		DisabledJobs: disabled,
		LastRun:      s.lastRun,
	}
	if s.running {
		st.Uptime = time.Since(s.startTime)
	}
	return st
}

// Start runs every enabled job on its interval until the context is
// cancelled. Each job gets its own ticker; a failing run is logged and the
// ticker keeps going.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	enabled := 0
	for _, job := range s.config.Jobs {
		if job.Enabled {
			enabled++
		}
	}
	log.Info().Int("jobs", enabled).Msg("scheduler starting")

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}
		job := job
		g.Go(func() error {
			ticker := time.NewTicker(job.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if res := s.execute(ctx, job); !res.Success {
						log.Warn().Str("job", job.Name).Str("error", res.Error).
							Msg("scheduled job failed")
					}
				}
			}
		})
	}
	return g.Wait()
}

// RunJob executes one named job immediately. With dryRun the job is resolved
// and reported but not executed.
func (s *Scheduler) RunJob(ctx context.Context, jobName string, dryRun bool) (*Result, error) {
	var job *Job
	for i := range s.config.Jobs {
		if s.config.Jobs[i].Name == jobName {
			job = &s.config.Jobs[i]
			break
		}
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", jobName)
	}

	if dryRun {
		log.Info().Str("job", job.Name).Str("type", job.Type).
			Strs("venues", job.Config.Venues).Strs("symbols", job.Config.Symbols).
			Msg("dry run, job not executed")
		return &Result{JobName: job.Name, StartTime: time.Now(), Success: true}, nil
	}

	res := s.execute(ctx, *job)
	return &res, nil
}

func (s *Scheduler) execute(ctx context.Context, job Job) Result {
	s.mu.Lock()
	run, ok := s.runners[job.Type]
	s.lastRun = time.Now()
	s.mu.Unlock()

	res := Result{JobName: job.Name, StartTime: time.Now()}
	if !ok {
		res.Success = false
		res.Error = fmt.Sprintf("no runner registered for job type %q", job.Type)
		res.Duration = time.Since(res.StartTime)
		return res
	}

	var timer *telemetry.JobTimer
	if s.metrics != nil {
		timer = s.metrics.StartJob(job.Name)
	}

	log.Debug().Str("job", job.Name).Str("type", job.Type).Msg("executing job")
	err := run(ctx, job)
	if timer != nil {
		timer.Stop(err)
	}

	res.Duration = time.Since(res.StartTime)
	res.Success = err == nil
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
