// Package scheduler runs the bot's background jobs on cron schedules.
// It wraps robfig/cron with named registration, per-job counters, run
// history and panic isolation: one misbehaving job must not take the
// worker process down.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrNilJob rejects a nil job at registration.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrInvalidSpec rejects a cron spec that does not parse.
	ErrInvalidSpec = errors.New("invalid cron spec")

	// ErrJobAlreadyExists rejects a duplicate job name.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound reports an unknown job name.
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyRunning reports a second Start.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrNotRunning reports a Stop without a Start.
	ErrNotRunning = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is one schedulable unit of background work.
type Job interface {
	// Name returns the job's unique name.
	Name() string

	// Run executes the job. The context is cancelled when the
	// scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a short human-readable summary.
	Description() string
}

// JobResult records one job invocation.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler owns the cron engine and everything registered on it.
type Scheduler struct {
	mu sync.RWMutex

	logger     *slog.Logger
	timezone   *time.Location
	maxHistory int

	cron *cron.Cron

	entries   map[string]*entry
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	metrics  *Metrics
	lastRuns map[string]*JobResult
	history  []JobResult

	onJobComplete func(result JobResult)
}

// entry binds a Job to its schedule and counters.
type entry struct {
	job      Job
	spec     string
	schedule cron.Schedule
	cronID   cron.EntryID
	enabled  bool
	lastRun  time.Time
	runs     int64
	fails    int64
}

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger receives the scheduler's structured output.
	Logger *slog.Logger

	// Timezone used for schedule arithmetic; UTC when nil.
	Timezone *time.Location

	// MaxHistorySize bounds the kept run history.
	MaxHistorySize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:         slog.Default(),
		Timezone:       time.UTC,
		MaxHistorySize: 100,
	}
}

// New creates a new Scheduler with the given configuration.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 100
	}

	return &Scheduler{
		logger:     config.Logger,
		timezone:   config.Timezone,
		maxHistory: config.MaxHistorySize,
		cron:       cron.New(cron.WithLocation(config.Timezone)),
		entries:    make(map[string]*entry),
		lastRuns:   make(map[string]*JobResult),
		history:    make([]JobResult, 0, config.MaxHistorySize),
		metrics:    NewMetrics(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job under the given cron spec. The spec uses the
// standard five-field crontab format plus the descriptors cron
// understands ("@daily", "@every 1h30m", ...).
func (s *Scheduler) Register(job Job, spec string) error {
	if job == nil {
		return ErrNilJob
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, taken := s.entries[name]; taken {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{
		job:      job,
		spec:     spec,
		schedule: schedule,
		enabled:  true,
	}
	e.cronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(e) }))
	s.entries[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"spec", spec,
		"next_run", schedule.Next(time.Now().In(s.timezone)).Format(time.RFC3339),
	)

	return nil
}

// EnableJob re-arms a previously disabled job.
func (s *Scheduler) EnableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[jobName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if e.enabled {
		return nil
	}

	e.cronID = s.cron.Schedule(e.schedule, cron.FuncJob(func() { s.fire(e) }))
	e.enabled = true
	s.logger.Info("job enabled", "job", jobName)

	return nil
}

// DisableJob removes the job's cron entry but keeps its registration,
// so counters and history survive and the job can be re-enabled.
func (s *Scheduler) DisableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[jobName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if !e.enabled {
		return nil
	}

	s.cron.Remove(e.cronID)
	e.enabled = false
	s.logger.Info("job disabled", "job", jobName)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins executing registered jobs on their schedules.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	registered := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs_count", registered)

	return nil
}

// Stop cancels the job context and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	s.logger.Info("scheduler stopped",
		"uptime", time.Since(s.startedAt).String(),
	)

	return nil
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// fire handles one invocation triggered by the cron engine.
func (s *Scheduler) fire(e *entry) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.run(ctx, e, false)
}

// RunNow immediately executes a job by name, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	e, ok := s.entries[jobName]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	result := s.run(ctx, e, true)
	return &result, result.Error
}

// run executes the job, records the outcome and fires hooks. A panic
// inside the job becomes a failed JobResult.
func (s *Scheduler) run(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	startedAt := time.Now()

	s.logger.Info("job started", "job", name, "manual", manual)

	s.mu.Lock()
	e.lastRun = startedAt
	e.runs++
	s.mu.Unlock()

	err := s.guarded(ctx, e.job)
	completedAt := time.Now()

	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.metrics.RecordExecution(name, result.Duration, result.Success)
	hook := s.record(e, result)

	if err != nil {
		s.logger.Error("job failed",
			"job", name,
			"duration", result.Duration.String(),
			"error", err,
		)
	} else {
		s.logger.Info("job completed",
			"job", name,
			"duration", result.Duration.String(),
		)
	}

	if hook != nil {
		hook(result)
	}

	return result
}

// guarded invokes the job and turns panics into errors.
func (s *Scheduler) guarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				"job", job.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return job.Run(ctx)
}

// record stores the result against the entry and the run history, and
// returns the completion hook to call outside the lock.
func (s *Scheduler) record(e *entry, result JobResult) func(JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !result.Success {
		e.fails++
	}
	s.lastRuns[result.JobName] = &result

	s.history = append(s.history, result)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}

	return s.onJobComplete
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Spec        string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs describes every registered job.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, s.infoLocked(name, e))
	}

	return infos
}

// GetJobInfo describes one job by name.
func (s *Scheduler) GetJobInfo(jobName string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[jobName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	info := s.infoLocked(jobName, e)
	return &info, nil
}

// infoLocked builds a JobInfo snapshot. Caller holds s.mu.
func (s *Scheduler) infoLocked(name string, e *entry) JobInfo {
	info := JobInfo{
		Name:        name,
		Description: e.job.Description(),
		Enabled:     e.enabled,
		Spec:        e.spec,
		LastRun:     e.lastRun,
		RunCount:    e.runs,
		FailCount:   e.fails,
		LastResult:  s.lastRuns[name],
	}

	if e.enabled {
		// The engine knows the next fire time once started; before
		// that, compute it from the schedule directly.
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			info.NextRun = next
		} else {
			info.NextRun = e.schedule.Next(time.Now().In(s.timezone))
		}
	}

	return info
}

// GetHistory returns the most recent job results, oldest first. A
// non-positive limit returns everything kept.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])

	return out
}

// GetMetrics returns the scheduler's metrics tracker.
func (s *Scheduler) GetMetrics() *Metrics {
	return s.metrics
}

// OnJobComplete sets a callback fired after every job execution,
// successful or not.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics accumulates execution counters across all jobs.
type Metrics struct {
	mu sync.RWMutex

	executions int64
	successes  int64
	failures   int64
	totalTime  time.Duration

	byJob      map[string]int64
	failsByJob map[string]int64
	lastByJob  map[string]time.Time
}

// NewMetrics creates an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		byJob:      make(map[string]int64),
		failsByJob: make(map[string]int64),
		lastByJob:  make(map[string]time.Time),
	}
}

// RecordExecution counts one finished run.
func (m *Metrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.totalTime += duration
	m.byJob[jobName]++
	m.lastByJob[jobName] = time.Now()

	if success {
		m.successes++
	} else {
		m.failures++
		m.failsByJob[jobName]++
	}
}

// Snapshot freezes the counters into a copy.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.executions,
		TotalSuccesses:  m.successes,
		TotalFailures:   m.failures,
	}
	if m.executions > 0 {
		snap.SuccessRate = float64(m.successes) / float64(m.executions)
		snap.AverageDuration = m.totalTime / time.Duration(m.executions)
	}

	return snap
}

// MetricsSnapshot is a frozen copy of the scheduler counters.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
}
