// Package scheduler runs the pipeline stages on intervals and guards each
// task so only one run of it exists at a time. Manual triggers and cron
// ticks go through the same gate; a tick that lands while the task is still
// running is simply skipped.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	TaskScrape       = "scrape"
	TaskDescriptions = "descriptions"
	TaskEnrichment   = "enrichment"
)

const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Runner executes one pass of a task and returns a human summary for the
// status endpoint.
type Runner func(ctx context.Context) (string, error)

// TaskState is the externally visible snapshot of one task.
type TaskState struct {
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Progress int        `json:"progress"`
	Total    int        `json:"total"`
	Interval string     `json:"interval"`
	Enabled  bool       `json:"enabled"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

type task struct {
	name     string
	interval time.Duration
	run      Runner
	entryID  cron.EntryID
	enabled  bool

	running  bool
	status   string
	message  string
	progress int
	total    int
	lastRun  *time.Time
	lastErr  string
}

type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	tasks   map[string]*task
	logger  *log.Logger
	baseCtx context.Context
	started bool
}

func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		tasks:   make(map[string]*task),
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// Register adds a task with its interval. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, run Runner) error {
	if s == nil || run == nil {
		return fmt.Errorf("nil scheduler/runner")
	}
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}
	t := &task{name: name, interval: interval, run: run, status: StatusIdle, enabled: true}
	id, err := s.cron.AddFunc(cronSpec(interval), func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	t.entryID = id
	s.tasks[name] = t
	return nil
}

// BindContext sets the context runs execute under without starting the
// ticker, for deployments that only trigger tasks manually. Start binds
// implicitly.
func (s *Scheduler) BindContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// Start begins ticking. ctx cancellation stops all future ticks; in-flight
// runs see it through the run context.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.BindContext(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// RunContext returns the context scheduled runs execute under. Manual runs
// that claim a slot through TryBegin should run on it too, so shutdown
// cancels them the same way it cancels ticked runs.
func (s *Scheduler) RunContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// RunNow triggers a task outside its schedule. Returns false if the task is
// unknown or already running; a running task is never doubled up.
func (s *Scheduler) RunNow(name string) (bool, error) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("unknown task %q", name)
	}
	if t.running {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	go s.execute(name)
	return true, nil
}

// Configure changes a task's interval and enabled flag and reschedules it.
// A disabled task keeps its state and still accepts RunNow; it just stops
// ticking. The in-flight run, if any, is unaffected.
func (s *Scheduler) Configure(name string, interval time.Duration, enabled bool) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	s.cron.Remove(t.entryID)
	t.entryID = 0
	if enabled {
		id, err := s.cron.AddFunc(cronSpec(interval), func() { s.execute(name) })
		if err != nil {
			return fmt.Errorf("reschedule %s: %w", name, err)
		}
		t.entryID = id
	}
	t.interval = interval
	t.enabled = enabled
	s.logger.Printf("[Scheduler] rescheduled | task=%s interval=%s enabled=%t", name, interval, enabled)
	return nil
}

// TryBegin claims the run slot for a task. On success the caller must
// invoke the returned done func exactly once. ok=false means another run
// holds the slot.
func (s *Scheduler) TryBegin(name string) (func(summary string, err error), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok || t.running {
		return nil, false
	}
	t.running = true
	t.status = StatusRunning
	t.message = ""
	t.progress = 0
	t.total = 0
	t.lastErr = ""
	now := time.Now().UTC()
	t.lastRun = &now

	done := func(summary string, err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.running = false
		t.message = summary
		if err != nil {
			t.status = StatusFailed
			t.lastErr = err.Error()
		} else {
			t.status = StatusCompleted
		}
	}
	return done, true
}

// SetProgress updates the live counters shown while a task runs.
func (s *Scheduler) SetProgress(name string, progress, total int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok || !t.running {
		return
	}
	t.progress = progress
	t.total = total
	if message != "" {
		t.message = message
	}
}

// execute is the shared entry for cron ticks and manual triggers. A run
// that panics is recorded as failed; the schedule itself keeps ticking.
func (s *Scheduler) execute(name string) {
	done, ok := s.TryBegin(name)
	if !ok {
		s.logger.Printf("[Scheduler] run skipped | task=%s reason=already_running", name)
		return
	}

	s.mu.Lock()
	t := s.tasks[name]
	run := t.run
	ctx := s.baseCtx
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("[Scheduler] run panicked | task=%s panic=%v", name, r)
			done("", fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	s.logger.Printf("[Scheduler] run started | task=%s", name)
	summary, err := run(ctx)
	if err != nil {
		s.logger.Printf("[Scheduler] run failed | task=%s duration=%s err=%v", name, time.Since(start), err)
	} else {
		s.logger.Printf("[Scheduler] run finished | task=%s duration=%s summary=%q", name, time.Since(start), summary)
	}
	done(summary, err)
}

// Status snapshots every task.
func (s *Scheduler) Status() map[string]TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]TaskState, len(s.tasks))
	for name, t := range s.tasks {
		st := TaskState{
			Status:   t.status,
			Message:  t.message,
			Progress: t.progress,
			Total:    t.total,
			Interval: t.interval.String(),
			Enabled:  t.enabled,
			LastRun:  t.lastRun,
			LastErr:  t.lastErr,
		}
		if s.started && t.enabled {
			if entry := s.cron.Entry(t.entryID); !entry.Next.IsZero() {
				next := entry.Next.UTC()
				st.NextRun = &next
			}
		}
		out[name] = st
	}
	return out
}

func cronSpec(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}
