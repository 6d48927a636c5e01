package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// JobConfig describes one recurring background job
type JobConfig struct {
	Name     string
	Interval time.Duration
	Task     func(ctx context.Context) error
	Enabled  bool
	// EnvKey optionally names an environment variable whose duration value
	// overrides Interval, so operators can retune jobs without a rebuild.
	EnvKey string
}

// JobStatus is a snapshot of one job for the admin surface
type JobStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	RunCount  int           `json:"run_count"`
}

type job struct {
	config JobConfig

	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastError string
	runCount  int
}

// Scheduler runs registered jobs on fixed intervals. Each job gets its own
// goroutine so one slow or panicking job cannot stall the others.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*job),
	}
}

// RegisterJob adds a job to the scheduler. An invalid interval override from
// the environment disables the job with a log line rather than failing
// startup.
func (s *Scheduler) RegisterJob(config JobConfig) error {
	if config.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if config.Task == nil {
		return fmt.Errorf("job %s has no task", config.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot register job %s after scheduler start", config.Name)
	}
	if _, exists := s.jobs[config.Name]; exists {
		return fmt.Errorf("job %s is already registered", config.Name)
	}

	if config.EnvKey != "" {
		if raw := os.Getenv(config.EnvKey); raw != "" {
			interval, err := time.ParseDuration(raw)
			if err != nil || interval <= 0 {
				log.Printf("Scheduler: invalid interval %q for job %s (%s), job disabled", raw, config.Name, config.EnvKey)
				config.Enabled = false
			} else {
				config.Interval = interval
			}
		}
	}

	if config.Interval <= 0 && config.Enabled {
		return fmt.Errorf("job %s has no interval", config.Name)
	}

	s.jobs[config.Name] = &job{config: config}
	s.order = append(s.order, config.Name)

	return nil
}

// Start launches one goroutine per enabled job. Calling Start twice is an
// error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	for _, name := range s.order {
		j := s.jobs[name]
		if !j.config.Enabled {
			log.Printf("Scheduler: job %s disabled", name)
			continue
		}

		s.wg.Add(1)
		go s.runJob(ctx, j)
		log.Printf("Scheduler: job %s every %s", name, j.config.Interval)
	}

	return nil
}

// Stop cancels all jobs and waits for in-flight runs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Status returns a snapshot of all registered jobs in registration order
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		j.mu.Lock()
		statuses = append(statuses, JobStatus{
			Name:      j.config.Name,
			Interval:  j.config.Interval,
			Enabled:   j.config.Enabled,
			Running:   j.running,
			LastRun:   j.lastRun,
			LastError: j.lastError,
			RunCount:  j.runCount,
		})
		j.mu.Unlock()
	}

	return statuses
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, j)
		}
	}
}

// execute runs one job iteration, recovering panics so a bad run never kills
// the job's loop
func (s *Scheduler) execute(ctx context.Context, j *job) {
	j.mu.Lock()
	j.running = true
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Scheduler: job %s panicked: %v", j.config.Name, r)
			j.mu.Lock()
			j.lastError = fmt.Sprintf("panic: %v", r)
			j.mu.Unlock()
		}
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	err := j.config.Task(ctx)
	elapsed := time.Since(start)

	j.mu.Lock()
	j.lastRun = start
	j.runCount++
	if err != nil {
		j.lastError = err.Error()
	} else {
		j.lastError = ""
	}
	j.mu.Unlock()

	if err != nil {
		log.Printf("Scheduler: job %s failed after %s: %v", j.config.Name, elapsed, err)
	} else {
		log.Printf("Scheduler: job %s completed in %s", j.config.Name, elapsed)
	}
}
