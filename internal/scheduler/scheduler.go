// Package scheduler runs in-process registered jobs on interval, cron-like,
// or one-shot triggers (spec.md §4.4).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"go.redcell.dev/rangeops/internal/common/clock"
	"go.redcell.dev/rangeops/internal/common/leader"
	"go.redcell.dev/rangeops/internal/common/metrics"
	"go.redcell.dev/rangeops/internal/queue"
)

const (
	misfireGraceTime = 300 * time.Second
	heartbeatPeriod  = 60 * time.Second
	tickPeriod       = time.Second
)

// JobFunc is the work a registered Job performs when it fires.
type JobFunc func(ctx context.Context) error

// Job is a unit of work registered with the Scheduler.
type Job struct {
	ID      string
	Name    string
	Trigger Trigger
	Fn      JobFunc
}

// Descriptor is a read-only snapshot of a registered job's state, returned
// by Jobs().
type Descriptor struct {
	ID         string
	Name       string
	Trigger    TriggerKind
	NextRun    time.Time
	LastRun    time.Time
	LastResult string
	Running    bool
}

type registeredJob struct {
	job      Job
	schedule cron.Schedule // set when Trigger.Kind == TriggerCron

	nextRun    time.Time
	lastRun    time.Time
	lastResult string
	running    bool
}

// Scheduler registers and fires Jobs according to their Trigger, publishing
// a best-effort wakeup hint after each firing and upserting a heartbeat row
// every 60 seconds. When leader election is configured only the elected
// instance fires jobs; every instance still heartbeats.
type Scheduler struct {
	instanceID    string
	statusRepo    StatusRepository
	publisher     queue.Publisher
	leaderElector *leader.LeaderElector
	cronParser    cron.Parser
	clock         clock.Clock

	mu   sync.Mutex
	jobs map[string]*registeredJob

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// New builds a Scheduler. leaderElector and publisher are both optional
// (nil disables leader gating / wakeup hints respectively).
func New(instanceID string, statusRepo StatusRepository, publisher queue.Publisher, leaderElector *leader.LeaderElector) *Scheduler {
	return &Scheduler{
		instanceID:    instanceID,
		statusRepo:    statusRepo,
		publisher:     publisher,
		leaderElector: leaderElector,
		cronParser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		clock:         clock.Real(),
		jobs:          make(map[string]*registeredJob),
	}
}

// Register adds or replaces a Job. Registering a one-shot Job with an ID
// already pending replaces it outright, satisfying the cancellation
// contract used by the Invitation Job's test-mode-toggle debounce (spec.md
// §4.5): the prior pending instance is simply dropped from the schedule.
func (s *Scheduler) Register(job Job) error {
	if job.ID == "" {
		return errors.New("scheduler: job id required")
	}
	if job.Fn == nil {
		return fmt.Errorf("scheduler: job %q has no Fn", job.ID)
	}

	rj := &registeredJob{job: job}
	now := s.clock.Now().UTC()

	switch job.Trigger.Kind {
	case TriggerInterval:
		if job.Trigger.Interval <= 0 {
			return fmt.Errorf("scheduler: job %q interval must be positive", job.ID)
		}
		rj.nextRun = now.Add(job.Trigger.Interval)
	case TriggerCron:
		schedule, err := s.cronParser.Parse(job.Trigger.CronExpr)
		if err != nil {
			return fmt.Errorf("scheduler: job %q invalid cron expression: %w", job.ID, err)
		}
		rj.schedule = schedule
		rj.nextRun = schedule.Next(now)
	case TriggerOneShot:
		rj.nextRun = job.Trigger.At.UTC()
	default:
		return fmt.Errorf("scheduler: job %q has unknown trigger kind %q", job.ID, job.Trigger.Kind)
	}

	s.mu.Lock()
	s.jobs[job.ID] = rj
	s.mu.Unlock()
	return nil
}

// Jobs returns a snapshot of every registered job's current state.
func (s *Scheduler) Jobs() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Descriptor, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, Descriptor{
			ID:         rj.job.ID,
			Name:       rj.job.Name,
			Trigger:    rj.job.Trigger.Kind,
			NextRun:    rj.nextRun,
			LastRun:    rj.lastRun,
			LastResult: rj.lastResult,
			Running:    rj.running,
		})
	}
	return out
}

// Start begins the tick and heartbeat loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		slog.Warn("scheduler already running")
		return
	}
	s.running = true
	s.runningMu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.leaderElector != nil {
		if err := s.leaderElector.Start(s.ctx); err != nil {
			slog.Error("scheduler: failed to start leader election", "error", err)
		}
	}

	s.wg.Add(2)
	go s.tickLoop()
	go s.heartbeatLoop()

	slog.Info("scheduler started", "instance_id", s.instanceID, "registered_jobs", len(s.jobs))
}

// Stop cancels both loops and waits for any in-flight job to return.
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()

	if s.leaderElector != nil {
		s.leaderElector.Stop()
	}
	slog.Info("scheduler stopped", "instance_id", s.instanceID)
}

// IsPrimary reports whether this instance fires jobs. Always true when no
// leader elector is configured (single-instance deployment).
func (s *Scheduler) IsPrimary() bool {
	if s.leaderElector == nil {
		return true
	}
	return s.leaderElector.IsPrimary()
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	s.heartbeat()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Scheduler) heartbeat() {
	if s.statusRepo == nil {
		return
	}
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if err := s.statusRepo.UpsertHeartbeat(ctx, s.instanceID, count); err != nil {
		slog.Error("scheduler: heartbeat failed", "error", err)
	}
}

// tick fires every due job whose previous run has returned (max_instances =
// 1), dropping any firing more than misfire_grace_time late (coalesce: a
// run of missed firings still executes only once, by jumping straight to
// "now" rather than replaying each missed slot).
func (s *Scheduler) tick() {
	if !s.IsPrimary() {
		return
	}

	now := s.clock.Now().UTC()
	var due []*registeredJob

	s.mu.Lock()
	for _, rj := range s.jobs {
		if rj.nextRun.IsZero() || rj.nextRun.After(now) || rj.running {
			continue
		}
		due = append(due, rj)
	}
	s.mu.Unlock()

	for _, rj := range due {
		s.fire(rj, now)
	}
}

func (s *Scheduler) fire(rj *registeredJob, now time.Time) {
	if delay := now.Sub(rj.nextRun); delay > misfireGraceTime {
		metrics.SchedulerMisfiresDropped.WithLabelValues(rj.job.ID).Inc()
		slog.Warn("scheduler: dropping misfired job", "job_id", rj.job.ID, "delay", delay)
		s.mu.Lock()
		rj.nextRun = s.computeNext(rj, now)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	rj.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := s.clock.Now()
		err := rj.job.Fn(s.ctx)
		metrics.SchedulerJobDuration.WithLabelValues(rj.job.ID).Observe(s.clock.Now().Sub(start).Seconds())

		s.mu.Lock()
		rj.running = false
		rj.lastRun = start
		if err != nil {
			rj.lastResult = "error"
			slog.Error("scheduler: job failed", "job_id", rj.job.ID, "error", err)
		} else {
			rj.lastResult = "ok"
		}
		rj.nextRun = s.computeNext(rj, s.clock.Now().UTC())
		s.mu.Unlock()

		metrics.SchedulerJobRuns.WithLabelValues(rj.job.ID, rj.lastResult).Inc()
		s.publishWakeupHint(rj.job.ID)
	}()
}

// computeNext returns the next fire time for rj, or the zero time for a
// one-shot job (it never fires again).
func (s *Scheduler) computeNext(rj *registeredJob, from time.Time) time.Time {
	switch rj.job.Trigger.Kind {
	case TriggerInterval:
		return from.Add(rj.job.Trigger.Interval)
	case TriggerCron:
		return rj.schedule.Next(from)
	default:
		return time.Time{}
	}
}

// publishWakeupHint is a best-effort nudge to other processes (Batch
// Worker, Instance Reconciler) that a tick just happened, so they poll
// sooner than their own interval. Never authoritative: claim_due's row
// locks remain the sole source of the at-most-one-claim guarantee.
func (s *Scheduler) publishWakeupHint(jobID string) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	subject := "scheduler.tick." + jobID
	if err := s.publisher.Publish(ctx, subject, []byte(jobID)); err != nil {
		slog.Debug("scheduler: wakeup hint publish failed", "job_id", jobID, "error", err)
	}
}
