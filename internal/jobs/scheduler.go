package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"siteworker/internal/config"
)

const geoLiteCheckInterval = 6 * time.Hour

// job is one periodic task. running guards against a slow run overlapping
// the next tick of the same job.
type job struct {
	name     string
	interval time.Duration
	run      func() error
	running  atomic.Bool
}

// Scheduler owns the periodic jobs and satisfies cartridge.BackgroundWorker.
type Scheduler struct {
	logger *slog.Logger
	jobs   []*job

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewScheduler wires the retention sweep and the GeoLite updater.
func NewScheduler(conn ConnectionProvider, logger *slog.Logger) (*Scheduler, error) {
	cfg := config.GetConfig()

	sweepInterval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = 24 * time.Hour
	}

	sweep := NewRetentionSweepJob(conn, logger, cfg)
	geoLite := NewGeoLiteUpdaterJob(conn, logger, cfg)

	s := &Scheduler{logger: logger}
	s.register("retention_sweep", sweepInterval, sweep.Run)
	// The updater decides itself whether a download is due.
	s.register("geolite_updater", geoLiteCheckInterval, geoLite.Run)
	return s, nil
}

func (s *Scheduler) register(name string, interval time.Duration, run func() error) {
	s.jobs = append(s.jobs, &job{name: name, interval: interval, run: run})
}

// Start launches every job: one run immediately, then one per interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info("Background jobs already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for _, j := range s.jobs {
		s.logger.Info("Starting job", slog.String("job", j.name), slog.Duration("interval", j.interval))
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.execute(j)
	for {
		select {
		case <-ticker.C:
			s.execute(j)
		case <-ctx.Done():
			s.logger.Debug("Job stopped", slog.String("job", j.name))
			return
		}
	}
}

// execute runs j unless a previous run is still in flight. Panics are
// logged and swallowed so one bad run cannot kill the loop.
func (s *Scheduler) execute(j *job) {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Debug("Skipping job, previous run still active", slog.String("job", j.name))
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", j.name),
				slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := j.run(); err != nil {
		s.logger.Error("Job failed", slog.String("job", j.name), slog.Any("error", err))
		return
	}
	s.logger.Debug("Job finished", slog.String("job", j.name), slog.Duration("took", time.Since(start)))
}

// Stop cancels every loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
