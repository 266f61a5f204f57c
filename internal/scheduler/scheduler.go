// Package scheduler runs the daily sync at a configured wall-clock time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/kobo-notion-sync/internal/lock"
)

// SyncFunc executes one sync run. The scheduler holds the lock around it.
type SyncFunc func(ctx context.Context) error

// Scheduler triggers a sync once per day at the configured HH:MM.
type Scheduler struct {
	cron     *cron.Cron
	lockPath string
	runSync  SyncFunc

	mu        sync.Mutex
	isRunning bool
}

// New creates a scheduler that guards runs with the lockfile at lockPath.
func New(lockPath string, runSync SyncFunc) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser)),
		lockPath: lockPath,
		runSync:  runSync,
	}
}

// CronSpec converts a HH:MM daily time to a cron expression.
func CronSpec(hhmm string) (string, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("schedule time must be HH:MM, got %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("schedule hour out of range in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("schedule minute out of range in %q", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Start schedules the daily job and runs until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context, hhmm string) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	spec, err := CronSpec(hhmm)
	if err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	log.Printf("Scheduler started, next sync daily at %s", hhmm)
	s.cron.Start()
	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// tick runs one scheduled sync, skipping silently when a manual sync
// already holds the lock.
func (s *Scheduler) tick(ctx context.Context) {
	l, err := lock.Acquire(s.lockPath)
	if errors.Is(err, lock.ErrSyncInProgress) {
		log.Printf("Scheduled sync skipped: another sync is running")
		return
	}
	if err != nil {
		log.Printf("Scheduled sync skipped: %v", err)
		return
	}
	defer l.Release()

	if err := s.runSync(ctx); err != nil {
		log.Printf("Scheduled sync failed: %v", err)
	}
}
