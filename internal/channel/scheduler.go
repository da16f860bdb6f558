package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/models"
)

// SyncFunc pulls fresh records for one connection
type SyncFunc func(ctx context.Context, connectionID string) error

// CronSpec maps a sync frequency to a standard cron spec. MANUAL and unset
// frequencies are not scheduled.
func CronSpec(freq models.SyncFrequency) (string, bool) {
	switch freq {
	case models.SyncRealtime:
		return "* * * * *", true
	case models.SyncHourly:
		return "@hourly", true
	case models.SyncDaily:
		return "@daily", true
	case models.SyncWeekly:
		return "@weekly", true
	}
	return "", false
}

// Scheduler runs periodic syncs for data channels
type Scheduler struct {
	cron    *cron.Cron
	sync    SyncFunc
	timeout time.Duration
	logger  logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // connection id to cron entry
}

// NewScheduler creates a stopped scheduler
func NewScheduler(fn SyncFunc, timeout time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sync:    fn,
		timeout: timeout,
		logger:  log,
		entries: make(map[string]cron.EntryID),
	}
}

// Start starts running scheduled syncs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Channel sync scheduler started", "channels", s.Len())
}

// Stop stops the scheduler and returns a context done when running syncs finish
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("Channel sync scheduler stopped")
	return ctx
}

// Schedule (re)registers a connection according to its sync frequency.
// It returns false when the frequency is not periodic.
func (s *Scheduler) Schedule(conn models.DataConnection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unscheduleLocked(conn.ID)

	spec, ok := CronSpec(conn.SyncFrequency)
	if !ok {
		return false, nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return false, fmt.Errorf("invalid cron expression for %s: %w", conn.ID, err)
	}

	id := conn.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.run(id) })
	if err != nil {
		return false, fmt.Errorf("failed to schedule connection %s: %w", id, err)
	}
	s.entries[id] = entryID
	return true, nil
}

// Unschedule removes a connection's periodic sync
func (s *Scheduler) Unschedule(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unscheduleLocked(connectionID)
}

// unscheduleLocked requires s.mu
func (s *Scheduler) unscheduleLocked(connectionID string) {
	if entryID, ok := s.entries[connectionID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, connectionID)
	}
}

// Scheduled reports whether a connection has a periodic sync
func (s *Scheduler) Scheduled(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[connectionID]
	return ok
}

// Len returns the number of scheduled connections
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextRun returns the next planned sync of a connection
func (s *Scheduler) NextRun(connectionID string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[connectionID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(entryID).Next
	return next, !next.IsZero()
}

func (s *Scheduler) run(connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.sync(ctx, connectionID); err != nil {
		s.logger.Error("Scheduled sync failed", err, "connection_id", connectionID)
		return
	}
	s.logger.Debug("Scheduled sync completed", "connection_id", connectionID)
}
