// Package channel simulates the external data channels feeding the archive:
// connection tests, indicator previews, sync scheduling and channel health.
package channel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ajharbinger/perfeval/internal/models"
)

// ErrTestInProgress is returned when a connection is already being tested
var ErrTestInProgress = errors.New("connection test already in progress")

// TestResult is the outcome of a simulated connection test
type TestResult struct {
	ConnectionID string                  `json:"connectionId"`
	Success      bool                    `json:"success"`
	Status       models.ConnectionStatus `json:"status"`
	Message      string                  `json:"message"`
	LatencyMs    int64                   `json:"latencyMs"`
	TestedAt     time.Time               `json:"testedAt"`
}

// Tester runs simulated connection tests
type Tester struct {
	latency     time.Duration
	successRate float64
	monitor     *HealthMonitor

	mu       sync.Mutex
	rnd      *rand.Rand
	inFlight map[string]struct{}
}

// NewTester creates a tester that waits latency and then succeeds with
// probability successRate. monitor may be nil.
func NewTester(latency time.Duration, successRate float64, monitor *HealthMonitor) *Tester {
	return &Tester{
		latency:     latency,
		successRate: successRate,
		monitor:     monitor,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		inFlight:    make(map[string]struct{}),
	}
}

// Seed makes the outcome sequence reproducible
func (t *Tester) Seed(seed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rnd = rand.New(rand.NewSource(seed))
}

// Busy reports whether a test is running for the connection
func (t *Tester) Busy(connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inFlight[connectionID]
	return ok
}

// Test simulates a connection attempt. A failed attempt is a normal result,
// not an error; errors are reserved for cancellation and concurrent tests.
func (t *Tester) Test(ctx context.Context, conn models.DataConnection) (*TestResult, error) {
	t.mu.Lock()
	if _, busy := t.inFlight[conn.ID]; busy {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTestInProgress, conn.ID)
	}
	t.inFlight[conn.ID] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.inFlight, conn.ID)
		t.mu.Unlock()
	}()

	start := time.Now()
	timer := time.NewTimer(t.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	t.mu.Lock()
	roll := t.rnd.Float64()
	t.mu.Unlock()

	result := &TestResult{
		ConnectionID: conn.ID,
		Success:      roll < t.successRate,
		LatencyMs:    time.Since(start).Milliseconds(),
		TestedAt:     time.Now(),
	}

	if result.Success {
		result.Status = models.StatusConnected
		result.Message = "连接成功"
		if t.monitor != nil {
			t.monitor.RecordSuccess(conn.ID)
		}
	} else {
		result.Status = models.StatusError
		result.Message = "连接失败，请检查配置"
		if t.monitor != nil {
			t.monitor.RecordFailure(conn.ID, fmt.Sprintf("connection to %s timed out", conn.Host), conn.Host)
		}
	}
	return result, nil
}
