package channel

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthMonitor tracks connection test and sync outcomes per data channel
type HealthMonitor struct {
	mu                   sync.RWMutex
	channels             map[string]*channelStats
	maxRecentFailures    int
	failureThreshold     float64 // failure ratio above which a channel is unhealthy
	consecutiveThreshold int64
	staleAfter           time.Duration
	now                  func() time.Time
}

type channelStats struct {
	total               int64
	successful          int64
	failed              int64
	consecutiveFailures int64
	lastFailure         time.Time
	lastSuccess         time.Time
	recentFailures      []FailureRecord
}

// FailureRecord is a single failed test or sync
type FailureRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID string    `json:"connectionId"`
	Error        string    `json:"error"`
	Host         string    `json:"host,omitempty"`
}

// HealthStatus summarizes one channel
type HealthStatus struct {
	ConnectionID        string          `json:"connectionId"`
	IsHealthy           bool            `json:"isHealthy"`
	TotalRequests       int64           `json:"totalRequests"`
	SuccessfulRequests  int64           `json:"successfulRequests"`
	FailedRequests      int64           `json:"failedRequests"`
	SuccessRate         float64         `json:"successRate"`
	ConsecutiveFailures int64           `json:"consecutiveFailures"`
	LastFailureTime     *time.Time      `json:"lastFailureTime,omitempty"`
	LastSuccessTime     *time.Time      `json:"lastSuccessTime,omitempty"`
	RecentFailures      []FailureRecord `json:"recentFailures"`
	HealthIssues        []string        `json:"healthIssues"`
	RecommendedActions  []string        `json:"recommendedActions"`
}

// NewHealthMonitor creates a monitor with the default thresholds
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		channels:             make(map[string]*channelStats),
		maxRecentFailures:    20,
		failureThreshold:     0.2,
		consecutiveThreshold: 3,
		staleAfter:           7 * 24 * time.Hour,
		now:                  time.Now,
	}
}

func (h *HealthMonitor) stats(connectionID string) *channelStats {
	s, ok := h.channels[connectionID]
	if !ok {
		s = &channelStats{}
		h.channels[connectionID] = s
	}
	return s
}

// RecordSuccess records a successful test or sync
func (h *HealthMonitor) RecordSuccess(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stats(connectionID)
	s.total++
	s.successful++
	s.consecutiveFailures = 0
	s.lastSuccess = h.now()
}

// RecordFailure records a failed test or sync
func (h *HealthMonitor) RecordFailure(connectionID, errorMsg, host string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stats(connectionID)
	s.total++
	s.failed++
	s.consecutiveFailures++
	s.lastFailure = h.now()

	s.recentFailures = append(s.recentFailures, FailureRecord{
		Timestamp:    s.lastFailure,
		ConnectionID: connectionID,
		Error:        errorMsg,
		Host:         host,
	})
	if len(s.recentFailures) > h.maxRecentFailures {
		s.recentFailures = s.recentFailures[1:]
	}
}

// GetHealthStatus returns the status of one channel. Unknown channels are
// reported healthy with no history.
func (h *HealthMonitor) GetHealthStatus(connectionID string) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.channels[connectionID]
	if !ok {
		s = &channelStats{}
	}
	return h.status(connectionID, s)
}

// Snapshot returns the status of every channel seen so far, ordered by id
func (h *HealthMonitor) Snapshot() []HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HealthStatus, 0, len(h.channels))
	for id, s := range h.channels {
		out = append(out, h.status(id, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

func (h *HealthMonitor) status(connectionID string, s *channelStats) HealthStatus {
	status := HealthStatus{
		ConnectionID:        connectionID,
		TotalRequests:       s.total,
		SuccessfulRequests:  s.successful,
		FailedRequests:      s.failed,
		ConsecutiveFailures: s.consecutiveFailures,
		RecentFailures:      make([]FailureRecord, len(s.recentFailures)),
		HealthIssues:        []string{},
		RecommendedActions:  []string{},
		IsHealthy:           true,
	}
	copy(status.RecentFailures, s.recentFailures)

	if s.total > 0 {
		status.SuccessRate = float64(s.successful) / float64(s.total)
	} else {
		status.SuccessRate = 1.0
	}
	if !s.lastFailure.IsZero() {
		t := s.lastFailure
		status.LastFailureTime = &t
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		status.LastSuccessTime = &t
	}

	if s.total >= 5 && status.SuccessRate < 1.0-h.failureThreshold {
		status.IsHealthy = false
		status.HealthIssues = append(status.HealthIssues, "High failure rate detected")
		status.RecommendedActions = append(status.RecommendedActions,
			"Check the channel host and credentials")
	}

	if s.consecutiveFailures >= h.consecutiveThreshold {
		status.IsHealthy = false
		status.HealthIssues = append(status.HealthIssues, "Multiple consecutive failures detected")
		status.RecommendedActions = append(status.RecommendedActions,
			"Verify the remote system is reachable before the next sync")
	}

	if !s.lastSuccess.IsZero() && h.now().Sub(s.lastSuccess) > h.staleAfter {
		status.IsHealthy = false
		status.HealthIssues = append(status.HealthIssues, "No successful sync in the last week")
		status.RecommendedActions = append(status.RecommendedActions,
			"Run a manual sync and review the sync frequency")
	}

	analyzeFailurePatterns(s.recentFailures, &status)
	return status
}

// analyzeFailurePatterns flags an error category that dominates recent failures
func analyzeFailurePatterns(failures []FailureRecord, status *HealthStatus) {
	if len(failures) < 3 {
		return
	}

	counts := make(map[string]int)
	for _, f := range failures {
		counts[categorizeError(f.Error)]++
	}

	for errorType, count := range counts {
		if float64(count)/float64(len(failures)) <= 0.5 {
			continue
		}
		switch errorType {
		case "timeout":
			status.HealthIssues = append(status.HealthIssues, "Frequent timeout errors detected")
			status.RecommendedActions = append(status.RecommendedActions,
				"Check network latency to the host or move the sync off peak hours")
		case "authentication":
			status.HealthIssues = append(status.HealthIssues, "Authentication errors detected")
			status.RecommendedActions = append(status.RecommendedActions,
				"Rotate the API key or database password")
		case "network":
			status.HealthIssues = append(status.HealthIssues, "Network connectivity issues detected")
			status.RecommendedActions = append(status.RecommendedActions,
				"Check firewall rules and DNS resolution for the host")
		}
	}
}

// categorizeError maps an error message to a coarse category
func categorizeError(errorMsg string) string {
	errorMsg = strings.ToLower(errorMsg)

	if strings.Contains(errorMsg, "timeout") || strings.Contains(errorMsg, "timed out") || strings.Contains(errorMsg, "deadline") {
		return "timeout"
	}
	if strings.Contains(errorMsg, "unauthorized") || strings.Contains(errorMsg, "denied") || strings.Contains(errorMsg, "401") || strings.Contains(errorMsg, "403") {
		return "authentication"
	}
	if strings.Contains(errorMsg, "network") || strings.Contains(errorMsg, "refused") || strings.Contains(errorMsg, "dns") || strings.Contains(errorMsg, "unreachable") {
		return "network"
	}
	return "other"
}

// Reset clears the history of one channel
func (h *HealthMonitor) Reset(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels, connectionID)
}

// IsHealthy reports whether a channel is within healthy parameters
func (h *HealthMonitor) IsHealthy(connectionID string) bool {
	return h.GetHealthStatus(connectionID).IsHealthy
}

// GetFailureRate returns the failure ratio of a channel
func (h *HealthMonitor) GetFailureRate(connectionID string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.channels[connectionID]
	if !ok || s.total == 0 {
		return 0.0
	}
	return float64(s.failed) / float64(s.total)
}
