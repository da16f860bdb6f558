package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/channel"
	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/metrics"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

// maxImportRows caps a single archive upload
const maxImportRows = 10000

// neverSynced is the LastSync text of a connection that has not synced yet
const neverSynced = "从未同步"

// channelServiceImpl implements ChannelService
type channelServiceImpl struct {
	repos     *repository.Repositories
	tester    *channel.Tester
	previewer *channel.Previewer
	monitor   *channel.HealthMonitor
	scheduler *channel.Scheduler
	logger    logger.Logger
	now       func() time.Time
}

func newChannelService(repos *repository.Repositories, opts Options) *channelServiceImpl {
	monitor := channel.NewHealthMonitor()
	s := &channelServiceImpl{
		repos:     repos,
		tester:    channel.NewTester(opts.ChannelTestLatency, opts.ChannelSuccessRate, monitor),
		previewer: channel.NewPreviewer(opts.PreviewDelay),
		monitor:   monitor,
		logger:    opts.Logger,
		now:       time.Now,
	}
	s.scheduler = channel.NewScheduler(s.scheduledSync, opts.SyncTimeout, opts.Logger)
	return s
}

// List retrieves every connection with secrets masked
func (s *channelServiceImpl) List(ctx context.Context) ([]models.DataConnection, error) {
	list, err := s.repos.Connection.List(ctx)
	if err != nil {
		return nil, WrapError(err, "failed to list connections", "ListConnections")
	}
	for i := range list {
		list[i].Config = list[i].Config.Masked()
	}
	return list, nil
}

// Get retrieves one connection with secrets masked
func (s *channelServiceImpl) Get(ctx context.Context, id string) (*models.DataConnection, error) {
	conn, err := s.repos.Connection.GetByID(ctx, id)
	if err != nil {
		return nil, WrapError(err, fmt.Sprintf("connection %s not found", id), "GetConnection")
	}
	conn.Config = conn.Config.Masked()
	return conn, nil
}

// Save creates a connection when its id is empty and replaces it otherwise.
// Masked secrets sent back by a client keep the stored values.
func (s *channelServiceImpl) Save(ctx context.Context, conn models.DataConnection) (*models.DataConnection, error) {
	if conn.SyncFrequency == "" {
		conn.SyncFrequency = models.SyncDaily
	}
	if conn.Config.AuthType == "" {
		conn.Config.AuthType = models.AuthNone
	}
	if err := conn.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error(), err).WithOperation("SaveConnection")
	}

	if conn.ID == "" {
		conn.ID = "conn-" + uuid.NewString()[:8]
		conn.Status = models.StatusDisconnected
		conn.LastSync = neverSynced
		if conn.Type == models.ConnectionDatabase && conn.Config.Port == "" {
			conn.Config.Port = "3306"
		}
	} else {
		existing, err := s.repos.Connection.GetByID(ctx, conn.ID)
		if err != nil {
			return nil, WrapError(err, fmt.Sprintf("connection %s not found", conn.ID), "SaveConnection")
		}
		conn.Status = existing.Status
		conn.LastSync = existing.LastSync
		masked := existing.Config.Masked()
		if conn.Config.Password == masked.Password {
			conn.Config.Password = existing.Config.Password
		}
		if conn.Config.APIKey == masked.APIKey {
			conn.Config.APIKey = existing.Config.APIKey
		}
	}

	if err := s.repos.Connection.Put(ctx, conn); err != nil {
		s.logger.Error("Failed to store connection", err, "connection_id", conn.ID)
		return nil, WrapError(err, "failed to save connection", "SaveConnection")
	}
	if _, err := s.scheduler.Schedule(conn); err != nil {
		s.logger.Warn("Failed to schedule connection sync", "connection_id", conn.ID, "error", err.Error())
	}

	s.logger.Info("Connection saved", "connection_id", conn.ID, "type", string(conn.Type))
	conn.Config = conn.Config.Masked()
	return &conn, nil
}

// Delete removes a connection together with its archived records
func (s *channelServiceImpl) Delete(ctx context.Context, id string) error {
	err := s.repos.Tx.WithTransaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Record.DeleteBySource(ctx, id); err != nil {
			return err
		}
		return tx.Connection.Delete(ctx, id)
	})
	if err != nil {
		return WrapError(err, fmt.Sprintf("failed to delete connection %s", id), "DeleteConnection")
	}
	s.scheduler.Unschedule(id)
	s.monitor.Reset(id)
	s.logger.Info("Connection deleted", "connection_id", id)
	return nil
}

// Test runs a simulated connection test and stores the resulting status
func (s *channelServiceImpl) Test(ctx context.Context, id string) (*channel.TestResult, error) {
	conn, res, err := s.probe(ctx, id, "TestConnection")
	if err != nil {
		return nil, err
	}
	metrics.ChannelTests.WithLabelValues(string(conn.Type), outcome(res.Success)).Inc()

	if err := s.repos.Connection.UpdateStatus(ctx, id, res.Status, conn.LastSync); err != nil {
		return nil, WrapError(err, "failed to store connection status", "TestConnection")
	}
	return res, nil
}

// Sync pulls a connection once. A successful pull marks the connection
// connected and stamps the sync time.
func (s *channelServiceImpl) Sync(ctx context.Context, id string) (*channel.TestResult, error) {
	conn, res, err := s.probe(ctx, id, "SyncConnection")
	if err != nil {
		metrics.ChannelSyncs.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, err
	}
	metrics.ChannelSyncs.WithLabelValues(outcome(res.Success)).Inc()

	lastSync := conn.LastSync
	if res.Success {
		lastSync = res.TestedAt.Format(models.RecordTimeLayout)
	}
	if err := s.repos.Connection.UpdateStatus(ctx, id, res.Status, lastSync); err != nil {
		return nil, WrapError(err, "failed to store sync status", "SyncConnection")
	}
	s.logger.Info("Connection synced", "connection_id", id, "success", res.Success, "latency_ms", res.LatencyMs)
	return res, nil
}

func (s *channelServiceImpl) probe(ctx context.Context, id, op string) (*models.DataConnection, *channel.TestResult, error) {
	conn, err := s.repos.Connection.GetByID(ctx, id)
	if err != nil {
		return nil, nil, WrapError(err, fmt.Sprintf("connection %s not found", id), op)
	}
	res, err := s.tester.Test(ctx, *conn)
	if err != nil {
		return nil, nil, WrapError(err, fmt.Sprintf("connection test of %s did not finish", id), op)
	}
	return conn, res, nil
}

func (s *channelServiceImpl) scheduledSync(ctx context.Context, id string) error {
	res, err := s.Sync(ctx, id)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("sync of %s failed: %s", id, res.Message)
	}
	return nil
}

func outcome(success bool) string {
	if success {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomeFailure
}

// Preview fetches a week of mock values for an indicator
func (s *channelServiceImpl) Preview(ctx context.Context, indicatorID string) (*channel.Preview, error) {
	ind, err := s.repos.Indicator.GetByID(ctx, indicatorID)
	if err != nil {
		return nil, WrapError(err, fmt.Sprintf("indicator %s not found", indicatorID), "PreviewIndicator")
	}
	preview, err := s.previewer.Fetch(ctx, *ind)
	if err != nil {
		return nil, WrapError(err, "preview did not finish", "PreviewIndicator")
	}
	return preview, nil
}

// Health returns the channel health snapshot
func (s *channelServiceImpl) Health() []channel.HealthStatus {
	return s.monitor.Snapshot()
}

// Records lists archived records matching filter, newest first
func (s *channelServiceImpl) Records(ctx context.Context, filter models.RecordFilter) ([]models.DataRecord, error) {
	records, err := s.repos.Record.List(ctx, filter)
	if err != nil {
		return nil, WrapError(err, "failed to list records", "ListRecords")
	}
	return records, nil
}

var requiredColumns = []string{"objectname", "indicatorname", "value", "collectiontime", "batchid"}

// ImportRecords archives CSV rows for a connection. The first row is a
// header naming objectName, indicatorName, value, collectionTime and
// batchId; unit and metadata are optional.
func (s *channelServiceImpl) ImportRecords(ctx context.Context, sourceID string, r io.Reader) (*ImportResult, error) {
	if _, err := s.repos.Connection.GetByID(ctx, sourceID); err != nil {
		return nil, WrapError(err, fmt.Sprintf("connection %s not found", sourceID), "ImportRecords")
	}

	records, err := parseRecordsCSV(r, sourceID)
	if err != nil {
		return nil, invalid(err.Error(), "ImportRecords", err)
	}
	if err := s.repos.Record.Insert(ctx, records); err != nil {
		s.logger.Error("Failed to archive imported records", err, "source_id", sourceID)
		return nil, WrapError(err, "failed to store records", "ImportRecords")
	}

	batches := map[string]bool{}
	for _, rec := range records {
		batches[rec.BatchID] = true
	}
	result := &ImportResult{SourceID: sourceID, Imported: len(records), Batches: make([]string, 0, len(batches))}
	for b := range batches {
		result.Batches = append(result.Batches, b)
	}
	sort.Strings(result.Batches)

	s.logger.Info("Records imported", "source_id", sourceID, "count", len(records))
	return result, nil
}

func parseRecordsCSV(r io.Reader, sourceID string) ([]models.DataRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if len(rows)-1 > maxImportRows {
		return nil, fmt.Errorf("too many rows, maximum %d allowed per upload", maxImportRows)
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.DataRecord
	for n, row := range rows[1:] {
		line := n + 2
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := models.DataRecord{
			ID:             "r-" + uuid.NewString(),
			ObjectName:     field(row, "objectname"),
			IndicatorName:  field(row, "indicatorname"),
			Unit:           field(row, "unit"),
			CollectionTime: field(row, "collectiontime"),
			BatchID:        field(row, "batchid"),
			SourceID:       sourceID,
			Status:         models.RecordValid,
			Metadata:       field(row, "metadata"),
		}
		if rec.ObjectName == "" || rec.IndicatorName == "" || rec.BatchID == "" {
			return nil, fmt.Errorf("line %d: objectName, indicatorName and batchId are required", line)
		}
		if _, err := time.Parse(models.RecordTimeLayout, rec.CollectionTime); err != nil {
			return nil, fmt.Errorf("line %d: collectionTime must look like 2024-05-20 10:00:00", line)
		}

		raw := field(row, "value")
		if raw == "" {
			return nil, fmt.Errorf("line %d: value is required", line)
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			rec.Value = scoring.Number(v)
		} else {
			rec.Value = scoring.Label(raw)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("CSV file contains no records")
	}
	return out, nil
}

// StartScheduler registers every stored connection and starts periodic syncs
func (s *channelServiceImpl) StartScheduler(ctx context.Context) error {
	conns, err := s.repos.Connection.List(ctx)
	if err != nil {
		return WrapError(err, "failed to list connections", "StartScheduler")
	}
	for _, conn := range conns {
		if _, err := s.scheduler.Schedule(conn); err != nil {
			return WrapError(err, "failed to schedule connection", "StartScheduler")
		}
	}
	s.scheduler.Start()
	return nil
}

// StopScheduler stops periodic syncs; the returned context is done when
// running syncs have finished
func (s *channelServiceImpl) StopScheduler() context.Context {
	return s.scheduler.Stop()
}
