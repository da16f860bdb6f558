package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

// memoryStore backs the in-memory repositories used when no DATABASE_URL is
// configured. One lock guards every collection.
type memoryStore struct {
	mu          sync.RWMutex
	indicators  map[string]models.Indicator
	categories  models.CategoryTree
	models      map[string]scoring.EvaluationModel
	connections map[string]models.DataConnection
	records     []models.DataRecord
	runs        map[uuid.UUID]models.EvaluationRun
	scores      map[uuid.UUID]map[string]models.ObjectScore
}

// NewMemoryRepositories creates repositories held in process memory
func NewMemoryRepositories() *Repositories {
	s := &memoryStore{
		indicators:  make(map[string]models.Indicator),
		categories:  models.CategoryTree{},
		models:      make(map[string]scoring.EvaluationModel),
		connections: make(map[string]models.DataConnection),
		runs:        make(map[uuid.UUID]models.EvaluationRun),
		scores:      make(map[uuid.UUID]map[string]models.ObjectScore),
	}
	repos := &Repositories{
		Indicator:  &memoryIndicators{s},
		Category:   &memoryCategories{s},
		Model:      &memoryModels{s},
		Connection: &memoryConnections{s},
		Record:     &memoryRecords{s},
		Run:        &memoryRuns{s},
	}
	repos.Tx = &memoryTx{repos: repos}
	return repos
}

// memoryTx runs the function directly; writes are not rolled back
type memoryTx struct {
	repos *Repositories
}

func (t *memoryTx) WithTransaction(ctx context.Context, fn func(repos *Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(t.repos); err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

type memoryIndicators struct{ s *memoryStore }

func (m *memoryIndicators) List(_ context.Context) ([]models.Indicator, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]models.Indicator, 0, len(m.s.indicators))
	for _, ind := range m.s.indicators {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out, nil
}

func (m *memoryIndicators) GetByID(_ context.Context, id string) (*models.Indicator, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	ind, ok := m.s.indicators[id]
	if !ok {
		return nil, fmt.Errorf("indicator %s: %w", id, ErrNotFound)
	}
	return &ind, nil
}

func (m *memoryIndicators) Create(_ context.Context, ind *models.Indicator) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.indicators[ind.ID]; exists {
		return fmt.Errorf("failed to create indicator: id %s already exists", ind.ID)
	}
	m.s.indicators[ind.ID] = *ind
	return nil
}

func (m *memoryIndicators) Update(_ context.Context, ind *models.Indicator) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.indicators[ind.ID]; !exists {
		return fmt.Errorf("indicator %s: %w", ind.ID, ErrNotFound)
	}
	m.s.indicators[ind.ID] = *ind
	return nil
}

func (m *memoryIndicators) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.indicators[id]; !exists {
		return fmt.Errorf("indicator %s: %w", id, ErrNotFound)
	}
	delete(m.s.indicators, id)
	return nil
}

func (m *memoryIndicators) CountByCategories(_ context.Context, categoryIDs []string) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	set := make(map[string]bool, len(categoryIDs))
	for _, id := range categoryIDs {
		set[id] = true
	}
	count := 0
	for _, ind := range m.s.indicators {
		if set[ind.Category] {
			count++
		}
	}
	return count, nil
}

type memoryCategories struct{ s *memoryStore }

func (m *memoryCategories) Get(_ context.Context) (models.CategoryTree, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.categories.Clone(), nil
}

func (m *memoryCategories) Save(_ context.Context, tree models.CategoryTree) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.categories = tree.Clone()
	return nil
}

type memoryModels struct{ s *memoryStore }

func (m *memoryModels) List(_ context.Context) ([]scoring.EvaluationModel, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]scoring.EvaluationModel, 0, len(m.s.models))
	for _, model := range m.s.models {
		out = append(out, scoring.Clone(model))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryModels) GetByID(_ context.Context, id string) (*scoring.EvaluationModel, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	model, ok := m.s.models[id]
	if !ok {
		return nil, fmt.Errorf("evaluation model %s: %w", id, ErrNotFound)
	}
	c := scoring.Clone(model)
	return &c, nil
}

func (m *memoryModels) Put(_ context.Context, model scoring.EvaluationModel) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.models[model.ID] = scoring.Clone(model)
	return nil
}

func (m *memoryModels) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.models[id]; !ok {
		return fmt.Errorf("evaluation model %s: %w", id, ErrNotFound)
	}
	delete(m.s.models, id)
	return nil
}

type memoryConnections struct{ s *memoryStore }

func (m *memoryConnections) List(_ context.Context) ([]models.DataConnection, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]models.DataConnection, 0, len(m.s.connections))
	for _, c := range m.s.connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryConnections) GetByID(_ context.Context, id string) (*models.DataConnection, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.connections[id]
	if !ok {
		return nil, fmt.Errorf("data connection %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (m *memoryConnections) Put(_ context.Context, c models.DataConnection) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.connections[c.ID] = c
	return nil
}

func (m *memoryConnections) UpdateStatus(_ context.Context, id string, status models.ConnectionStatus, lastSync string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.connections[id]
	if !ok {
		return fmt.Errorf("data connection %s: %w", id, ErrNotFound)
	}
	c.Status = status
	if lastSync != "" {
		c.LastSync = lastSync
	}
	m.s.connections[id] = c
	return nil
}

func (m *memoryConnections) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.connections[id]; !ok {
		return fmt.Errorf("data connection %s: %w", id, ErrNotFound)
	}
	delete(m.s.connections, id)
	kept := m.s.records[:0]
	for _, r := range m.s.records {
		if r.SourceID != id {
			kept = append(kept, r)
		}
	}
	m.s.records = kept
	return nil
}

type memoryRecords struct{ s *memoryStore }

func (m *memoryRecords) List(_ context.Context, filter models.RecordFilter) ([]models.DataRecord, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []models.DataRecord{}
	for _, r := range m.s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CollectionTime != out[j].CollectionTime {
			return out[i].CollectionTime > out[j].CollectionTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryRecords) Insert(_ context.Context, records []models.DataRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, rec := range records {
		replaced := false
		for i := range m.s.records {
			if m.s.records[i].ID == rec.ID {
				m.s.records[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			m.s.records = append(m.s.records, rec)
		}
	}
	return nil
}

func (m *memoryRecords) DeleteBySource(_ context.Context, sourceID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	kept := m.s.records[:0]
	removed := 0
	for _, r := range m.s.records {
		if r.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.s.records = kept
	return removed, nil
}

type memoryRuns struct{ s *memoryStore }

func (m *memoryRuns) Create(_ context.Context, run *models.EvaluationRun) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	m.s.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) Update(_ context.Context, run *models.EvaluationRun) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.runs[run.ID]; !ok {
		return fmt.Errorf("evaluation run %s: %w", run.ID, ErrNotFound)
	}
	m.s.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) GetByID(_ context.Context, id uuid.UUID) (*models.EvaluationRun, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	run, ok := m.s.runs[id]
	if !ok {
		return nil, fmt.Errorf("evaluation run %s: %w", id, ErrNotFound)
	}
	return &run, nil
}

func (m *memoryRuns) List(_ context.Context, limit int) ([]models.EvaluationRun, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]models.EvaluationRun, 0, len(m.s.runs))
	for _, run := range m.s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRuns) SaveScore(_ context.Context, score models.ObjectScore) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	byObject, ok := m.s.scores[score.RunID]
	if !ok {
		byObject = make(map[string]models.ObjectScore)
		m.s.scores[score.RunID] = byObject
	}
	byObject[score.ObjectName] = score
	return nil
}

func (m *memoryRuns) Scores(_ context.Context, runID uuid.UUID) ([]models.ObjectScore, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]models.ObjectScore, 0, len(m.s.scores[runID]))
	for _, s := range m.s.scores[runID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectName < out[j].ObjectName })
	return out, nil
}

// lessID orders numeric ids numerically and everything else lexically
func lessID(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
