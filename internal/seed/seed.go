// Package seed loads the demo library shipped with the server: the category
// tree, indicators, evaluation models, data channels and archived records.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

//go:embed seed.yaml
var defaultSeed []byte

// Data is the full seed library
type Data struct {
	Categories  models.CategoryTree       `json:"categories"`
	Indicators  []models.Indicator        `json:"indicators"`
	Models      []scoring.EvaluationModel `json:"models"`
	Connections []models.DataConnection   `json:"connections"`
	Records     []models.DataRecord       `json:"records"`
}

// Default returns the embedded seed library
func Default() (*Data, error) {
	return Parse(defaultSeed)
}

// Parse decodes a YAML seed document. The document is converted to JSON
// first so rule configs and raw values go through their JSON decoders.
func Parse(raw []byte) (*Data, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert seed to json: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate checks that every entry is well formed and that references
// between entries resolve.
func (d *Data) Validate() error {
	if err := d.Categories.Validate(); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}

	indicators := make(map[string]bool, len(d.Indicators))
	for i := range d.Indicators {
		ind := &d.Indicators[i]
		if err := ind.Validate(); err != nil {
			return fmt.Errorf("seed indicator %s: %w", ind.ID, err)
		}
		if !d.Categories.Contains(ind.Category) {
			return fmt.Errorf("seed indicator %s: unknown category %s", ind.ID, ind.Category)
		}
		indicators[ind.ID] = true
	}

	engine := scoring.NewScoringEngine()
	for _, m := range d.Models {
		if err := engine.ValidateModel(m); err != nil {
			return fmt.Errorf("seed model %s: %w", m.ID, err)
		}
		for _, cfg := range m.Indicators {
			if !indicators[cfg.IndicatorID] {
				return fmt.Errorf("seed model %s: unknown indicator %s", m.ID, cfg.IndicatorID)
			}
		}
	}

	connections := make(map[string]bool, len(d.Connections))
	for i := range d.Connections {
		conn := &d.Connections[i]
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("seed connection %s: %w", conn.ID, err)
		}
		connections[conn.ID] = true
	}
	for _, r := range d.Records {
		if !connections[r.SourceID] {
			return fmt.Errorf("seed record %s: unknown source %s", r.ID, r.SourceID)
		}
	}
	return nil
}

// Apply writes the library into empty repositories. It reports false and
// writes nothing when the indicator library already has entries.
func Apply(ctx context.Context, repos *repository.Repositories, data *Data) (bool, error) {
	existing, err := repos.Indicator.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check indicator library: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	err = repos.Tx.WithTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Category.Save(ctx, data.Categories); err != nil {
			return err
		}
		for i := range data.Indicators {
			ind := data.Indicators[i]
			if err := tx.Indicator.Create(ctx, &ind); err != nil {
				return err
			}
		}
		for _, m := range data.Models {
			if err := tx.Model.Put(ctx, m); err != nil {
				return err
			}
		}
		for _, conn := range data.Connections {
			if err := tx.Connection.Put(ctx, conn); err != nil {
				return err
			}
		}
		if len(data.Records) > 0 {
			return tx.Record.Insert(ctx, data.Records)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply seed: %w", err)
	}
	return true, nil
}
