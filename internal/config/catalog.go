package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/llm"
)

// CatalogModel is one entry of the model catalog file. The catalog is the
// single authority for which models exist, their quirk policy and the
// fallback graph.
type CatalogModel struct {
	Name            string  `yaml:"name"`
	Backend         string  `yaml:"backend"`
	UpstreamModel   string  `yaml:"upstream_model"`
	TimeoutClass    string  `yaml:"timeout_class"`
	PromptVariant   string  `yaml:"prompt_variant"`
	ResponseHandler string  `yaml:"response_handler"`
	CostPerCallUSD  float64 `yaml:"cost_per_call_usd"`
	Fallback        string  `yaml:"fallback"`
}

type Catalog struct {
	Models []CatalogModel `yaml:"models"`
	// Budgets are daily request limits per backend.
	Budgets map[string]int `yaml:"budgets"`
}

// LoadCatalog reads and validates the catalog. Any validation error here is
// a fatal startup error; a malformed fallback graph must never surface at
// runtime.
func LoadCatalog(path string, fallbackMaxDepth int) (*Catalog, *llm.FallbackGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read model catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(cat.Models) == 0 {
		return nil, nil, fmt.Errorf("model catalog %s contains no models", path)
	}

	known := make(map[string]bool, len(cat.Models))
	mapping := map[string]string{}
	for i := range cat.Models {
		m := &cat.Models[i]
		if m.Name == "" || m.Backend == "" || m.UpstreamModel == "" {
			return nil, nil, fmt.Errorf("catalog entry %d missing name/backend/upstream_model", i)
		}
		if known[m.Name] {
			return nil, nil, fmt.Errorf("duplicate catalog model %q", m.Name)
		}
		known[m.Name] = true
		applyCatalogDefaults(m)
		if m.Fallback != "" {
			mapping[m.Name] = m.Fallback
		}
	}

	graph, err := llm.ValidateFallbackGraph(mapping, known, fallbackMaxDepth)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid fallback graph: %w", err)
	}
	return &cat, graph, nil
}

func applyCatalogDefaults(m *CatalogModel) {
	if m.TimeoutClass == "" {
		m.TimeoutClass = domain.TimeoutClassStandard
	}
	if m.PromptVariant == "" {
		m.PromptVariant = domain.PromptVariantPlain
	}
	if m.ResponseHandler == "" {
		m.ResponseHandler = domain.ResponseHandlerPassthrough
	}
}

// ToModel converts a catalog entry to its database row shape.
func (c CatalogModel) ToModel() *domain.Model {
	return &domain.Model{
		Name:            c.Name,
		Backend:         c.Backend,
		UpstreamModel:   c.UpstreamModel,
		Active:          true,
		TimeoutClass:    c.TimeoutClass,
		PromptVariant:   c.PromptVariant,
		ResponseHandler: c.ResponseHandler,
		CostPerCallUSD:  c.CostPerCallUSD,
	}
}
