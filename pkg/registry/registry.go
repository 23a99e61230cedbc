package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/thermaleye/backoffice/pkg/observability"
)

// Registry is the immutable table of entity configurations. It is built once
// at process start and only read afterwards, so concurrent use needs no
// locking. Tests construct fixture registries with New rather than mutating
// a shared instance.
type Registry struct {
	configs map[string]*EntityConfig
	kinds   []string
}

// New builds a registry from the given configs and validates them.
// Validation failures that would leave the registry unusable return an
// error; recoverable issues (dangling FK targets) are logged as warnings so
// a partially rolled-out configuration cannot take the process down.
func New(logger *observability.Logger, configs ...*EntityConfig) (*Registry, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	r := &Registry{configs: make(map[string]*EntityConfig, len(configs))}
	for _, cfg := range configs {
		if cfg.Kind == "" {
			return nil, fmt.Errorf("entity config with empty kind")
		}
		if cfg.Table == "" {
			return nil, fmt.Errorf("entity %q: storage table is required", cfg.Kind)
		}
		if len(cfg.Columns) == 0 || cfg.Columns[0].Name != "id" {
			return nil, fmt.Errorf("entity %q: first column must be id", cfg.Kind)
		}
		if _, dup := r.configs[cfg.Kind]; dup {
			return nil, fmt.Errorf("duplicate entity kind %q", cfg.Kind)
		}
		r.configs[cfg.Kind] = cfg
	}

	for _, cfg := range r.configs {
		r.validate(logger, cfg)
	}

	r.kinds = make([]string, 0, len(r.configs))
	for kind := range r.configs {
		r.kinds = append(r.kinds, kind)
	}
	sort.Strings(r.kinds)

	return r, nil
}

// LoadFile reads entity configurations from a YAML file.
func LoadFile(logger *observability.Logger, path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity config file: %w", err)
	}
	var doc struct {
		Entities []*EntityConfig `yaml:"entities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse entity config file: %w", err)
	}
	return New(logger, doc.Entities...)
}

// validate checks the recoverable parts of one config, logging warnings
// instead of failing.
func (r *Registry) validate(logger *observability.Logger, cfg *EntityConfig) {
	log := logger.WithField("kind", cfg.Kind)

	for field, target := range cfg.FKFields {
		if !cfg.HasColumn(field) {
			log.Warnf("fk field %q is not a declared column", field)
		}
		if _, ok := r.configs[target]; !ok {
			log.Warnf("fk field %q references unregistered kind %q", field, target)
		}
	}
	for _, level := range cfg.OwnershipHierarchy {
		if !cfg.HasColumn(level.Field) {
			log.Warnf("ownership hierarchy field %q is not a declared column", level.Field)
		}
	}
	for _, field := range cfg.SearchFields {
		if !cfg.HasColumn(field) {
			log.Warnf("search field %q is not a declared column", field)
		}
	}
	for field := range cfg.BaseFilters {
		if !cfg.HasColumn(field) {
			log.Warnf("base filter field %q is not a declared column", field)
		}
	}
	for _, token := range templateTokens(cfg.FKDisplayTemplate) {
		if !safeTemplateField(cfg, token) {
			log.Warnf("display template token %q is outside the safe field set", token)
		}
	}
}

// Get returns the config for a kind, or nil when unregistered.
func (r *Registry) Get(kind string) *EntityConfig {
	return r.configs[kind]
}

// Kinds returns every registered kind, sorted.
func (r *Registry) Kinds() []string {
	return r.kinds
}

// LabelKinds returns the kinds that expose an FK display template, i.e. the
// kinds the FK options cache serves.
func (r *Registry) LabelKinds() []string {
	out := make([]string, 0, len(r.kinds))
	for _, kind := range r.kinds {
		if r.configs[kind].FKDisplayTemplate != "" {
			out = append(out, kind)
		}
	}
	return out
}
