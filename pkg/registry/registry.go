// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const CommonScope = "common"

//go:embed default_selectors.json
var defaultSelectors []byte

// Default returns the built-in selector registry.
func Default() *SelectorRegistry {
	var reg SelectorRegistry
	if err := json.Unmarshal(defaultSelectors, &reg); err != nil {
		panic(fmt.Sprintf("invalid built-in selector registry: %v", err))
	}
	return &reg
}

func LoadRegistry(path string) (*SelectorRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg SelectorRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse selector registry %s: %w", path, err)
	}
	return &reg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*SelectorRegistry, error) {
	if path == "" {
		return Default(), nil
	}
	reg, err := LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Chain returns the selectors registered under name.
func (r *SelectorRegistry) Chain(name string) ([]string, bool) {
	for _, el := range r.Elements {
		if el.Name == name {
			return el.Selectors, true
		}
	}
	return nil, false
}

// ChainFor resolves field for a flow, preferring "<flow>.<field>" over
// "common.<field>".
func (r *SelectorRegistry) ChainFor(flow, field string) (string, []string, error) {
	for _, scope := range []string{flow, CommonScope} {
		name := scope + "." + field
		if chain, ok := r.Chain(name); ok {
			return name, chain, nil
		}
	}
	return "", nil, fmt.Errorf("no selectors registered for %s.%s or %s.%s", flow, field, CommonScope, field)
}

// Validate rejects unnamed, unscoped, duplicate and empty entries.
func (r *SelectorRegistry) Validate() error {
	if len(r.Elements) == 0 {
		return fmt.Errorf("registry contains no elements")
	}
	names := make(map[string]bool, len(r.Elements))
	for _, el := range r.Elements {
		if el.Name == "" {
			return fmt.Errorf("element missing required field: name")
		}
		if !strings.Contains(el.Name, ".") {
			return fmt.Errorf("element %s: name must be <scope>.<field>", el.Name)
		}
		if names[el.Name] {
			return fmt.Errorf("duplicate element name: %s", el.Name)
		}
		names[el.Name] = true
		if len(el.Selectors) == 0 {
			return fmt.Errorf("element %s has no selectors", el.Name)
		}
		for i, sel := range el.Selectors {
			if strings.TrimSpace(sel) == "" {
				return fmt.Errorf("element %s: selector %d is blank", el.Name, i)
			}
		}
	}
	return nil
}

// Save writes the registry as indented JSON, stamping LastUpdated.
func (r *SelectorRegistry) Save(path string) error {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
