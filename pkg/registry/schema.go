// pkg/registry/schema.go
package registry

// SelectorRegistry maps named page elements to ordered selector chains. The
// first selector of a chain is the preferred one; later entries are fallbacks
// for older portal layouts.
type SelectorRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Elements    []Element `json:"elements"`
}

// Element names are "<scope>.<field>", where scope is a signup flow ("parent",
// "adult") or "common" for elements both flows share.
type Element struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Selectors   []string `json:"selectors"`
	Tags        []string `json:"tags,omitempty"`
}
