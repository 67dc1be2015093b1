// Package converters provides the built-in value converters, keyed by property editor alias.
package converters

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Editor aliases of the built-in converters.
const (
	EditorText          = "text"
	EditorTextarea      = "textarea"
	EditorInteger       = "integer"
	EditorDecimal       = "decimal"
	EditorBoolean       = "boolean"
	EditorDateTime      = "datetime"
	EditorMarkdown      = "markdown"
	EditorTags          = "tags"
	EditorJSON          = "json"
	EditorContentPicker = "contentpicker"
)

// Registry maps editor aliases to value converters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byEditor map[string]publishedcontent.ValueConverter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byEditor: make(map[string]publishedcontent.ValueConverter)}
}

// Default creates a registry holding every built-in converter. The content picker
// resolves through picker, which may be bound after the cache exists.
func Default(picker *ContentPicker) *Registry {
	if picker == nil {
		picker = NewContentPicker(nil)
	}
	r := NewRegistry()
	r.Register(EditorText, Text{})
	r.Register(EditorTextarea, Text{})
	r.Register(EditorInteger, Integer{})
	r.Register(EditorDecimal, Decimal{})
	r.Register(EditorBoolean, Boolean{})
	r.Register(EditorDateTime, DateTime{})
	r.Register(EditorMarkdown, NewMarkdown())
	r.Register(EditorTags, Tags{})
	r.Register(EditorJSON, JSON{})
	r.Register(EditorContentPicker, picker)
	return r
}

// Register adds or replaces the converter of an editor alias. Aliases are case-insensitive.
func (r *Registry) Register(editor string, c publishedcontent.ValueConverter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byEditor[strings.ToLower(editor)] = c
}

// Lookup returns the converter of an editor alias.
func (r *Registry) Lookup(editor string) (publishedcontent.ValueConverter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byEditor[strings.ToLower(editor)]
	if !ok {
		return nil, fmt.Errorf("editor %q: %w", editor, publishedcontent.ErrUnknownEditor)
	}
	return c, nil
}

// Editors returns the registered editor aliases, sorted.
func (r *Registry) Editors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byEditor))
	for k := range r.byEditor {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// notBlank is the emptiness rule of text-like raw values.
func notBlank(source string) bool {
	return strings.TrimSpace(source) != ""
}
