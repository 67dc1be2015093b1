// Package contenttype holds the content type definitions that map property aliases to
// converters and cache levels.
package contenttype

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/converters"
)

// PropertyDefinition declares one property of a content type.
type PropertyDefinition struct {
	Alias      string                      `yaml:"alias" json:"alias"`
	Editor     string                      `yaml:"editor" json:"editor"`
	CacheLevel publishedcontent.CacheLevel `yaml:"cacheLevel,omitempty" json:"cache_level,omitempty"`
}

// Definition declares a content type and its ordered properties.
type Definition struct {
	Alias      string               `yaml:"alias" json:"alias"`
	Name       string               `yaml:"name,omitempty" json:"name,omitempty"`
	Properties []PropertyDefinition `yaml:"properties" json:"properties"`
}

// Document is the YAML layout of a content type file.
type Document struct {
	ContentTypes []Definition `yaml:"contentTypes"`
	// FallbackEditor converts properties no content type declares. Defaults to "text".
	FallbackEditor string `yaml:"fallbackEditor,omitempty"`
}

// Registry resolves property types by content type alias. It implements
// publishedcontent.ContentTypes and is safe for concurrent use.
type Registry struct {
	converters *converters.Registry
	logger     *slog.Logger

	mu             sync.RWMutex
	types          map[string][]*publishedcontent.PropertyType
	definitions    map[string]Definition
	fallbackEditor string
	fallbacks      map[string]*publishedcontent.PropertyType
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to property types for conversion warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithFallbackEditor sets the editor of undeclared properties.
func WithFallbackEditor(editor string) Option {
	return func(r *Registry) {
		r.fallbackEditor = editor
	}
}

// New creates an empty registry resolving editors through convs.
func New(convs *converters.Registry, opts ...Option) (*Registry, error) {
	if convs == nil {
		return nil, errors.New("converter registry is required")
	}
	r := &Registry{
		converters:     convs,
		logger:         slog.Default(),
		types:          make(map[string][]*publishedcontent.PropertyType),
		definitions:    make(map[string]Definition),
		fallbackEditor: converters.EditorText,
		fallbacks:      make(map[string]*publishedcontent.PropertyType),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := convs.Lookup(r.fallbackEditor); err != nil {
		return nil, fmt.Errorf("fallback editor: %w", err)
	}
	return r, nil
}

// Define validates and adds (or replaces) a content type.
func (r *Registry) Define(def Definition) error {
	if strings.TrimSpace(def.Alias) == "" {
		return &publishedcontent.InvalidArgumentError{Op: "define content type", Arg: "alias"}
	}

	seen := make(map[string]struct{}, len(def.Properties))
	pts := make([]*publishedcontent.PropertyType, 0, len(def.Properties))
	for _, pd := range def.Properties {
		key := strings.ToLower(pd.Alias)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("content type %q: duplicate property %q", def.Alias, pd.Alias)
		}
		seen[key] = struct{}{}

		conv, err := r.converters.Lookup(pd.Editor)
		if err != nil {
			return fmt.Errorf("content type %q property %q: %w", def.Alias, pd.Alias, err)
		}
		pt, err := publishedcontent.NewPropertyType(pd.Alias, conv,
			publishedcontent.WithContentTypeAlias(def.Alias),
			publishedcontent.WithEditorAlias(pd.Editor),
			publishedcontent.WithCacheLevel(pd.CacheLevel),
			publishedcontent.WithConversionLogger(r.logger),
		)
		if err != nil {
			return fmt.Errorf("content type %q: %w", def.Alias, err)
		}
		pts = append(pts, pt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[strings.ToLower(def.Alias)] = pts
	r.definitions[strings.ToLower(def.Alias)] = def
	return nil
}

// Load reads a YAML document and defines every content type in it.
func (r *Registry) Load(reader io.Reader) error {
	var doc Document
	dec := yaml.NewDecoder(reader)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode content types: %w", err)
	}

	if doc.FallbackEditor != "" {
		if _, err := r.converters.Lookup(doc.FallbackEditor); err != nil {
			return fmt.Errorf("fallback editor: %w", err)
		}
		r.mu.Lock()
		r.fallbackEditor = doc.FallbackEditor
		r.fallbacks = make(map[string]*publishedcontent.PropertyType)
		r.mu.Unlock()
	}

	for _, def := range doc.ContentTypes {
		if err := r.Define(def); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile reads content types from a YAML file.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open content types: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}

// PropertyTypes returns the property types of a content type in declaration order.
func (r *Registry) PropertyTypes(contentTypeAlias string) ([]*publishedcontent.PropertyType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pts, ok := r.types[strings.ToLower(contentTypeAlias)]
	return pts, ok
}

// Fallback returns the shared property type used for an undeclared alias.
func (r *Registry) Fallback(alias string) *publishedcontent.PropertyType {
	key := strings.ToLower(alias)

	r.mu.RLock()
	pt, ok := r.fallbacks[key]
	editor := r.fallbackEditor
	r.mu.RUnlock()
	if ok {
		return pt
	}

	conv, err := r.converters.Lookup(editor)
	if err != nil {
		return nil
	}
	pt, err = publishedcontent.NewPropertyType(alias, conv,
		publishedcontent.WithEditorAlias(editor),
		publishedcontent.WithConversionLogger(r.logger),
	)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.fallbacks[key]; ok {
		return existing
	}
	r.fallbacks[key] = pt
	return pt
}

// Definitions returns the declared content types.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, d)
	}
	return out
}
