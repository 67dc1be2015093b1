package publishedcontent

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ValueConverter turns a raw stored value into a runtime object in two stages.
//
// ConvertSourceToInter must be a pure function of (source, preview). ConvertInterToObject may
// additionally depend on the cache level the result is going to be stored at. Converters may return
// errors (or even panic) on malformed data; the PropertyType absorbs both and falls back to DefaultValue.
type ValueConverter interface {
	// HasValue reports whether a raw value counts as non-empty.
	HasValue(source string) bool

	// ConvertSourceToInter converts the raw value into the intermediate representation.
	ConvertSourceToInter(pt *PropertyType, source string, preview bool) (any, error)

	// ConvertInterToObject converts the intermediate value into the final object.
	ConvertInterToObject(pt *PropertyType, level CacheLevel, inter any, preview bool) (any, error)

	// DefaultValue is the type-appropriate empty object.
	DefaultValue() any

	// CacheLevel is the level the converter declares safe for its results.
	CacheLevel() CacheLevel
}

// ContentGraph resolves content within one pinned snapshot. *View implements it.
type ContentGraph interface {
	Content(id int) (*Content, error)
	ContentByKey(key uuid.UUID) (*Content, error)
}

// GraphConverter is implemented by converters whose object value references other content.
// For properties owned by a view, and cached no longer than the view lives, the pipeline calls
// ConvertInterToObjectIn with the view's graph instead of ConvertInterToObject.
type GraphConverter interface {
	ConvertInterToObjectIn(graph ContentGraph, pt *PropertyType, level CacheLevel, inter any, preview bool) (any, error)
}

// PropertyType describes how the values of one property are converted and cached.
// It is immutable and shared by reference between every property instance of its type.
type PropertyType struct {
	alias            string
	contentTypeAlias string
	editorAlias      string
	converter        ValueConverter
	cacheLevel       CacheLevel
	logger           *slog.Logger
}

// PropertyTypeOption configures a PropertyType at construction.
type PropertyTypeOption func(*PropertyType)

// WithContentTypeAlias records the content type that declares the property.
func WithContentTypeAlias(alias string) PropertyTypeOption {
	return func(pt *PropertyType) {
		pt.contentTypeAlias = alias
	}
}

// WithEditorAlias records the editor alias the converter was resolved from.
func WithEditorAlias(alias string) PropertyTypeOption {
	return func(pt *PropertyType) {
		pt.editorAlias = alias
	}
}

// WithCacheLevel overrides the converter's declared cache level.
func WithCacheLevel(level CacheLevel) PropertyTypeOption {
	return func(pt *PropertyType) {
		pt.cacheLevel = level
	}
}

// WithConversionLogger sets the logger used to report absorbed conversion failures.
func WithConversionLogger(logger *slog.Logger) PropertyTypeOption {
	return func(pt *PropertyType) {
		pt.logger = logger
	}
}

// NewPropertyType creates a property type. The declared cache level falls back to the
// converter's level, then to CacheLevelContent.
func NewPropertyType(alias string, converter ValueConverter, opts ...PropertyTypeOption) (*PropertyType, error) {
	if alias == "" {
		return nil, &InvalidArgumentError{Op: "new property type", Arg: "alias"}
	}
	if converter == nil {
		return nil, &InvalidArgumentError{Op: "new property type", Arg: "converter"}
	}

	pt := &PropertyType{
		alias:     alias,
		converter: converter,
	}
	for _, opt := range opts {
		opt(pt)
	}

	if !pt.cacheLevel.IsValid() {
		return nil, &InvalidArgumentError{Op: "new property type", Arg: fmt.Sprintf("cache level %d", int(pt.cacheLevel))}
	}
	if pt.cacheLevel == CacheLevelUnknown {
		pt.cacheLevel = converter.CacheLevel()
	}
	if pt.cacheLevel == CacheLevelUnknown || !pt.cacheLevel.IsValid() {
		pt.cacheLevel = CacheLevelContent
	}
	if pt.logger == nil {
		pt.logger = slog.Default()
	}

	return pt, nil
}

// Alias returns the property alias.
func (pt *PropertyType) Alias() string { return pt.alias }

// ContentTypeAlias returns the alias of the declaring content type, if known.
func (pt *PropertyType) ContentTypeAlias() string { return pt.contentTypeAlias }

// EditorAlias returns the editor alias, if known.
func (pt *PropertyType) EditorAlias() string { return pt.editorAlias }

// CacheLevel returns the declared cache level. It is never CacheLevelUnknown.
func (pt *PropertyType) CacheLevel() CacheLevel { return pt.cacheLevel }

// Converter returns the value converter.
func (pt *PropertyType) Converter() ValueConverter { return pt.converter }

// DefaultValue returns the converter's empty object.
func (pt *PropertyType) DefaultValue() any { return pt.converter.DefaultValue() }

// HasValue applies the converter's emptiness rule to a raw value.
func (pt *PropertyType) HasValue(source string) bool {
	return pt.converter.HasValue(source)
}

// conversionFailure is the intermediate value of a raw value that could not be converted.
type conversionFailure struct {
	err error
}

// ConvertSourceToInter runs the first conversion stage. Failures yield an intermediate
// value that ConvertInterToObject maps to the default object.
func (pt *PropertyType) ConvertSourceToInter(source string, preview bool) any {
	inter, err := pt.safely(func() (any, error) {
		return pt.converter.ConvertSourceToInter(pt, source, preview)
	})
	if err != nil {
		pt.logger.Warn("Property source conversion failed",
			"alias", pt.alias, "content_type", pt.contentTypeAlias, "preview", preview, "err", err)
		return conversionFailure{err: err}
	}
	return inter
}

// ConvertInterToObject runs the second conversion stage at the given cache level.
func (pt *PropertyType) ConvertInterToObject(level CacheLevel, inter any, preview bool) any {
	return pt.ConvertInterToObjectIn(nil, level, inter, preview)
}

// ConvertInterToObjectIn runs the second conversion stage against graph. A nil graph, or a
// converter that is not a GraphConverter, uses the plain ConvertInterToObject.
func (pt *PropertyType) ConvertInterToObjectIn(graph ContentGraph, level CacheLevel, inter any, preview bool) any {
	if _, failed := inter.(conversionFailure); failed {
		return pt.converter.DefaultValue()
	}
	obj, err := pt.safely(func() (any, error) {
		if gc, ok := pt.converter.(GraphConverter); ok && graph != nil {
			return gc.ConvertInterToObjectIn(graph, pt, level, inter, preview)
		}
		return pt.converter.ConvertInterToObject(pt, level, inter, preview)
	})
	if err != nil {
		pt.logger.Warn("Property object conversion failed",
			"alias", pt.alias, "content_type", pt.contentTypeAlias, "level", level.String(), "preview", preview, "err", err)
		return pt.converter.DefaultValue()
	}
	return obj
}

func (pt *PropertyType) safely(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("converter panic: %v", r)
		}
	}()
	return fn()
}
