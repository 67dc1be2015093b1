package converters

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Markdown renders markdown source to HTML. Rendering happens in the object stage so the
// rendered HTML is what the process tier shares.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a markdown converter with GitHub flavoured extensions.
func NewMarkdown() *Markdown {
	return &Markdown{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (m *Markdown) HasValue(source string) bool { return notBlank(source) }

func (m *Markdown) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	return source, nil
}

func (m *Markdown) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	src, ok := inter.(string)
	if !ok {
		return nil, fmt.Errorf("markdown: unexpected intermediate %T", inter)
	}
	if !notBlank(src) {
		return template.HTML(""), nil
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return nil, fmt.Errorf("markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func (m *Markdown) DefaultValue() any { return template.HTML("") }
func (m *Markdown) CacheLevel() publishedcontent.CacheLevel {
	return publishedcontent.CacheLevelElements
}
