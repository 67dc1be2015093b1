package contenttype

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/converters"
)

const sample = `
contentTypes:
  - alias: homePage
    name: Home Page
    properties:
      - alias: title
        editor: text
      - alias: bodyText
        editor: markdown
        cacheLevel: snapshot
      - alias: featured
        editor: contentpicker
        cacheLevel: request
`

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(converters.Default(nil), opts...)
	require.NoError(t, err)
	return r
}

func TestLoad(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Load(strings.NewReader(sample)))

	pts, ok := r.PropertyTypes("HOMEPAGE")
	require.True(t, ok)
	require.Len(t, pts, 3)

	assert.Equal(t, "title", pts[0].Alias())
	assert.Equal(t, "homePage", pts[0].ContentTypeAlias())
	assert.Equal(t, publishedcontent.CacheLevelElements, pts[0].CacheLevel())

	assert.Equal(t, "markdown", pts[1].EditorAlias())
	assert.Equal(t, publishedcontent.CacheLevelSnapshot, pts[1].CacheLevel())
	assert.Equal(t, publishedcontent.CacheLevelRequest, pts[2].CacheLevel())

	_, ok = r.PropertyTypes("blogPost")
	assert.False(t, ok)
	assert.Len(t, r.Definitions(), 1)
}

func TestLoadRejectsUnknownEditor(t *testing.T) {
	r := newRegistry(t)
	err := r.Load(strings.NewReader(`
contentTypes:
  - alias: page
    properties:
      - alias: color
        editor: colorpicker
`))
	assert.ErrorIs(t, err, publishedcontent.ErrUnknownEditor)
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"duplicate property": `
contentTypes:
  - alias: page
    properties:
      - {alias: title, editor: text}
      - {alias: Title, editor: text}
`,
		"bad cache level": `
contentTypes:
  - alias: page
    properties:
      - {alias: title, editor: text, cacheLevel: forever}
`,
		"unknown field": `
contentTypes:
  - alias: page
    colour: red
`,
		"missing alias": `
contentTypes:
  - properties: []
`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			assert.Error(t, r.Load(strings.NewReader(doc)))
		})
	}
}

func TestFallbackIsShared(t *testing.T) {
	r := newRegistry(t)

	a := r.Fallback("metaDescription")
	require.NotNil(t, a)
	assert.Same(t, a, r.Fallback("METADESCRIPTION"))
	assert.Equal(t, "text", a.EditorAlias())
}

func TestFallbackEditorFromDocument(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Load(strings.NewReader("fallbackEditor: markdown\n")))
	assert.Equal(t, "markdown", r.Fallback("x").EditorAlias())

	err := r.Load(strings.NewReader("fallbackEditor: nope\n"))
	assert.ErrorIs(t, err, publishedcontent.ErrUnknownEditor)
}

func TestNewValidatesFallbackEditor(t *testing.T) {
	_, err := New(converters.Default(nil), WithFallbackEditor("nope"))
	assert.ErrorIs(t, err, publishedcontent.ErrUnknownEditor)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	r := newRegistry(t)
	require.NoError(t, r.LoadFile(path))
	_, ok := r.PropertyTypes("homePage")
	assert.True(t, ok)

	assert.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestEmptyDocument(t *testing.T) {
	r := newRegistry(t)
	assert.NoError(t, r.Load(strings.NewReader("")))
}
