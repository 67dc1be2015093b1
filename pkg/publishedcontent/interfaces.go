package publishedcontent

import (
	"context"
	"io"
	"strconv"
	"time"
)

// Backend supplies raw published content. The pipeline depends only on this capability set.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Load reads the current published and draft nodes. It returns ErrNotModified when the
	// data did not change since the previous successful load.
	Load(ctx context.Context) (*NodeSet, error)

	// OwnsStructuralView reports whether raw values have a structural (XML-like) representation.
	OwnsStructuralView() bool

	// NewProperty creates the backend's PublishedProperty variant for one raw value.
	NewProperty(pt *PropertyType, contentID int, raw RawValue, preview bool, scopes Scopes) (PublishedProperty, error)
}

// ContentTypes resolves the property types of a content type.
type ContentTypes interface {
	// PropertyTypes returns the ordered property types declared by a content type.
	PropertyTypes(contentTypeAlias string) ([]*PropertyType, bool)

	// Fallback returns the property type used for aliases no content type declares.
	Fallback(alias string) *PropertyType
}

// DocumentStore reads and writes whole documents, such as the XML content cache file.
type DocumentStore interface {
	// Get opens a document for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes a document, replacing any previous version
	Put(ctx context.Context, key string, reader io.Reader) error

	// Delete removes a document
	Delete(ctx context.Context, key string) error

	// Stat retrieves metadata for a document
	Stat(ctx context.Context, key string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about a stored document
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// Version returns a string that changes whenever the document changes.
func (m *ObjectMeta) Version() string {
	if m.ETag != "" {
		return m.ETag
	}
	return m.UpdatedAt.UTC().Format(time.RFC3339Nano) + "/" + strconv.FormatInt(m.Size, 10)
}
