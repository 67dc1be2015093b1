package converters

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

const documentUDIPrefix = "umb://document/"

// ErrResolverNotBound indicates a content link was resolved before a resolver was bound.
var ErrResolverNotBound = errors.New("content resolver not bound")

// ContentResolver looks published content up for picked references. *publishedcontent.Cache
// implements it.
type ContentResolver interface {
	ResolveContent(id int, preview bool) (*publishedcontent.Content, error)
	ResolveContentByKey(key uuid.UUID, preview bool) (*publishedcontent.Content, error)
}

// ContentPicker converts a reference to another content item into a *ContentLink.
// The raw value is an integer id, a key, or a document UDI (umb://document/<hex key>).
//
// At Request or None level the link is resolved during conversion, since the result dies with
// the request. At longer levels the link resolves lazily. Links of a view's property resolve in
// the view's pinned snapshot; shared links resolve against the cache, so they never embed content
// from an older snapshot.
type ContentPicker struct {
	resolver atomic.Pointer[resolverRef]
}

type resolverRef struct {
	r ContentResolver
}

// NewContentPicker creates a picker. r may be nil and bound later with Bind.
func NewContentPicker(r ContentResolver) *ContentPicker {
	p := &ContentPicker{}
	if r != nil {
		p.Bind(r)
	}
	return p
}

// Bind sets the resolver used by links created from now on.
func (p *ContentPicker) Bind(r ContentResolver) {
	p.resolver.Store(&resolverRef{r: r})
}

func (p *ContentPicker) current() ContentResolver {
	if ref := p.resolver.Load(); ref != nil {
		return ref.r
	}
	return nil
}

type pickedRef struct {
	id  int
	key uuid.UUID
}

// ParseReference parses a picked content reference.
func ParseReference(source string) (id int, key uuid.UUID, err error) {
	s := strings.TrimSpace(source)
	if n, convErr := strconv.Atoi(s); convErr == nil {
		return n, uuid.Nil, nil
	}
	s = strings.TrimPrefix(s, documentUDIPrefix)
	key, err = uuid.Parse(s)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("content picker: invalid reference %q", source)
	}
	return 0, key, nil
}

func (p *ContentPicker) HasValue(source string) bool { return notBlank(source) }

func (p *ContentPicker) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	if !notBlank(source) {
		return nil, nil
	}
	id, key, err := ParseReference(source)
	if err != nil {
		return nil, err
	}
	return pickedRef{id: id, key: key}, nil
}

func (p *ContentPicker) ConvertInterToObject(pt *publishedcontent.PropertyType, level publishedcontent.CacheLevel, inter any, preview bool) (any, error) {
	return p.ConvertInterToObjectIn(nil, pt, level, inter, preview)
}

func (p *ContentPicker) ConvertInterToObjectIn(graph publishedcontent.ContentGraph, _ *publishedcontent.PropertyType, level publishedcontent.CacheLevel, inter any, preview bool) (any, error) {
	if inter == nil {
		return (*ContentLink)(nil), nil
	}
	ref, ok := inter.(pickedRef)
	if !ok {
		return nil, fmt.Errorf("content picker: unexpected intermediate %T", inter)
	}

	link := &ContentLink{ID: ref.id, Key: ref.key, Preview: preview, resolver: p.current(), graph: graph}
	if level == publishedcontent.CacheLevelRequest || level == publishedcontent.CacheLevelNone {
		c, err := link.Resolve()
		if err != nil {
			return nil, err
		}
		link.content = c
	}
	return link, nil
}

func (p *ContentPicker) DefaultValue() any { return (*ContentLink)(nil) }

func (p *ContentPicker) CacheLevel() publishedcontent.CacheLevel {
	return publishedcontent.CacheLevelSnapshot
}

// ContentLink is a picked reference to another content item.
type ContentLink struct {
	ID      int
	Key     uuid.UUID
	Preview bool

	resolver ContentResolver
	graph    publishedcontent.ContentGraph
	content  *publishedcontent.Content
}

// Resolved reports whether the target was resolved during conversion.
func (l *ContentLink) Resolved() bool {
	return l != nil && l.content != nil
}

// Resolve returns the target content. An eagerly resolved link returns the embedded item;
// a lazy link looks the target up in its view, or in the current snapshot, on every call.
func (l *ContentLink) Resolve() (*publishedcontent.Content, error) {
	if l == nil {
		return nil, publishedcontent.ErrContentNotFound
	}
	if l.content != nil {
		return l.content, nil
	}
	if l.graph != nil {
		if l.ID != 0 {
			return l.graph.Content(l.ID)
		}
		return l.graph.ContentByKey(l.Key)
	}
	if l.resolver == nil {
		return nil, ErrResolverNotBound
	}
	if l.ID != 0 {
		return l.resolver.ResolveContent(l.ID, l.Preview)
	}
	return l.resolver.ResolveContentByKey(l.Key, l.Preview)
}

// UDI returns the document UDI of a key reference, or "" for an id reference.
func (l *ContentLink) UDI() string {
	if l == nil || l.Key == uuid.Nil {
		return ""
	}
	return documentUDIPrefix + strings.ReplaceAll(l.Key.String(), "-", "")
}

func (l *ContentLink) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if l.ID != 0 {
		out["id"] = l.ID
	}
	if l.Key != uuid.Nil {
		out["key"] = l.Key
		out["udi"] = l.UDI()
	}
	if l.content != nil {
		out["id"] = l.content.ID()
		out["name"] = l.content.Name()
	}
	return json.Marshal(out)
}
