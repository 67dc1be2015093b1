package publishedcontent

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Content is one published content item with its properties in declaration order.
// It owns its properties and, like them, is used by one goroutine at a time.
type Content struct {
	node       *Node
	preview    bool
	properties []PublishedProperty
	byAlias    map[string]int
}

// newContent builds the properties of a node: declared properties first in declaration order,
// then raw values no declaration covers, through the registry fallback.
func newContent(backend Backend, types ContentTypes, node *Node, preview bool, scopes Scopes) (*Content, error) {
	c := &Content{
		node:    node,
		preview: preview,
		byAlias: make(map[string]int, len(node.Properties)),
	}

	add := func(pt *PropertyType, raw RawValue) error {
		key := strings.ToLower(pt.Alias())
		if _, exists := c.byAlias[key]; exists {
			return nil
		}
		prop, err := backend.NewProperty(pt, node.ID, raw, preview, scopes)
		if err != nil {
			return err
		}
		c.byAlias[key] = len(c.properties)
		c.properties = append(c.properties, prop)
		return nil
	}

	if declared, ok := types.PropertyTypes(node.ContentTypeAlias); ok {
		for _, pt := range declared {
			if err := add(pt, node.RawValue(pt.Alias())); err != nil {
				return nil, err
			}
		}
	}
	for _, rp := range node.Properties {
		if _, exists := c.byAlias[strings.ToLower(rp.Alias)]; exists {
			continue
		}
		pt := types.Fallback(rp.Alias)
		if pt == nil {
			continue
		}
		if err := add(pt, Raw(rp.Value)); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Content) ID() int                  { return c.node.ID }
func (c *Content) Key() uuid.UUID           { return c.node.Key }
func (c *Content) ParentID() int            { return c.node.ParentID }
func (c *Content) Level() int               { return c.node.Level }
func (c *Content) SortOrder() int           { return c.node.SortOrder }
func (c *Content) Name() string             { return c.node.Name }
func (c *Content) ContentTypeAlias() string { return c.node.ContentTypeAlias }
func (c *Content) Path() string             { return c.node.Path }
func (c *Content) CreateDate() time.Time    { return c.node.CreateDate }
func (c *Content) UpdateDate() time.Time    { return c.node.UpdateDate }

// Preview reports whether the item was built from draft data.
func (c *Content) Preview() bool { return c.preview }

// Properties returns the properties in declaration order.
func (c *Content) Properties() []PublishedProperty {
	return c.properties
}

// Property looks a property up by alias, case-insensitively.
func (c *Content) Property(alias string) (PublishedProperty, bool) {
	i, ok := c.byAlias[strings.ToLower(alias)]
	if !ok {
		return nil, false
	}
	return c.properties[i], true
}

// Value returns the converted value of a property, or nil when the item has no such property.
func (c *Content) Value(alias string) any {
	if p, ok := c.Property(alias); ok {
		return p.Value()
	}
	return nil
}

// HasValue reports whether the item has a non-empty value for alias.
func (c *Content) HasValue(alias string) bool {
	p, ok := c.Property(alias)
	return ok && p.HasValue()
}
