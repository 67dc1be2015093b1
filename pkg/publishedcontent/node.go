package publishedcontent

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Node states used by backends that store drafts and published versions side by side.
const (
	NodeStatePublished = "published"
	NodeStateDraft     = "draft"
)

// RawProperty is one raw property value of a node.
type RawProperty struct {
	Alias string `json:"alias"`
	Value string `json:"value"`
}

// Node is the backend-neutral raw data of one content item.
type Node struct {
	ID               int           `json:"id"`
	Key              uuid.UUID     `json:"key"`
	ParentID         int           `json:"parent_id"`
	Level            int           `json:"level"`
	SortOrder        int           `json:"sort_order"`
	Name             string        `json:"name"`
	ContentTypeAlias string        `json:"content_type_alias"`
	Path             string        `json:"path"`
	CreateDate       time.Time     `json:"create_date"`
	UpdateDate       time.Time     `json:"update_date"`
	Properties       []RawProperty `json:"properties"`
}

// RawValue returns the raw value of alias. Aliases match case-insensitively.
func (n *Node) RawValue(alias string) RawValue {
	for _, p := range n.Properties {
		if strings.EqualFold(p.Alias, alias) {
			return Raw(p.Value)
		}
	}
	return Missing
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Properties = append([]RawProperty(nil), n.Properties...)
	return &c
}

// equal reports whether two nodes carry the same data.
func (n *Node) equal(o *Node) bool {
	if n.ID != o.ID || n.Key != o.Key || n.ParentID != o.ParentID || n.Level != o.Level ||
		n.SortOrder != o.SortOrder || n.Name != o.Name || n.ContentTypeAlias != o.ContentTypeAlias ||
		n.Path != o.Path || !n.CreateDate.Equal(o.CreateDate) || !n.UpdateDate.Equal(o.UpdateDate) ||
		len(n.Properties) != len(o.Properties) {
		return false
	}
	for i := range n.Properties {
		if n.Properties[i] != o.Properties[i] {
			return false
		}
	}
	return true
}

// NodeSet is what a backend load returns: the published nodes and the draft nodes.
// Draft nodes overlay published nodes with the same id when previewing.
type NodeSet struct {
	Published []*Node
	Draft     []*Node
	// Version identifies the backend data, e.g. a document ETag. It may be empty.
	Version string
}
