// Package nodeset assembles node sets from the row shape shared by the SQL backends.
package nodeset

import (
	"fmt"
	"sort"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Node states as stored in the state column.
const (
	StatePublished = publishedcontent.NodeStatePublished
	StateDraft     = publishedcontent.NodeStateDraft
)

// ValidState reports whether state is a known node state.
func ValidState(state string) bool {
	return state == StatePublished || state == StateDraft
}

type nodeKey struct {
	id    int
	state string
}

// Assembler collects node rows and property rows in any order.
type Assembler struct {
	nodes map[nodeKey]*publishedcontent.Node
}

func NewAssembler() *Assembler {
	return &Assembler{nodes: make(map[nodeKey]*publishedcontent.Node)}
}

// AddNode registers a node row.
func (a *Assembler) AddNode(state string, n *publishedcontent.Node) error {
	if !ValidState(state) {
		return fmt.Errorf("node %d: unknown state %q", n.ID, state)
	}
	a.nodes[nodeKey{n.ID, state}] = n
	return nil
}

// AddProperty appends a property row to its node. Rows must arrive in position order.
// Rows of unknown nodes are ignored.
func (a *Assembler) AddProperty(id int, state, alias, value string) {
	n, ok := a.nodes[nodeKey{id, state}]
	if !ok {
		return
	}
	n.Properties = append(n.Properties, publishedcontent.RawProperty{Alias: alias, Value: value})
}

// NodeSet returns the assembled set, nodes ordered by id.
func (a *Assembler) NodeSet(version string) *publishedcontent.NodeSet {
	set := &publishedcontent.NodeSet{Version: version}
	for k, n := range a.nodes {
		if k.state == StatePublished {
			set.Published = append(set.Published, n)
		} else {
			set.Draft = append(set.Draft, n)
		}
	}
	byID := func(list []*publishedcontent.Node) {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	byID(set.Published)
	byID(set.Draft)
	return set
}
