package xmlfile

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

const (
	rootElement = "root"
	docMarker   = "isDoc"
	dateLayout  = "2006-01-02T15:04:05"

	cdataOpenPlaceholder  = "<!--CDATAOPENTAG-->"
	cdataClosePlaceholder = "<!--CDATACLOSETAG-->"
)

// Element is a parsed XML element of the content cache document.
type Element struct {
	Name     string
	Attrs    map[string]string
	Children []*Element

	value string
}

// Value returns the node value: the first text or CDATA child, or the inner XML when the
// first child is an element. Whitespace-only content is kept when there is nothing else.
// Escaped CDATA markers are restored.
func (e *Element) Value() string {
	return e.value
}

// IsDocument reports whether the element is a content node rather than a property.
func (e *Element) IsDocument() bool {
	_, ok := e.Attrs[docMarker]
	return ok
}

// ParseElement parses a single XML element, e.g. a property fragment.
func ParseElement(s string) (*Element, error) {
	raw := []byte(s)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("xml: no element")
			}
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(dec, raw, start)
		}
	}
}

// parseElement reads tokens up to the end of start. raw is the whole input so inner XML can
// be sliced out by decoder offsets.
func parseElement(dec *xml.Decoder, raw []byte, start xml.StartElement) (*Element, error) {
	el := &Element{Name: start.Name.Local, Attrs: make(map[string]string, len(start.Attr))}
	for _, a := range start.Attr {
		el.Attrs[a.Name.Local] = a.Value
	}

	innerStart := dec.InputOffset()
	var (
		first     bool
		firstText string
		firstElem bool
		blank     string
		textRun   bool
	)
	for {
		off := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("xml: element %s: %w", el.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			textRun = false
			child, err := parseElement(dec, raw, t)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
			if !first {
				first, firstElem = true, true
			}
		case xml.CharData:
			switch {
			case textRun:
				firstText += string(t)
			case first:
			case strings.TrimSpace(string(t)) != "":
				first, firstText, textRun = true, string(t), true
			case blank == "":
				blank = string(t)
			}
		case xml.Comment, xml.ProcInst:
			textRun = false
		case xml.EndElement:
			switch {
			case firstElem:
				el.value = string(raw[innerStart:off])
			case first:
				el.value = firstText
			default:
				el.value = blank
			}
			el.value = restoreCDATA(el.value)
			return el, nil
		}
	}
}

func restoreCDATA(s string) string {
	if !strings.Contains(s, "<!--CDATA") {
		return s
	}
	s = strings.ReplaceAll(s, cdataOpenPlaceholder, "<![CDATA[")
	return strings.ReplaceAll(s, cdataClosePlaceholder, "]]>")
}

// Decode reads a content cache document into nodes. Document elements carry the node
// attributes; their non-document children are properties in document order.
func Decode(r io.Reader) ([]*publishedcontent.Node, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var root *Element
	for root == nil {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("decode document: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if root, err = parseElement(dec, raw, start); err != nil {
				return nil, fmt.Errorf("decode document: %w", err)
			}
		}
	}

	rootID := -1
	if v, ok := root.Attrs["id"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			rootID = n
		}
	}

	var nodes []*publishedcontent.Node
	var walk func(el *Element, parent *publishedcontent.Node) error
	walk = func(el *Element, parent *publishedcontent.Node) error {
		for _, child := range el.Children {
			if !child.IsDocument() {
				continue
			}
			n, err := toNode(child, parent, rootID)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
			if err := walk(child, n); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, nil); err != nil {
		return nil, err
	}
	return nodes, nil
}

func toNode(el *Element, parent *publishedcontent.Node, rootID int) (*publishedcontent.Node, error) {
	id, err := intAttr(el, "id", 0)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("document element %s: missing or invalid id", el.Name)
	}

	n := &publishedcontent.Node{
		ID:               id,
		Name:             el.Attrs["nodeName"],
		ContentTypeAlias: el.Name,
		Path:             el.Attrs["path"],
	}
	if alias := el.Attrs["nodeTypeAlias"]; alias != "" {
		n.ContentTypeAlias = alias
	}

	defParent, defLevel := rootID, 1
	if parent != nil {
		defParent, defLevel = parent.ID, parent.Level+1
	}
	if n.ParentID, err = intAttr(el, "parentID", defParent); err != nil {
		return nil, err
	}
	if n.Level, err = intAttr(el, "level", defLevel); err != nil {
		return nil, err
	}
	if n.SortOrder, err = intAttr(el, "sortOrder", 0); err != nil {
		return nil, err
	}
	if n.Path == "" {
		if parent != nil {
			n.Path = parent.Path + "," + strconv.Itoa(id)
		} else {
			n.Path = strconv.Itoa(rootID) + "," + strconv.Itoa(id)
		}
	}
	if k := el.Attrs["key"]; k != "" {
		if n.Key, err = uuid.Parse(k); err != nil {
			return nil, fmt.Errorf("document %d: invalid key %q", id, k)
		}
	}
	n.CreateDate = timeAttr(el, "createDate")
	n.UpdateDate = timeAttr(el, "updateDate")

	for _, child := range el.Children {
		if child.IsDocument() {
			continue
		}
		n.Properties = append(n.Properties, publishedcontent.RawProperty{Alias: child.Name, Value: child.Value()})
	}
	return n, nil
}

func intAttr(el *Element, name string, def int) (int, error) {
	v, ok := el.Attrs[name]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("document element %s: invalid %s %q", el.Name, name, v)
	}
	return n, nil
}

func timeAttr(el *Element, name string) time.Time {
	v := el.Attrs[name]
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{dateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

type cdataValue struct {
	Value string `xml:",cdata"`
}

// Encode writes nodes as a content cache document. Children are nested under their parent
// ordered by sort order; nodes whose parent is not in the list are written at the top level.
func Encode(w io.Writer, nodes []*publishedcontent.Node) error {
	byID := make(map[int]*publishedcontent.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	children := make(map[int][]*publishedcontent.Node)
	var roots []*publishedcontent.Node
	for _, n := range nodes {
		if _, ok := byID[n.ParentID]; ok && n.ParentID != n.ID {
			children[n.ParentID] = append(children[n.ParentID], n)
		} else {
			roots = append(roots, n)
		}
	}
	order := func(list []*publishedcontent.Node) {
		sort.Slice(list, func(i, j int) bool {
			if list[i].SortOrder != list[j].SortOrder {
				return list[i].SortOrder < list[j].SortOrder
			}
			return list[i].ID < list[j].ID
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: rootElement}, Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: "-1"}}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}

	var write func(n *publishedcontent.Node) error
	write = func(n *publishedcontent.Node) error {
		start := xml.StartElement{Name: xml.Name{Local: elementName(n.ContentTypeAlias)}, Attr: nodeAttrs(n)}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, p := range n.Properties {
			if err := enc.EncodeElement(cdataValue{Value: p.Value}, xml.StartElement{Name: xml.Name{Local: elementName(p.Alias)}}); err != nil {
				return fmt.Errorf("encode property %s of %d: %w", p.Alias, n.ID, err)
			}
		}
		list := children[n.ID]
		order(list)
		for _, c := range list {
			if err := write(c); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	}

	order(roots)
	for _, n := range roots {
		if err := write(n); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	return enc.Flush()
}

func nodeAttrs(n *publishedcontent.Node) []xml.Attr {
	attr := func(name, value string) xml.Attr {
		return xml.Attr{Name: xml.Name{Local: name}, Value: value}
	}
	attrs := []xml.Attr{
		attr("id", strconv.Itoa(n.ID)),
		attr("parentID", strconv.Itoa(n.ParentID)),
		attr("level", strconv.Itoa(n.Level)),
		attr("sortOrder", strconv.Itoa(n.SortOrder)),
		attr("nodeName", n.Name),
		attr("path", n.Path),
	}
	if n.Key != uuid.Nil {
		attrs = append(attrs, attr("key", n.Key.String()))
	}
	if !n.CreateDate.IsZero() {
		attrs = append(attrs, attr("createDate", n.CreateDate.UTC().Format(dateLayout)))
	}
	if !n.UpdateDate.IsZero() {
		attrs = append(attrs, attr("updateDate", n.UpdateDate.UTC().Format(dateLayout)))
	}
	if elementName(n.ContentTypeAlias) != n.ContentTypeAlias {
		attrs = append(attrs, attr("nodeTypeAlias", n.ContentTypeAlias))
	}
	return append(attrs, attr(docMarker, ""))
}

// elementName makes an alias usable as an XML element name.
func elementName(alias string) string {
	if alias == "" {
		return "node"
	}
	var b strings.Builder
	for i, r := range alias {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
			b.WriteRune(r)
		case i == 0 && r >= '0' && r <= '9':
			// names cannot start with a digit
			b.WriteRune('_')
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
