package xmlfile

import "github.com/tendant/published-content/pkg/publishedcontent"

// Property is the published property of the XML cache. Every value in the document is a
// string, and property graphs are per request, so the property converts at Content level,
// keeps no intermediate value and never touches the shared tiers.
type Property struct {
	pt      *publishedcontent.PropertyType
	source  string
	preview bool
	object  publishedcontent.Memo
}

// NewProperty creates a property from its XML element. A nil element is a programming error.
func NewProperty(pt *publishedcontent.PropertyType, preview bool, el *Element) (*Property, error) {
	if el == nil {
		return nil, &publishedcontent.InvalidArgumentError{Op: "new xml property", Arg: "element"}
	}
	return NewPropertyFromString(pt, preview, el.Value())
}

// NewPropertyFromString creates a property from an already extracted node value.
func NewPropertyFromString(pt *publishedcontent.PropertyType, preview bool, source string) (*Property, error) {
	if pt == nil {
		return nil, &publishedcontent.InvalidArgumentError{Op: "new xml property", Arg: "property type"}
	}
	return &Property{pt: pt, source: source, preview: preview}, nil
}

// NewEmptyProperty creates the property of an alias the document holds no element for.
func NewEmptyProperty(pt *publishedcontent.PropertyType, preview bool) (*Property, error) {
	return NewPropertyFromString(pt, preview, "")
}

func (p *Property) Alias() string                                { return p.pt.Alias() }
func (p *Property) PropertyType() *publishedcontent.PropertyType { return p.pt }
func (p *Property) SourceValue() string                          { return p.source }

func (p *Property) HasValue() bool {
	return p.pt.HasValue(p.source)
}

func (p *Property) Value() any {
	return p.object.Get(func() any {
		inter := p.pt.ConvertSourceToInter(p.source, p.preview)
		return p.pt.ConvertInterToObject(publishedcontent.CacheLevelContent, inter, p.preview)
	})
}

// XPathValue is not provided by the XML cache even though its source is XML.
func (p *Property) XPathValue() (any, error) {
	return nil, &publishedcontent.CapabilityError{Backend: backendName, Capability: "xpath value"}
}
