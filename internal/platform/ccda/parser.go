// Package ccda extracts identity and time information from C-CDA clinical
// documents. Unlike a section-by-section importer it walks the whole XML tree,
// since dated facts appear at arbitrary depths inside entries, organizers and
// substance administrations.
package ccda

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Node is one element of the parsed document tree.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Attr returns the value of a named attribute, ignoring namespaces.
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// Tag returns the element's local name.
func (n *Node) Tag() string { return n.XMLName.Local }

// Child returns the first direct child with the given local tag, or nil.
func (n *Node) Child(tag string) *Node {
	for i := range n.Children {
		if n.Children[i].Tag() == tag {
			return &n.Children[i]
		}
	}
	return nil
}

// TimePoint is one time-bearing element found in a document, together with
// the clinical context it sits inside.
type TimePoint struct {
	// Tag is the local name of the time element: effectiveTime, low, high, time.
	Tag string
	// Raw is the unparsed timestamp from the value attribute or element text.
	Raw string
	// SectionTitle is the title of the nearest ancestor section, if any.
	SectionTitle string
	// ContextTag is the local name of the nearest ancestor clinical-context
	// element (encounter, observation, procedure, substanceAdministration,
	// act, organizer), if any.
	ContextTag string
	// Code and DisplayName come from the context element's code child.
	Code        string
	DisplayName string
}

// Document is a parsed C-CDA document.
type Document struct {
	root Node
}

// timeTags are the element names that carry timestamps.
var timeTags = map[string]bool{
	"effectiveTime": true,
	"low":           true,
	"high":          true,
	"time":          true,
}

// contextTags are the element names that establish clinical context for a
// nested time point.
var contextTags = map[string]bool{
	"encounter":               true,
	"observation":             true,
	"procedure":               true,
	"substanceAdministration": true,
	"act":                     true,
	"organizer":               true,
}

// Parse decodes a C-CDA XML document into a walkable tree.
func Parse(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("ccda: document is empty")
	}
	var root Node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("ccda: failed to parse XML: %w", err)
	}
	return &Document{root: root}, nil
}

// PatientRoleIDs returns the lowercased extension values of every
// recordTarget/patientRole/id element. These are the document's internal
// patient identifiers to validate against the filename-embedded key.
func (d *Document) PatientRoleIDs() []string {
	var ids []string
	d.walk(func(n *Node, ancestors []*Node) {
		if n.Tag() != "id" || len(ancestors) < 2 {
			return
		}
		parent := ancestors[len(ancestors)-1]
		grand := ancestors[len(ancestors)-2]
		if parent.Tag() != "patientRole" || grand.Tag() != "recordTarget" {
			return
		}
		if ext := strings.ToLower(n.Attr("extension")); ext != "" {
			ids = append(ids, ext)
		}
	})
	return ids
}

// TimePoints walks the tree and returns every time-bearing element with its
// nearest clinical context and section title. Raw values are returned
// unparsed; normalizing them is the caller's concern.
func (d *Document) TimePoints() []TimePoint {
	var points []TimePoint
	d.walk(func(n *Node, ancestors []*Node) {
		if !timeTags[n.Tag()] {
			return
		}
		raw := n.Attr("value")
		if raw == "" {
			raw = strings.TrimSpace(n.Text)
		}
		if raw == "" {
			return
		}

		point := TimePoint{Tag: n.Tag(), Raw: raw}
		for i := len(ancestors) - 1; i >= 0; i-- {
			anc := ancestors[i]
			if point.ContextTag == "" && contextTags[anc.Tag()] {
				point.ContextTag = anc.Tag()
				if code := anc.Child("code"); code != nil {
					point.Code = code.Attr("code")
					point.DisplayName = code.Attr("displayName")
				}
			}
			if anc.Tag() == "section" {
				if title := anc.Child("title"); title != nil {
					point.SectionTitle = strings.TrimSpace(title.Text)
				}
				break
			}
		}
		points = append(points, point)
	})
	return points
}

// walk visits every node depth-first, passing the ancestor chain from the
// root down to the node's parent.
func (d *Document) walk(visit func(n *Node, ancestors []*Node)) {
	var rec func(n *Node, ancestors []*Node)
	rec = func(n *Node, ancestors []*Node) {
		visit(n, ancestors)
		next := append(ancestors, n)
		for i := range n.Children {
			rec(&n.Children[i], next)
		}
	}
	rec(&d.root, nil)
}
