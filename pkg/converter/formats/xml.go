package formats

import (
	"errors"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// readXML parses an XML project and returns its root element. Lookups on the
// returned tree go by local name, so default and prefixed namespaces read the
// same. Declared encodings are passed through; the editors write UTF-8
// regardless.
func readXML(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

// writeXML serialises root with a declaration, an optional directive such as
// a DOCTYPE, and two-space indentation.
func writeXML(root *etree.Element, standalone bool, directive string) ([]byte, error) {
	doc := etree.NewDocument()
	decl := `version="1.0" encoding="UTF-8"`
	if standalone {
		decl += ` standalone="no"`
	}
	doc.CreateProcInst("xml", decl)
	if directive != "" {
		doc.CreateDirective(directive)
	}
	doc.SetRoot(root)
	doc.Indent(2)
	return doc.WriteToBytes()
}

// childPath follows a chain of child element names. It returns nil as soon as
// one is missing.
func childPath(e *etree.Element, tags ...string) *etree.Element {
	for _, tag := range tags {
		if e == nil {
			return nil
		}
		e = e.SelectElement(tag)
	}
	return e
}

// childElements returns the children of e named tag; a nil e has none.
func childElements(e *etree.Element, tag string) []*etree.Element {
	if e == nil {
		return nil
	}
	return e.SelectElements(tag)
}

func childText(e *etree.Element, tag string) (string, bool) {
	c := childPath(e, tag)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.Text()), true
}

func childInt(e *etree.Element, tag string) (int64, bool) {
	s, ok := childText(e, tag)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

func attr(e *etree.Element, key string) (string, bool) {
	if e == nil {
		return "", false
	}
	a := e.SelectAttr(key)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

func attrFloat(e *etree.Element, key string) (float64, bool) {
	s, ok := attr(e, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

func attrInt(e *etree.Element, key string) (int64, bool) {
	v, ok := attrFloat(e, key)
	return int64(v), ok
}

// addElement appends a child with attributes given as key, value pairs.
func addElement(parent *etree.Element, tag string, attrs ...string) *etree.Element {
	e := parent.CreateElement(tag)
	for i := 0; i+1 < len(attrs); i += 2 {
		e.CreateAttr(attrs[i], attrs[i+1])
	}
	return e
}

// addText appends a child holding escaped text.
func addText(parent *etree.Element, tag, text string) *etree.Element {
	e := parent.CreateElement(tag)
	e.SetText(text)
	return e
}

// addCData appends a child holding its text in a CDATA section.
func addCData(parent *etree.Element, tag, text string) *etree.Element {
	e := parent.CreateElement(tag)
	e.SetCData(text)
	return e
}
