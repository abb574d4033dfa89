package backend

import (
	"bufio"
	"encoding/xml"
	"io"
)

// Attr is one attribute of a Node.
type Attr struct {
	Name, Value string
}

// Node is an element of a tree backend's output: an element with ordered
// attributes and children, or a text node when Tag is empty.
type Node struct {
	Tag      string
	Attrs    []Attr
	Children []*Node
	Text     string
}

// Elem returns an element node.
func Elem(tag string, attrs ...Attr) *Node {
	return &Node{Tag: tag, Attrs: attrs}
}

// TextNode returns a text node.
func TextNode(s string) *Node { return &Node{Text: s} }

// Append adds children to n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Set appends an attribute and returns n.
func (n *Node) Set(name, value string) *Node {
	n.Attrs = append(n.Attrs, Attr{name, value})
	return n
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Walk calls fn for n and its descendants in document order until fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// WriteXML serializes the tree rooted at n.
func (n *Node) WriteXML(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := n.write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

func (n *Node) write(w *bufio.Writer) error {
	if n.Tag == "" {
		return xml.EscapeText(w, []byte(n.Text))
	}
	w.WriteByte('<')
	w.WriteString(n.Tag)
	for _, a := range n.Attrs {
		w.WriteByte(' ')
		w.WriteString(a.Name)
		w.WriteString(`="`)
		if err := xml.EscapeText(w, []byte(a.Value)); err != nil {
			return err
		}
		w.WriteByte('"')
	}
	if len(n.Children) == 0 {
		_, err := w.WriteString("/>")
		return err
	}
	w.WriteByte('>')
	for _, c := range n.Children {
		if err := c.write(w); err != nil {
			return err
		}
	}
	w.WriteString("</")
	w.WriteString(n.Tag)
	_, err := w.WriteString(">")
	return err
}
