// Package parser turns listing HTML into queryable nodes and normalises the values read from them.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is the query surface the collector needs from a parsed page.
type Node interface {
	// Find returns the first descendant matching tag and class.
	Find(tag, class string) (Node, bool)
	// FindAll returns every descendant matching tag and class in document order.
	FindAll(tag, class string) []Node
	Attr(name string) (string, bool)
	Text() string
}

// Document is a parsed HTML page.
type Document struct {
	selectionNode
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{selectionNode{sel: doc.Selection}}, nil
}

// ParseBytes is Parse for an in-memory body.
func ParseBytes(body []byte) (*Document, error) {
	return Parse(bytes.NewReader(body))
}

// Selector builds a CSS selector from a tag and a space separated class list.
func Selector(tag, class string) string {
	classes := strings.Fields(class)
	if len(classes) == 0 {
		return tag
	}
	return tag + "." + strings.Join(classes, ".")
}

type selectionNode struct {
	sel *goquery.Selection
}

func (n selectionNode) Find(tag, class string) (Node, bool) {
	found := n.sel.Find(Selector(tag, class)).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: found}, true
}

func (n selectionNode) FindAll(tag, class string) []Node {
	found := n.sel.Find(Selector(tag, class))
	nodes := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, selectionNode{sel: s})
	})
	return nodes
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}
