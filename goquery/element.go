package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/prefetch"
)

var _ prefetch.Element = (*Element)(nil)

// Element exposes a matched link element to element-aware ignore rules.
type Element struct {
	sel *goquery.Selection
}

// Text returns the element's text with surrounding whitespace trimmed.
func (e *Element) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// Selection returns the underlying goquery selection.
func (e *Element) Selection() *goquery.Selection {
	return e.sel
}
