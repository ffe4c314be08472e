package mock

import "github.com/fwojciec/prefetch"

var _ prefetch.Element = (*Element)(nil)

// Element is a mock implementation of prefetch.Element.
type Element struct {
	TextFn func() string
	AttrFn func(name string) (string, bool)
}

func (e *Element) Text() string {
	return e.TextFn()
}

func (e *Element) Attr(name string) (string, bool) {
	return e.AttrFn(name)
}
