package page

import (
	"errors"
	"fmt"

	foundationerrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// ErrAssembly matches every route-level assembly failure.
var ErrAssembly = errors.New("page assembly failed")

// AssemblyError attributes a failure to a route and the element that caused it.
type AssemblyError struct {
	Route   string
	Element string
	Err     error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s: %s: %v", e.Route, e.Element, e.Err)
}

func (e *AssemblyError) Unwrap() []error { return []error{ErrAssembly, e.Err} }

func assemblyError(route, element string, err error) error {
	return foundationerrors.PageError("page assembly failed").
		WithCause(&AssemblyError{Route: route, Element: element, Err: err}).
		WithContext("route", route).
		WithContext("element", element).
		Build()
}
