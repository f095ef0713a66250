package build

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying route failures owned by the orchestrator.
// They are always wrapped in a RouteError.
var (
	ErrDuplicateRoute = errors.New("sitebuilder: duplicate route")
	ErrRender         = errors.New("sitebuilder: render error")
	ErrRoutePanic     = errors.New("sitebuilder: route panicked")
)

// RouteError records why one route failed.
type RouteError struct {
	Route string
	Err   error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route %s: %v", e.Route, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }
