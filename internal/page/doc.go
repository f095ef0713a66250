// Package page assembles the immutable model for one route from CMS
// entries, derived images and static fallback copy.
//
// Mandatory queries and required images escalate to an assembly error for
// the route. Optional elements degrade to explicit empty or absent values
// that the renderer turns into defined empty states.
package page
