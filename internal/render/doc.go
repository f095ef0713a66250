// Package render writes page models as static HTML using the embedded
// templates, one index.html per route, together with the derived images the
// page references.
package render
