// Package build runs a site build: every configured route is assembled and
// rendered concurrently, failures stay confined to their route, and the
// outcome is recorded in a manifest.
//
// Orchestrator drives the routes of one build. Service is the canonical entry
// point used by the CLI and the daemon; it wraps the orchestrator with the
// staging workspace, the manifest and the image export.
package build
