// Package workspace manages the directory a build renders into, supporting
// both staged and in-place modes.
//
// Staged mode renders into a timestamped sibling of the output directory
// (e.g. .site-staging-20251214-122336-*) and promotes it over the output with
// a rename once the build is accepted, so a failed build never leaves a half
// written site behind.
//
// In-place mode renders straight into the output directory, keeping files
// from earlier builds that the current build does not rewrite.
package workspace
