// Package asset derives sized, re-encoded image variants and inline
// placeholders from CMS assets.
//
// A derivation is a pure function of the source identity (asset id and
// content hash) and the requested Spec, so its cache key never needs
// invalidation: a changed source produces a new key. Engine keeps an
// in-process cache with first-writer-wins inserts, collapses concurrent
// requests for one key into a single derivation, and optionally persists
// results across builds through a storage.ObjectStore and an Index.
package asset
