// Package content fetches structured entries from the headless CMS.
//
// Source is the boundary the page assembler depends on. Client talks to the
// Contentful Content Delivery API and is the only place in the pipeline that
// retries; FixtureSource reads the same entry shapes from a YAML file for
// offline builds. Both decode through one path, so a missing required field
// surfaces as ErrSchemaMismatch regardless of where the entry came from.
package content
