// Package errors provides the classified error primitives shared by every SiteBuilder package.
//
// A ClassifiedError carries a category (content, schema, asset, page, ...), a severity and a
// retry strategy next to its message, cause and structured context. Domain packages wrap their
// sentinel errors in a ClassifiedError so that both errors.Is checks against the sentinel and
// category-based decisions (exit codes, HTTP status, retry) work on the same value.
//
// Example usage:
//
//	err := errors.ContentError("fetch entries failed").
//		WithContext("kind", "teamMember").
//		WithCause(cause).
//		Build()
package errors
