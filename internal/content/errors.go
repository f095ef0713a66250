package content

import (
	"errors"
	"fmt"

	foundationerrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

var (
	// ErrSourceUnavailable means the CMS could not be reached or kept failing after retries.
	ErrSourceUnavailable = errors.New("content source unavailable")
	// ErrSchemaMismatch means an entry lacks a required field or has one of the wrong shape.
	ErrSchemaMismatch = errors.New("content schema mismatch")
)

// SchemaMismatchError names the entry and field that failed to decode.
type SchemaMismatchError struct {
	Kind    Kind
	EntryID string
	Field   string
	Reason  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s %s: field %q %s", e.Kind, e.EntryID, e.Field, e.Reason)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

func schemaMismatch(kind Kind, id, field, reason string) error {
	cause := &SchemaMismatchError{Kind: kind, EntryID: id, Field: field, Reason: reason}
	return foundationerrors.SchemaError("entry does not match content type").
		WithCause(cause).
		WithContext("kind", string(kind)).
		WithContext("entry_id", id).
		WithContext("field", field).
		Build()
}

func sourceUnavailable(kind Kind, attempts int, cause error) error {
	return foundationerrors.NetworkError("content source unavailable").
		WithCause(fmt.Errorf("%w: %w", ErrSourceUnavailable, cause)).
		WithContext("kind", string(kind)).
		WithContext("attempts", attempts).
		Build()
}

func sourceRejected(kind Kind, status int, cause error) error {
	b := foundationerrors.ContentError("content source rejected request")
	if status == 401 || status == 403 {
		b = foundationerrors.AuthError("content source rejected credentials")
	}
	return b.WithCause(fmt.Errorf("%w: %w", ErrSourceUnavailable, cause)).
		WithContext("kind", string(kind)).
		WithContext("status", status).
		Build()
}
