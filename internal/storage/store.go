// Package storage provides content-addressable storage for derived image payloads.
package storage

import (
	"context"
	"errors"
	"time"
)

// ObjectStore stores payloads by the SHA-256 of their bytes. Identical
// payloads produced by different derivations share one object.
type ObjectStore interface {
	// Put stores an object and returns its content hash.
	// If the object already exists, the existing copy is kept and its hash returned.
	Put(ctx context.Context, obj *Object) (hash string, err error)

	// Get retrieves an object by its content hash.
	// Returns ErrNotFound if the object doesn't exist.
	Get(ctx context.Context, hash string) (*Object, error)

	// Exists checks if an object with the given hash exists.
	Exists(ctx context.Context, hash string) (bool, error)

	// Delete removes an object by its content hash.
	Delete(ctx context.Context, hash string) error

	// List returns all object hashes of the given type; empty type lists everything.
	List(ctx context.Context, objectType ObjectType) ([]string, error)

	Close() error
}

// Object is a stored payload with its metadata.
type Object struct {
	// Hash is the SHA-256 of Data, computed by Put when empty.
	Hash string

	Type ObjectType

	// ContentType is the payload's MIME type (image/jpeg, image/png).
	ContentType string

	Size int64
	Data []byte

	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	CreatedAt    time.Time         `json:"created_at"`
	LastAccessed time.Time         `json:"last_accessed"`
	ContentType  string            `json:"content_type,omitempty"`
	Type         ObjectType        `json:"object_type"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// ObjectType identifies the kind of stored object.
type ObjectType string

const (
	// ObjectTypeSourceImage is an original asset as downloaded from the CMS.
	ObjectTypeSourceImage ObjectType = "source_image"

	// ObjectTypeDerivedImage is a resized and re-encoded variant.
	ObjectTypeDerivedImage ObjectType = "derived_image"

	// ObjectTypeBuildManifest is a serialized build manifest.
	ObjectTypeBuildManifest ObjectType = "build_manifest"
)

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Hash
}

// IsNotFound reports whether err (or anything it wraps) is ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
