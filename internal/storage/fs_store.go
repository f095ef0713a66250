package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FSStore is a filesystem-based implementation of ObjectStore.
// Objects are laid out by hash:
//
//	<base>/
//	  objects/
//	    ab/
//	      cd1234...            (first 2 chars = subdir, rest = filename)
//	      cd1234....meta.json
//
// Writes go through a temp file and rename so a reader never observes a
// partially written payload, even across processes sharing the cache.
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore creates a new filesystem-based object store.
func NewFSStore(basePath string) (*FSStore, error) {
	dir := filepath.Join(basePath, "objects")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	return &FSStore{basePath: basePath}, nil
}

// Put stores an object and returns its content hash.
func (s *FSStore) Put(ctx context.Context, obj *Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := obj.Hash
	if hash == "" {
		hash = HashBytes(obj.Data)
	}
	if !validHash(hash) {
		return "", fmt.Errorf("invalid object hash %q", hash)
	}

	objectPath := s.objectPath(hash)
	if _, err := os.Stat(objectPath); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := writeAtomic(objectPath, obj.Data); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}

	now := time.Now()
	md := Metadata{
		CreatedAt:    now,
		LastAccessed: now,
		ContentType:  obj.ContentType,
		Type:         obj.Type,
		Custom:       make(map[string]string, len(obj.Metadata.Custom)),
	}
	for k, v := range obj.Metadata.Custom {
		md.Custom[k] = v
	}
	if err := s.writeMetadata(hash, md); err != nil {
		return hash, fmt.Errorf("write metadata: %w", err)
	}
	return hash, nil
}

// Get retrieves an object by its content hash.
func (s *FSStore) Get(ctx context.Context, hash string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validHash(hash) {
		return nil, ErrNotFound{Hash: hash}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 - path built from a validated hex hash
	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound{Hash: hash}
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	md, err := s.readMetadata(hash)
	if err != nil {
		md = Metadata{Custom: map[string]string{}}
	}

	return &Object{
		Hash:        hash,
		Type:        md.Type,
		ContentType: md.ContentType,
		Size:        int64(len(data)),
		Data:        data,
		Metadata:    md,
	}, nil
}

// Exists checks if an object with the given hash exists.
func (s *FSStore) Exists(ctx context.Context, hash string) (bool, error) {
	if !validHash(hash) {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.objectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// Delete removes an object by its content hash.
func (s *FSStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteUnlocked(hash)
}

// List returns all object hashes matching the given type filter.
func (s *FSStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listUnlocked(ctx, objectType)
}

// Close releases resources.
func (s *FSStore) Close() error {
	return nil
}

// GC removes every object whose hash is not in keep and returns the number removed.
func (s *FSStore) GC(ctx context.Context, keep map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listUnlocked(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}
	removed := 0
	for _, hash := range all {
		if keep[hash] {
			continue
		}
		if err := s.deleteUnlocked(hash); err != nil && !IsNotFound(err) {
			return removed, fmt.Errorf("delete object %s: %w", hash, err)
		}
		removed++
	}
	return removed, nil
}

func (s *FSStore) listUnlocked(ctx context.Context, objectType ObjectType) ([]string, error) {
	var hashes []string
	objectsDir := filepath.Join(s.basePath, "objects")

	err := filepath.WalkDir(objectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".meta.json") || strings.Contains(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(objectsDir, path)
		if err != nil {
			return nil
		}
		hash := strings.ReplaceAll(rel, string(filepath.Separator), "")
		if objectType != "" {
			md, err := s.readMetadata(hash)
			if err != nil || md.Type != objectType {
				return nil
			}
		}
		hashes = append(hashes, hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk objects: %w", err)
	}
	return hashes, nil
}

func (s *FSStore) deleteUnlocked(hash string) error {
	if !validHash(hash) {
		return ErrNotFound{Hash: hash}
	}
	objectPath := s.objectPath(hash)
	if err := os.Remove(objectPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound{Hash: hash}
		}
		return fmt.Errorf("delete object: %w", err)
	}
	_ = os.Remove(s.metadataPath(hash))
	_ = os.Remove(filepath.Dir(objectPath)) // only succeeds when empty
	return nil
}

func (s *FSStore) objectPath(hash string) string {
	return filepath.Join(s.basePath, "objects", hash[:2], hash[2:])
}

func (s *FSStore) metadataPath(hash string) string {
	return s.objectPath(hash) + ".meta.json"
}

func (s *FSStore) readMetadata(hash string) (Metadata, error) {
	// #nosec G304 - path built from a validated hex hash
	data, err := os.ReadFile(s.metadataPath(hash))
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return md, nil
}

func (s *FSStore) writeMetadata(hash string, md Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return writeAtomic(s.metadataPath(hash), data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// HashBytes returns the hex SHA-256 of data, the key FSStore files objects under.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func validHash(hash string) bool {
	if len(hash) < 3 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
