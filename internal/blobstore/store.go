// Package blobstore implements the key→blob backends the cache manager talks
// to. Every backend offers the same two operations, Get and Put, and treats a
// Put under an existing key as an overwrite. No backend evicts entries;
// eviction is left to whoever operates the storage.
package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Backend is a key→blob store.
type Backend interface {
	// Get returns the blob stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Put stores data under key, replacing any previous blob.
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// DefaultDir is where the directory backend lives when no location is given.
const DefaultDir = ".burstci/cache"

// Open creates a backend from a location string:
//
//	memory://                 in-process, lost at exit
//	file:///var/cache/burstci directory of files
//	sqlite:///var/cache/c.db  single SQLite database
//
// A bare path is treated as a directory.
func Open(ctx context.Context, location string) (Backend, error) {
	if location == "" {
		location = DefaultDir
	}
	if !strings.Contains(location, "://") {
		return NewDir(location)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing cache store location %q: %w", location, err)
	}
	path := filepath.FromSlash(u.Host + u.Path)

	switch u.Scheme {
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		if path == "" {
			path = DefaultDir
		}
		return NewDir(path)
	case "sqlite", "sqlite3":
		if path == "" {
			return nil, fmt.Errorf("sqlite cache store needs a database path")
		}
		return NewSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported cache store scheme %q", u.Scheme)
	}
}

// digest maps an arbitrary key to a fixed-length, filesystem-safe name.
func digest(key string) string {
	sum := blake3.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum[:])
}
