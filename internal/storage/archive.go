// Package storage archives raw fetch bodies to S3-compatible object storage.
// The archive is optional: the database keeps the authoritative copy of every
// snapshot, the archive holds a second copy of large bodies for cheap
// long-term retention and replay.
package storage

import (
	"context"
	"io"
	"strings"
)

// SnapshotArchive is the write/read contract for archived raw snapshots.
type SnapshotArchive interface {
	// Put stores a snapshot body under key.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves an archived snapshot body.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a snapshot is already archived.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public URL for an archived snapshot.
	URL(key string) string
}

// SnapshotKey builds the archive key for a content hash. Hash-prefix
// bucketing keeps any one listing prefix small.
func SnapshotKey(contentHash string) string {
	if len(contentHash) < 2 {
		return contentHash
	}
	return contentHash[:2] + "/" + contentHash
}

// ContentTypeFor maps a fetch kind to the archived object content type.
func ContentTypeFor(kind string) string {
	switch strings.ToLower(kind) {
	case "html":
		return "text/html; charset=utf-8"
	case "api", "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
