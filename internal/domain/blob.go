package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader checks object storage for existing objects.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveResult reports what one archive run exported.
type ArchiveResult struct {
	Day           time.Time
	Opportunities int64
	Legs          int64
	Skipped       bool
}

// Archiver copies one UTC day of opportunity and leg history to cold
// storage. Source rows are left in place.
type Archiver interface {
	ArchiveDay(ctx context.Context, day time.Time) (ArchiveResult, error)
}
