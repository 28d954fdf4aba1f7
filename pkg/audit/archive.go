package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
)

// ObjectStore receives archive uploads
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// Archiver exports expiring events to object storage and then purges them.
// Nothing is deleted unless the upload succeeded.
type Archiver struct {
	store   *Store
	objects ObjectStore
	prefix  string
}

// NewArchiver creates an archiver writing under prefix (e.g. "audit/")
func NewArchiver(store *Store, objects ObjectStore, prefix string) *Archiver {
	return &Archiver{store: store, objects: objects, prefix: prefix}
}

// ArchiveKey names the archive holding events older than before
func (a *Archiver) ArchiveKey(before time.Time) string {
	return a.prefix + before.UTC().Format("2006/01/02/150405") + ".ndjson"
}

// Archive uploads every event older than before as one NDJSON object and
// purges them. It returns the number of purged events.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	var buf bytes.Buffer
	filter := SearchFilter{Until: &before, Limit: MaxLimit}
	total := 0
	for {
		events, err := a.store.Search(ctx, filter)
		if err != nil {
			return 0, err
		}
		if err := WriteNDJSON(&buf, events); err != nil {
			return 0, fmt.Errorf("failed to encode audit archive: %w", err)
		}
		total += len(events)
		if len(events) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}
	if total == 0 {
		return 0, nil
	}

	if err := a.objects.PutObject(ctx, a.ArchiveKey(before), &buf, FormatNDJSON.ContentType()); err != nil {
		return 0, fmt.Errorf("failed to upload audit archive: %w", err)
	}
	return a.store.Purge(ctx, before)
}
