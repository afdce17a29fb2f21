package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// Exports larger than this go through the multipart uploader.
	multipartThreshold = 32 * 1024 * 1024
	multipartPartSize  = 8 * 1024 * 1024
)

// OpportunitySource lists opportunities detected in [from, to).
type OpportunitySource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error)
}

// LegSource lists execution legs created in [from, to).
type LegSource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.ExecutionLeg, error)
}

// Archiver implements domain.Archiver. It copies one UTC day of history to
// JSONL objects and leaves the source rows in place. A day whose objects
// already exist is skipped.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	opps   OpportunitySource
	legs   LegSource
	audit  domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. reader and audit may be nil; without a
// reader every run re-uploads.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	opps OpportunitySource,
	legs LegSource,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		opps:   opps,
		legs:   legs,
		audit:  audit,
	}
}

// ArchiveDay exports the UTC day containing day.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (domain.ArchiveResult, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)
	result := domain.ArchiveResult{Day: from}

	oppPath := archivePath("opportunities", from)
	legPath := archivePath("legs", from)

	if done, err := a.alreadyArchived(ctx, oppPath, legPath); err != nil {
		return result, err
	} else if done {
		result.Skipped = true
		return result, nil
	}

	opps, err := a.opps.ListBetween(ctx, from, to)
	if err != nil {
		return result, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	legs, err := a.legs.ListBetween(ctx, from, to)
	if err != nil {
		return result, fmt.Errorf("s3blob: archive legs query: %w", err)
	}

	if err := uploadJSONL(ctx, a.writer, oppPath, opps); err != nil {
		return result, err
	}
	result.Opportunities = int64(len(opps))

	if err := uploadJSONL(ctx, a.writer, legPath, legs); err != nil {
		return result, err
	}
	result.Legs = int64(len(legs))

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.day", map[string]any{
			"day":           from.Format(time.DateOnly),
			"opportunities": result.Opportunities,
			"legs":          result.Legs,
			"paths":         []string{oppPath, legPath},
		}); err != nil {
			return result, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return result, nil
}

func (a *Archiver) alreadyArchived(ctx context.Context, paths ...string) (bool, error) {
	if a.reader == nil {
		return false, nil
	}
	for _, p := range paths {
		ok, err := a.reader.Exists(ctx, p)
		if err != nil {
			return false, fmt.Errorf("s3blob: archive check %s: %w", p, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func uploadJSONL[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", path, err)
	}

	if len(buf) > multipartThreshold {
		err = w.PutMultipart(ctx, path, bytes.NewReader(buf), multipartPartSize)
	} else {
		err = w.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// archivePath builds the key for one kind and day, e.g.
// archive/legs/2025-01-31.jsonl.
func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.Format(time.DateOnly))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
