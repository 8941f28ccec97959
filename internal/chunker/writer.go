// Package chunker partitions a year's validated sale records into bounded
// chunk artifacts and writes the year's manifest.
package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"landsales/internal/artifact"
	"landsales/internal/metrics"
	"landsales/pkg/domain"
)

// DefaultRecordsPerChunk is the page-size bound when none is configured.
const DefaultRecordsPerChunk = 5000

// Writer persists one year at a time. Given identical input and
// configuration, chunk bytes and names are fully reproducible: records are
// stable-sorted by address (ties keep input order) and serialized with a
// fixed field order.
type Writer struct {
	store           artifact.Store
	recordsPerChunk int
	log             *zap.Logger
	now             func() time.Time
}

// New returns a chunk writer over the given store.
func New(store artifact.Store, recordsPerChunk int, log *zap.Logger) *Writer {
	if recordsPerChunk <= 0 {
		recordsPerChunk = DefaultRecordsPerChunk
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		store:           store,
		recordsPerChunk: recordsPerChunk,
		log:             log,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithNow replaces the manifest timestamp source (tests).
func (w *Writer) WithNow(now func() time.Time) *Writer {
	w.now = now
	return w
}

// WriteYear partitions records into pages, writes every chunk artifact and
// then the year's manifest. A write failure aborts this year; already
// published sibling years are unaffected.
func (w *Writer) WriteYear(ctx context.Context, year int, records []domain.SaleRecord) (*domain.Manifest, error) {
	// Address-sorted pages keep repeat sales of one address inside the same
	// chunk, which is what makes the 3-chunk search fallback effective.
	sorted := make([]domain.SaleRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	manifest := &domain.Manifest{
		Year:         year,
		TotalRecords: len(sorted),
		Chunks:       []domain.ChunkRef{},
		CreatedAt:    w.now(),
	}
	for id := 0; id*w.recordsPerChunk < len(sorted); id++ {
		start := id * w.recordsPerChunk
		end := start + w.recordsPerChunk
		if end > len(sorted) {
			end = len(sorted)
		}
		page := sorted[start:end]
		payload, err := json.Marshal(page)
		if err != nil {
			return nil, fmt.Errorf("encode chunk %d/%d: %w", year, id, err)
		}
		if _, err := w.store.Put(ctx, domain.ChunkKey(year, id), bytes.NewReader(payload)); err != nil {
			return nil, fmt.Errorf("write chunk %d/%d: %w", year, id, err)
		}
		metrics.ArtifactsWritten.Inc()
		manifest.Chunks = append(manifest.Chunks, domain.ChunkRef{
			Name:    domain.ChunkName(year, id),
			Records: len(page),
			Bytes:   int64(len(payload)),
		})
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest %d: %w", year, err)
	}
	if _, err := w.store.Put(ctx, domain.ManifestKey(year), bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("write manifest %d: %w", year, err)
	}
	metrics.ArtifactsWritten.Inc()
	w.log.Info("year published",
		zap.Int("year", year),
		zap.Int("records", manifest.TotalRecords),
		zap.Int("chunks", len(manifest.Chunks)))
	return manifest, nil
}
