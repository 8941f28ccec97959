// Package indexer builds the cross-year master address index and the
// per-year address overflow files from already-published chunk artifacts.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"landsales/internal/artifact"
	"landsales/internal/metrics"
	"landsales/pkg/domain"
)

// Builder folds every year's manifest and chunks into the master index.
type Builder struct {
	store artifact.Store
	log   *zap.Logger
}

// New returns an index builder over the given store.
func New(store artifact.Store, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{store: store, log: log}
}

// Build reads every chunk of every given year, writes an AddressFile for
// each (year, address) pair with more than one sale, and publishes the
// master index last. The index artifact appears only after all years fold
// in cleanly: the store's atomic Put means a partial build never leaves a
// half-correct index behind.
func (b *Builder) Build(ctx context.Context, years []int) (domain.MasterIndex, error) {
	index := make(domain.MasterIndex)
	ordered := make([]int, len(years))
	copy(ordered, years)
	sort.Ints(ordered)

	for _, year := range ordered {
		if err := b.foldYear(ctx, year, index); err != nil {
			return nil, fmt.Errorf("index year %d: %w", year, err)
		}
	}

	payload, err := json.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encode master index: %w", err)
	}
	if _, err := b.store.Put(ctx, domain.MasterIndexKey, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("write master index: %w", err)
	}
	metrics.ArtifactsWritten.Inc()
	b.log.Info("master index published",
		zap.Int("addresses", len(index)), zap.Ints("years", ordered))
	return index, nil
}

func (b *Builder) foldYear(ctx context.Context, year int, index domain.MasterIndex) error {
	manifest, err := b.readManifest(ctx, year)
	if err != nil {
		return err
	}
	// Canonical-case records per address for this year's overflow files.
	byAddress := make(map[string][]domain.SaleRecord)
	for _, ref := range manifest.Chunks {
		records, err := b.readChunk(ctx, year, ref.Name)
		if err != nil {
			return err
		}
		for _, r := range records {
			index.Add(r.Address, year)
			key := strings.ToLower(r.Address)
			byAddress[key] = append(byAddress[key], r)
		}
	}

	files := 0
	for _, records := range byAddress {
		if len(records) < 2 {
			continue
		}
		file := domain.AddressFile{
			Address:    records[0].Address,
			Count:      len(records),
			Properties: records,
		}
		payload, err := json.Marshal(file)
		if err != nil {
			return fmt.Errorf("encode address file %q: %w", file.Address, err)
		}
		key := domain.AddressFileKey(year, domain.AddressHash(file.Address))
		if _, err := b.store.Put(ctx, key, bytes.NewReader(payload)); err != nil {
			return fmt.Errorf("write address file %q: %w", file.Address, err)
		}
		metrics.ArtifactsWritten.Inc()
		files++
	}
	b.log.Info("year indexed",
		zap.Int("year", year),
		zap.Int("addresses", len(byAddress)),
		zap.Int("overflow_files", files))
	return nil
}

func (b *Builder) readManifest(ctx context.Context, year int) (*domain.Manifest, error) {
	data, err := b.read(ctx, domain.ManifestKey(year))
	if err != nil {
		return nil, err
	}
	var manifest domain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}

func (b *Builder) readChunk(ctx context.Context, year int, name string) ([]domain.SaleRecord, error) {
	data, err := b.read(ctx, domain.ChunkKeyFor(year, name))
	if err != nil {
		return nil, err
	}
	records, err := domain.DecodeCompactRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %s: %w", name, err)
	}
	return records, nil
}

func (b *Builder) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
