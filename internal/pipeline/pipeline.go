// Package pipeline orchestrates the batch run: discover yearly archives,
// scan and parse them, publish chunk and manifest artifacts per year, then
// build the cross-year indexes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"landsales/internal/archive"
	"landsales/internal/artifact"
	"landsales/internal/chunker"
	"landsales/internal/config"
	"landsales/internal/indexer"
	"landsales/internal/metrics"
	"landsales/internal/parser"
	"landsales/pkg/domain"
)

// Stats summarizes a batch run for console reporting.
type Stats struct {
	Archives    int64
	DataFiles   int64
	Parsed      int64
	Rejected    int64
	SourceBytes int64
	Years       []int
	FailedYears []int
}

// Pipeline wires the batch stages over one artifact store.
type Pipeline struct {
	cfg     *config.Config
	store   artifact.Store
	scanner *archive.Scanner
	log     *zap.Logger
}

// New returns a pipeline for the given configuration and store.
func New(cfg *config.Config, store artifact.Store, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		scanner: archive.NewScanner(cfg.MaxArchiveDepth, log),
		log:     log,
	}
}

// archiveResult carries one archive's parsed records to the ordered merge.
type archiveResult struct {
	year    int
	records []domain.SaleRecord
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// archiveYear derives the declared year from an archive filename
// (e.g. "2020.zip", "sales-2020.zip").
func archiveYear(name string) (int, bool) {
	match := yearPattern.FindString(filepath.Base(name))
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	return year, err == nil
}

// Run executes the full batch. Individual archive failures are logged and
// skipped; a year whose chunk write fails is dropped from the index build
// without affecting sibling years. Fatal errors (missing source directory,
// zero archives, index-build failure) abort the run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	archives, err := p.discoverArchives()
	if err != nil {
		return stats, err
	}

	// Each archive fills its own discovery-order slot. The merge below walks
	// the slots in that order, so two archives declaring the same year always
	// contribute their records in the same sequence and chunk bytes stay
	// reproducible run to run.
	results := make([]*archiveResult, len(archives))

	g, gctx := errgroup.WithContext(ctx)
	workers := p.cfg.ArchiveWorkers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)
	for i, path := range archives {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			year, ok := archiveYear(path)
			if !ok {
				p.log.Warn("archive without a declared year skipped", zap.String("archive", path))
				return nil
			}
			records, fileCount, rejected, size, err := p.processArchive(path, year)
			if err != nil {
				// One archive's failure must not abort the others.
				p.log.Error("archive failed", zap.String("archive", path), zap.Error(err))
				return nil
			}
			atomic.AddInt64(&stats.Archives, 1)
			atomic.AddInt64(&stats.DataFiles, int64(fileCount))
			atomic.AddInt64(&stats.Parsed, int64(len(records)))
			atomic.AddInt64(&stats.Rejected, int64(rejected))
			atomic.AddInt64(&stats.SourceBytes, size)
			results[i] = &archiveResult{year: year, records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	byYear := make(map[int][]domain.SaleRecord)
	for _, res := range results {
		if res == nil {
			continue
		}
		byYear[res.year] = append(byYear[res.year], res.records...)
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	writer := chunker.New(p.store, p.cfg.RecordsPerChunk, p.log)
	var published []int
	for _, year := range years {
		if _, err := writer.WriteYear(ctx, year, byYear[year]); err != nil {
			// Chunk/manifest write failures abort this year only.
			p.log.Error("year aborted", zap.Int("year", year), zap.Error(err))
			stats.FailedYears = append(stats.FailedYears, year)
			continue
		}
		published = append(published, year)
	}
	stats.Years = published
	if len(published) == 0 {
		return stats, fmt.Errorf("no year published")
	}

	if _, err := indexer.New(p.store, p.log).Build(ctx, published); err != nil {
		return stats, fmt.Errorf("index build: %w", err)
	}
	return stats, nil
}

// discoverArchives lists the zip archives of the source directory. A missing
// directory or an empty archive set is fatal for the whole batch.
func (p *Pipeline) discoverArchives() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	var archives []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			archives = append(archives, filepath.Join(p.cfg.SourceDir, entry.Name()))
		}
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("no archives found in %s", p.cfg.SourceDir)
	}
	sort.Strings(archives)
	return archives, nil
}

func (p *Pipeline) processArchive(path string, year int) (records []domain.SaleRecord, fileCount, rejected int, size int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	metrics.ArchivesScanned.Inc()
	entries, err := p.scanner.Scan(data)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for _, entry := range entries {
		parsed, entryRejected, err := parser.ParseAll(entry.Data, year)
		if err != nil {
			// Records parsed before the scan broke off are kept.
			p.log.Warn("data entry scan ended early",
				zap.String("entry", entry.Name), zap.Error(err))
		}
		records = append(records, parsed...)
		rejected += entryRejected
	}
	p.log.Info("archive processed",
		zap.String("archive", filepath.Base(path)),
		zap.Int("year", year),
		zap.Int("data_files", len(entries)),
		zap.Int("records", len(records)),
		zap.Int("rejected", rejected))
	return records, len(entries), rejected, int64(len(data)), nil
}
