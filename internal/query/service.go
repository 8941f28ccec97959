// Package query reconstructs search results from the published artifacts:
// address substring search, exact property lookup, price-band search, all
// backed by a TTL cache over an abstract artifact fetcher.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"landsales/internal/artifact"
	"landsales/internal/config"
	"landsales/internal/metrics"
	"landsales/pkg/domain"
)

// ErrQueryTooShort rejects address queries under three characters.
var ErrQueryTooShort = errors.New("query: address query must be at least 3 characters")

const (
	// DefaultLimit caps results when the caller passes none.
	DefaultLimit = 20
	// maxCandidateAddresses bounds how many index entries one address
	// search will expand.
	maxCandidateAddresses = 20
	// maxYearsPerCandidate bounds how many recent years are examined per
	// matched address.
	maxYearsPerCandidate = 3
	// maxFallbackChunks bounds the chunk scan when an address has no
	// overflow file.
	maxFallbackChunks = 3
	// maxPriceChunks bounds the per-year chunk scan of a price search.
	maxPriceChunks = 5
)

// Service answers read-side queries. All operations degrade to empty
// results when artifacts are missing or unreadable; they never surface
// fetch errors. The only errors returned are caller mistakes (short query).
type Service struct {
	fetcher artifact.Fetcher
	cache   *Cache
	ttl     config.CacheConfig
	log     *zap.Logger
}

// New returns a query service over the given fetch capability.
func New(fetcher artifact.Fetcher, ttl config.CacheConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		fetcher: fetcher,
		cache:   NewCache(),
		ttl:     ttl,
		log:     log,
	}
}

// Cache exposes the underlying cache for sweeping and maintenance.
func (s *Service) Cache() *Cache { return s.cache }

// FetchArtifact returns the raw JSON of a named artifact, using the
// artifact-class TTL. The boolean is false when the artifact is absent or
// unreadable; no error is ever returned to the caller.
func (s *Service) FetchArtifact(ctx context.Context, key string) (json.RawMessage, bool) {
	cacheKey := "artifact:" + key
	if v, ok := s.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("artifact").Inc()
		return v.(json.RawMessage), true
	}
	metrics.CacheMisses.WithLabelValues("artifact").Inc()
	// An abandoned caller's fetch is left to complete: its result is still
	// valid for everyone who asks later.
	data, err := s.fetcher.Fetch(context.WithoutCancel(ctx), key)
	if err != nil || !json.Valid(data) {
		s.log.Debug("artifact unavailable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	raw := json.RawMessage(data)
	s.cache.Set(cacheKey, raw, s.ttl.ArtifactTTL())
	return raw, true
}

// SearchByAddress returns up to limit records whose address contains the
// query (case-insensitive), most recent sale first.
func (s *Service) SearchByAddress(ctx context.Context, query string, limit int) ([]domain.SaleRecord, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(q) < 3 {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	cacheKey := fmt.Sprintf("search:address:%s:%d", q, limit)
	if v, ok := s.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("address").Inc()
		return cloneRecords(v.([]domain.SaleRecord)), nil
	}
	metrics.CacheMisses.WithLabelValues("address").Inc()

	index, ok := s.masterIndex(ctx)
	if !ok {
		return []domain.SaleRecord{}, nil
	}

	// Map iteration order is random; sort matches before capping so the
	// same query always expands the same candidates.
	var candidates []string
	for address := range index {
		if strings.Contains(address, q) {
			candidates = append(candidates, address)
		}
	}
	sort.Strings(candidates)
	if len(candidates) > maxCandidateAddresses {
		candidates = candidates[:maxCandidateAddresses]
	}

	target := 2 * limit
	var results []domain.SaleRecord
scan:
	for _, address := range candidates {
		years := index.Years(address)
		if len(years) > maxYearsPerCandidate {
			years = years[:maxYearsPerCandidate]
		}
		for _, year := range years {
			results = append(results, s.addressRecords(ctx, address, year, maxFallbackChunks)...)
			if len(results) >= target {
				break scan
			}
		}
	}

	sortBySaleDate(results)
	if len(results) > limit {
		results = results[:limit]
	}
	s.cache.Set(cacheKey, results, s.ttl.AddressSearchTTL())
	return cloneRecords(results), nil
}

// GetProperty returns every recorded sale for an exact address, most recent
// first.
func (s *Service) GetProperty(ctx context.Context, address string) ([]domain.SaleRecord, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	cacheKey := "property:" + key
	if v, ok := s.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("property").Inc()
		return cloneRecords(v.([]domain.SaleRecord)), nil
	}
	metrics.CacheMisses.WithLabelValues("property").Inc()

	index, ok := s.masterIndex(ctx)
	if !ok {
		return []domain.SaleRecord{}, nil
	}
	var results []domain.SaleRecord
	for _, year := range index.Years(key) {
		// Exact lookup has no chunk bound: the record may sit anywhere in
		// the year.
		results = append(results, s.addressRecords(ctx, key, year, 0)...)
	}
	sortBySaleDate(results)
	s.cache.Set(cacheKey, results, s.ttl.PropertyTTL())
	return cloneRecords(results), nil
}

// PriceQuery filters a price search. Zero Year means "up to the 3 most
// recent available years"; empty Suburb disables the suburb filter.
type PriceQuery struct {
	MinPrice int64
	MaxPrice int64
	Suburb   string
	Year     int
	Limit    int
}

// SearchByPrice returns records inside the inclusive price band, optionally
// narrowed by suburb substring and year, highest price first.
func (s *Service) SearchByPrice(ctx context.Context, q PriceQuery) ([]domain.SaleRecord, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	suburb := strings.ToLower(strings.TrimSpace(q.Suburb))
	cacheKey := fmt.Sprintf("price:%d:%d:%s:%d:%d", q.MinPrice, q.MaxPrice, suburb, q.Year, q.Limit)
	if v, ok := s.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("price").Inc()
		return cloneRecords(v.([]domain.SaleRecord)), nil
	}
	metrics.CacheMisses.WithLabelValues("price").Inc()

	index, ok := s.masterIndex(ctx)
	if !ok {
		return []domain.SaleRecord{}, nil
	}
	years := []int{q.Year}
	if q.Year <= 0 {
		years = index.AllYears()
		if len(years) > maxYearsPerCandidate {
			years = years[:maxYearsPerCandidate]
		}
	}

	target := 2 * q.Limit
	var results []domain.SaleRecord
	for _, year := range years {
		manifest, ok := s.manifest(ctx, year)
		if !ok {
			continue
		}
		refs := manifest.Chunks
		if len(refs) > maxPriceChunks {
			refs = refs[:maxPriceChunks]
		}
		for _, records := range s.fetchChunks(ctx, year, refs) {
			for _, r := range records {
				if r.SalePrice < q.MinPrice || r.SalePrice > q.MaxPrice {
					continue
				}
				if suburb != "" && !strings.Contains(strings.ToLower(r.Suburb), suburb) {
					continue
				}
				results = append(results, r)
			}
		}
		if len(results) >= target {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SalePrice != results[j].SalePrice {
			return results[i].SalePrice > results[j].SalePrice
		}
		if results[i].SaleDate != results[j].SaleDate {
			return results[i].SaleDate > results[j].SaleDate
		}
		return results[i].Address < results[j].Address
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	s.cache.Set(cacheKey, results, s.ttl.PriceSearchTTL())
	return cloneRecords(results), nil
}

// ListAvailableYears returns every year present in the master index, most
// recent first. Cheap once the index artifact is cached, so it has no
// result cache of its own.
func (s *Service) ListAvailableYears(ctx context.Context) ([]int, error) {
	index, ok := s.masterIndex(ctx)
	if !ok {
		return []int{}, nil
	}
	return index.AllYears(), nil
}

// addressRecords collects the records for one (address, year): the overflow
// file is the fast path; otherwise up to maxChunks of the year's manifest
// are scanned for exact address matches (maxChunks <= 0 scans them all).
func (s *Service) addressRecords(ctx context.Context, address string, year, maxChunks int) []domain.SaleRecord {
	if file, ok := s.addressFile(ctx, year, address); ok {
		return file.Properties
	}
	manifest, ok := s.manifest(ctx, year)
	if !ok {
		return nil
	}
	refs := manifest.Chunks
	if maxChunks > 0 && len(refs) > maxChunks {
		refs = refs[:maxChunks]
	}
	var matches []domain.SaleRecord
	for _, records := range s.fetchChunks(ctx, year, refs) {
		for _, r := range records {
			if strings.ToLower(r.Address) == address {
				matches = append(matches, r)
			}
		}
	}
	return matches
}

// fetchChunks loads the given chunks concurrently. The returned slice is in
// manifest order regardless of completion order; missing chunks leave nil
// holes rather than failing the whole query.
func (s *Service) fetchChunks(ctx context.Context, year int, refs []domain.ChunkRef) [][]domain.SaleRecord {
	results := make([][]domain.SaleRecord, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			if records, ok := s.chunk(gctx, year, ref.Name); ok {
				results[i] = records
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) masterIndex(ctx context.Context) (domain.MasterIndex, bool) {
	raw, ok := s.FetchArtifact(ctx, domain.MasterIndexKey)
	if !ok {
		return nil, false
	}
	var index domain.MasterIndex
	if err := json.Unmarshal(raw, &index); err != nil {
		s.log.Debug("master index undecodable", zap.Error(err))
		return nil, false
	}
	return index, true
}

func (s *Service) manifest(ctx context.Context, year int) (*domain.Manifest, bool) {
	raw, ok := s.FetchArtifact(ctx, domain.ManifestKey(year))
	if !ok {
		return nil, false
	}
	var manifest domain.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		s.log.Debug("manifest undecodable", zap.Int("year", year), zap.Error(err))
		return nil, false
	}
	return &manifest, true
}

func (s *Service) chunk(ctx context.Context, year int, name string) ([]domain.SaleRecord, bool) {
	raw, ok := s.FetchArtifact(ctx, domain.ChunkKeyFor(year, name))
	if !ok {
		return nil, false
	}
	records, err := domain.DecodeCompactRecords(raw)
	if err != nil {
		s.log.Debug("chunk undecodable", zap.String("chunk", name), zap.Error(err))
		return nil, false
	}
	return records, true
}

func (s *Service) addressFile(ctx context.Context, year int, address string) (*domain.AddressFile, bool) {
	key := domain.AddressFileKey(year, domain.AddressHash(address))
	raw, ok := s.FetchArtifact(ctx, key)
	if !ok {
		return nil, false
	}
	var file domain.AddressFile
	if err := json.Unmarshal(raw, &file); err != nil {
		s.log.Debug("address file undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &file, true
}

// cloneRecords copies a result slice. Cached slices are never handed out
// directly; a caller that sorts or truncates its result must not change what
// later cache hits see.
func cloneRecords(records []domain.SaleRecord) []domain.SaleRecord {
	out := make([]domain.SaleRecord, len(records))
	copy(out, records)
	return out
}

// sortBySaleDate orders newest sale first; ties fall back to address then
// price so concurrent fetch completion order can never reorder results.
func sortBySaleDate(records []domain.SaleRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].SaleDate != records[j].SaleDate {
			return records[i].SaleDate > records[j].SaleDate
		}
		if records[i].Address != records[j].Address {
			return records[i].Address < records[j].Address
		}
		return records[i].SalePrice > records[j].SalePrice
	})
}
