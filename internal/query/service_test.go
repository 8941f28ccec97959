package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"landsales/internal/artifact"
	"landsales/internal/chunker"
	"landsales/internal/config"
	"landsales/internal/indexer"
	"landsales/pkg/domain"
)

func testTTL() config.CacheConfig {
	return config.CacheConfig{
		ArtifactTTLSeconds:      900,
		AddressSearchTTLSeconds: 300,
		PropertyTTLSeconds:      600,
		PriceSearchTTLSeconds:   300,
	}
}

// publishFixture builds a small two-year corpus through the real write path.
func publishFixture(t *testing.T) artifact.Store {
	t.Helper()
	store := artifact.NewMemory()
	ctx := context.Background()
	years := map[int][]domain.SaleRecord{
		2019: {
			{Address: "103 RAWSON ST", Suburb: "ABERDARE", SalePrice: 250000, SaleDate: "2019-06-01", PropertyType: domain.TypeResidence, Year: 2019},
			{Address: "5 SMITH ST", Suburb: "ABERDARE", SalePrice: 310000, SaleDate: "2019-07-01", PropertyType: domain.TypeHouse, Year: 2019},
		},
		2020: {
			{Address: "103 RAWSON ST", Suburb: "ABERDARE", SalePrice: 260000, SaleDate: "2020-12-30", PropertyType: domain.TypeResidence, Year: 2020},
			{Address: "103 RAWSON ST", Suburb: "ABERDARE", SalePrice: 275000, SaleDate: "2020-03-14", PropertyType: domain.TypeResidence, Year: 2020},
			{Address: "22 RAWSON RD", Suburb: "CESSNOCK", SalePrice: 480000, SaleDate: "2020-08-09", PropertyType: domain.TypeHouse, Year: 2020},
			{Address: "9 HIGH ST", Suburb: "CESSNOCK", SalePrice: 410000, SaleDate: "2020-05-20", PropertyType: domain.TypeUnit, Year: 2020},
		},
	}
	for year, records := range years {
		if _, err := chunker.New(store, 2, nil).WriteYear(ctx, year, records); err != nil {
			t.Fatalf("publish %d: %v", year, err)
		}
	}
	if _, err := indexer.New(store, nil).Build(ctx, []int{2019, 2020}); err != nil {
		t.Fatalf("index: %v", err)
	}
	return store
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(artifact.NewStoreFetcher(publishFixture(t)), testTTL(), nil)
}

func TestSearchByAddress(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.SearchByAddress(context.Background(), "RAWSON", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	// Most recent sale first.
	for i := 1; i < len(results); i++ {
		if results[i].SaleDate > results[i-1].SaleDate {
			t.Fatalf("results not date-descending: %s after %s", results[i].SaleDate, results[i-1].SaleDate)
		}
	}
	if results[0].Address != "103 RAWSON ST" || results[0].SaleDate != "2020-12-30" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}

	// Case-insensitive and identical to the uppercase query.
	lower, err := svc.SearchByAddress(context.Background(), "rawson", 10)
	if err != nil || len(lower) != 4 {
		t.Fatalf("lowercase search: %v %d", err, len(lower))
	}
}

func TestSearchByAddressLimit(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.SearchByAddress(context.Background(), "rawson", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("limit not applied: %d results", len(results))
	}
}

func TestSearchByAddressTooShort(t *testing.T) {
	svc := newTestService(t)
	for _, q := range []string{"", "ab", "  a  "} {
		if _, err := svc.SearchByAddress(context.Background(), q, 10); !errors.Is(err, ErrQueryTooShort) {
			t.Fatalf("query %q: %v", q, err)
		}
	}
}

func TestSearchByAddressNoMatch(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.SearchByAddress(context.Background(), "nonexistent", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestGetProperty(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.GetProperty(context.Background(), "103 Rawson St")
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d sales, want 3", len(results))
	}
	wantDates := []string{"2020-12-30", "2020-03-14", "2019-06-01"}
	for i, want := range wantDates {
		if results[i].SaleDate != want {
			t.Fatalf("sale %d date = %s, want %s", i, results[i].SaleDate, want)
		}
	}

	none, err := svc.GetProperty(context.Background(), "1 NOWHERE ST")
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown property: %v %d", err, len(none))
	}
}

func TestSearchByPrice(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.SearchByPrice(context.Background(), PriceQuery{
		MinPrice: 300000,
		MaxPrice: 500000,
	})
	if err != nil {
		t.Fatalf("price search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Highest price first.
	if results[0].SalePrice != 480000 || results[1].SalePrice != 410000 || results[2].SalePrice != 310000 {
		t.Fatalf("unexpected order: %+v", results)
	}
}

func TestSearchByPriceSuburbAndYear(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.SearchByPrice(context.Background(), PriceQuery{
		MinPrice: 1,
		MaxPrice: 1000000,
		Suburb:   "cess",
		Year:     2020,
	})
	if err != nil {
		t.Fatalf("price search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Suburb != "CESSNOCK" {
			t.Fatalf("suburb filter leaked %+v", r)
		}
	}

	// Band bounds are inclusive.
	exact, err := svc.SearchByPrice(context.Background(), PriceQuery{MinPrice: 410000, MaxPrice: 410000})
	if err != nil || len(exact) != 1 || exact[0].SalePrice != 410000 {
		t.Fatalf("inclusive band: %v %+v", err, exact)
	}
}

func TestListAvailableYears(t *testing.T) {
	svc := newTestService(t)
	years, err := svc.ListAvailableYears(context.Background())
	if err != nil {
		t.Fatalf("list years: %v", err)
	}
	if len(years) != 2 || years[0] != 2020 || years[1] != 2019 {
		t.Fatalf("years = %v", years)
	}
}

// countingFetcher records how many fetches reach the backend.
type countingFetcher struct {
	inner artifact.Fetcher
	calls atomic.Int64
}

func (c *countingFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	c.calls.Add(1)
	return c.inner.Fetch(ctx, key)
}

func TestFetchArtifactCaching(t *testing.T) {
	fetcher := &countingFetcher{inner: artifact.NewStoreFetcher(publishFixture(t))}
	svc := New(fetcher, testTTL(), nil)
	current := time.Now()
	svc.Cache().WithNow(func() time.Time { return current })

	if _, ok := svc.FetchArtifact(context.Background(), domain.MasterIndexKey); !ok {
		t.Fatalf("first fetch failed")
	}
	if _, ok := svc.FetchArtifact(context.Background(), domain.MasterIndexKey); !ok {
		t.Fatalf("second fetch failed")
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("backend fetched %d times, want 1", got)
	}

	// Past the artifact TTL the backend is consulted again.
	current = current.Add(901 * time.Second)
	if _, ok := svc.FetchArtifact(context.Background(), domain.MasterIndexKey); !ok {
		t.Fatalf("refetch failed")
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("backend fetched %d times after expiry, want 2", got)
	}
}

func TestSearchResultCaching(t *testing.T) {
	fetcher := &countingFetcher{inner: artifact.NewStoreFetcher(publishFixture(t))}
	svc := New(fetcher, testTTL(), nil)

	if _, err := svc.SearchByAddress(context.Background(), "rawson", 10); err != nil {
		t.Fatalf("first search: %v", err)
	}
	seen := fetcher.calls.Load()
	if _, err := svc.SearchByAddress(context.Background(), "rawson", 10); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if fetcher.calls.Load() != seen {
		t.Fatalf("cached search still hit the backend")
	}
	// A different limit is a different cache entry.
	if _, err := svc.SearchByAddress(context.Background(), "rawson", 3); err != nil {
		t.Fatalf("third search: %v", err)
	}
}

func TestResultMutationDoesNotTouchCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.SearchByAddress(ctx, "rawson", 10)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	// Scramble the caller's copy.
	for i := range first {
		first[i].Address = "MUTATED"
		first[i].SalePrice = -1
	}

	second, err := svc.SearchByAddress(ctx, "rawson", 10)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if len(second) != 4 {
		t.Fatalf("got %d results, want 4", len(second))
	}
	for _, r := range second {
		if r.Address == "MUTATED" || r.SalePrice < 0 {
			t.Fatalf("cache entry mutated through a returned slice: %+v", r)
		}
	}

	sales, err := svc.GetProperty(ctx, "103 RAWSON ST")
	if err != nil {
		t.Fatalf("property: %v", err)
	}
	sales[0].SalePrice = -1
	again, err := svc.GetProperty(ctx, "103 RAWSON ST")
	if err != nil || again[0].SalePrice != 260000 {
		t.Fatalf("cached property mutated: %v %+v", err, again[0])
	}
}

func TestQueriesDegradeWithoutIndex(t *testing.T) {
	svc := New(artifact.NewStoreFetcher(artifact.NewMemory()), testTTL(), nil)
	ctx := context.Background()

	if results, err := svc.SearchByAddress(ctx, "rawson", 10); err != nil || len(results) != 0 {
		t.Fatalf("address search: %v %d", err, len(results))
	}
	if results, err := svc.GetProperty(ctx, "103 RAWSON ST"); err != nil || len(results) != 0 {
		t.Fatalf("property: %v %d", err, len(results))
	}
	if results, err := svc.SearchByPrice(ctx, PriceQuery{MinPrice: 1, MaxPrice: 2}); err != nil || len(results) != 0 {
		t.Fatalf("price: %v %d", err, len(results))
	}
	if years, err := svc.ListAvailableYears(ctx); err != nil || len(years) != 0 {
		t.Fatalf("years: %v %v", err, years)
	}
}
