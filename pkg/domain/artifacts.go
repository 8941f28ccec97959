package domain

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MasterIndexKey is the root artifact mapping every known address to its
// per-year sale counts.
const MasterIndexKey = "master-address-index.json"

// ChunkRef describes one chunk inside a year's manifest.
type ChunkRef struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// Manifest is the per-year chunk listing. One manifest per year, written
// after every chunk of that year, never mutated afterward.
type Manifest struct {
	Year         int        `json:"year"`
	TotalRecords int        `json:"totalRecords"`
	Chunks       []ChunkRef `json:"chunks"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// MasterIndex maps a lowercased full address to its per-year sale counts.
// Year keys are decimal strings so the artifact round-trips as plain JSON.
type MasterIndex map[string]map[string]int

// Years returns the years recorded for the given lowercased address, most
// recent first.
func (m MasterIndex) Years(address string) []int {
	counts, ok := m[address]
	if !ok {
		return nil
	}
	years := make([]int, 0, len(counts))
	for y := range counts {
		n, err := strconv.Atoi(y)
		if err != nil {
			continue
		}
		years = append(years, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// AllYears returns every distinct year across all addresses, most recent
// first.
func (m MasterIndex) AllYears() []int {
	seen := make(map[int]bool)
	for _, counts := range m {
		for y := range counts {
			if n, err := strconv.Atoi(y); err == nil {
				seen[n] = true
			}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// Add increments the counter for one address/year pair.
func (m MasterIndex) Add(address string, year int) {
	key := strings.ToLower(address)
	counts, ok := m[key]
	if !ok {
		counts = make(map[string]int)
		m[key] = counts
	}
	counts[strconv.Itoa(year)]++
}

// AddressFile is the overflow artifact for an address with repeat sales in
// one year. Properties use the same compact shape as chunk records.
type AddressFile struct {
	Address    string       `json:"address"`
	Count      int          `json:"count"`
	Properties []SaleRecord `json:"properties"`
}

// ChunkName returns the bare chunk identifier, e.g. "properties-2020-000".
// Ids are zero-based and zero-padded to three digits.
func ChunkName(year, id int) string {
	return fmt.Sprintf("properties-%d-%03d", year, id)
}

// ChunkKey returns the artifact key for a chunk, e.g.
// "2020/properties-2020-000.json".
func ChunkKey(year, id int) string {
	return fmt.Sprintf("%d/%s.json", year, ChunkName(year, id))
}

// ChunkKeyFor returns the artifact key for a chunk already named by a
// manifest entry.
func ChunkKeyFor(year int, name string) string {
	return fmt.Sprintf("%d/%s.json", year, name)
}

// ManifestKey returns the artifact key for a year's manifest.
func ManifestKey(year int) string {
	return fmt.Sprintf("%d/manifest.json", year)
}

// AddressFileKey returns the artifact key for an address overflow file.
func AddressFileKey(year int, hash string) string {
	return fmt.Sprintf("%d/addresses/%s.json", year, hash)
}

// addressHashLen is the truncation width of AddressHash. Part of the
// published naming scheme; changing it renames every addresses/ artifact.
const addressHashLen = 12

// AddressHash derives the overflow-file name for an address: base64 of the
// lowercased address, stripped of the non-alphanumeric base64 characters
// (+, / and padding), truncated to 12 characters.
//
// Two distinct addresses can collide after truncation, in which case the
// later write silently replaces the earlier file. Preserved as-is for
// compatibility with already-hosted artifact trees; widening the hash is a
// breaking format change.
func AddressHash(address string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(strings.ToLower(address)))
	var b strings.Builder
	for _, c := range encoded {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		}
		if b.Len() == addressHashLen {
			break
		}
	}
	return b.String()
}
