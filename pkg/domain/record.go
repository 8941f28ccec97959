// Package domain defines the land-sale entities and the persisted artifact
// schemas (chunks, manifests, master index, address overflow files) shared by
// the batch pipeline and the query layer.
package domain

import (
	"encoding/json"
	"strings"
)

// SaleRecord is one validated land transaction. Records are created by the
// parser, immutable afterward, and serialized into chunk artifacts.
type SaleRecord struct {
	DistrictCode     string
	PropertyID       string
	UnitNumber       string
	HouseNumber      string
	StreetName       string
	Address          string // unit/house/street composition, uppercased
	Suburb           string
	Postcode         string
	Area             float64
	AreaUnit         string
	ContractDate     string // YYYY-MM-DD, empty when the source date is malformed
	SaleDate         string // YYYY-MM-DD, from the settlement date
	SalePrice        int64
	Zoning           string
	NatureOfProperty string
	PrimaryPurpose   string
	PropertyType     string
	Year             int // the archive's declared year, not parsed from the line
}

// Price validity bounds. Both comparisons are strict: a price of exactly
// 1000 or exactly 50000000 is rejected.
const (
	MinValidPrice = 1000
	MaxValidPrice = 50000000
)

// PriceValid reports whether the sale price falls inside the validity bound.
func (r *SaleRecord) PriceValid() bool {
	return r.SalePrice > MinValidPrice && r.SalePrice < MaxValidPrice
}

// compactRecord is the aliased wire shape used inside chunk and address-file
// artifacts. The alias table is a versioned schema: changing a key breaks
// every already-published artifact tree.
//
//	a address, s suburb, p postcode, t propertyType, $ salePrice, d saleDate,
//	l districtCode, m area, y year, z zoning, n natureOfProperty
type compactRecord struct {
	Address      string  `json:"a"`
	Suburb       string  `json:"s"`
	Postcode     string  `json:"p"`
	PropertyType string  `json:"t"`
	SalePrice    int64   `json:"$"`
	SaleDate     string  `json:"d"`
	DistrictCode string  `json:"l"`
	Area         float64 `json:"m"`
	Year         int     `json:"y"`
	Zoning       string  `json:"z"`
	Nature       string  `json:"n"`
}

// expandedRecord is the long-key shape some sources emit. Both shapes decode
// into the same SaleRecord; there is no runtime field probing.
type expandedRecord struct {
	Address      string  `json:"address"`
	Suburb       string  `json:"suburb"`
	Postcode     string  `json:"postcode"`
	PropertyType string  `json:"propertyType"`
	SalePrice    int64   `json:"salePrice"`
	SaleDate     string  `json:"saleDate"`
	DistrictCode string  `json:"districtCode"`
	Area         float64 `json:"area"`
	Year         int     `json:"year"`
	Zoning       string  `json:"zoning"`
	Nature       string  `json:"natureOfProperty"`
}

// MarshalJSON emits the compact aliased shape. Chunk artifacts are plain
// JSON arrays of these objects.
func (r SaleRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(compactRecord{
		Address:      r.Address,
		Suburb:       r.Suburb,
		Postcode:     r.Postcode,
		PropertyType: r.PropertyType,
		SalePrice:    r.SalePrice,
		SaleDate:     r.SaleDate,
		DistrictCode: r.DistrictCode,
		Area:         r.Area,
		Year:         r.Year,
		Zoning:       r.Zoning,
		Nature:       r.NatureOfProperty,
	})
}

// UnmarshalJSON decodes the compact aliased shape.
func (r *SaleRecord) UnmarshalJSON(data []byte) error {
	var c compactRecord
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*r = SaleRecord{
		Address:          c.Address,
		Suburb:           c.Suburb,
		Postcode:         c.Postcode,
		PropertyType:     c.PropertyType,
		SalePrice:        c.SalePrice,
		SaleDate:         c.SaleDate,
		DistrictCode:     c.DistrictCode,
		Area:             c.Area,
		Year:             c.Year,
		Zoning:           c.Zoning,
		NatureOfProperty: c.Nature,
	}
	return nil
}

// DecodeCompactRecords decodes a chunk artifact payload (a JSON array of
// compact records).
func DecodeCompactRecords(data []byte) ([]SaleRecord, error) {
	var out []SaleRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeExpandedRecords decodes a JSON array of long-key records.
func DecodeExpandedRecords(data []byte) ([]SaleRecord, error) {
	var raw []expandedRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]SaleRecord, len(raw))
	for i, e := range raw {
		out[i] = SaleRecord{
			Address:          e.Address,
			Suburb:           e.Suburb,
			Postcode:         e.Postcode,
			PropertyType:     e.PropertyType,
			SalePrice:        e.SalePrice,
			SaleDate:         e.SaleDate,
			DistrictCode:     e.DistrictCode,
			Area:             e.Area,
			Year:             e.Year,
			Zoning:           e.Zoning,
			NatureOfProperty: e.Nature,
		}
	}
	return out, nil
}

// Property-type categories derived from the nature-of-property flag and the
// primary purpose text.
const (
	TypeVacantLand = "Vacant Land"
	TypeResidence  = "Residence"
	TypeHouse      = "House"
	TypeUnit       = "Unit"
	TypeTownhouse  = "Townhouse"
	TypeProperty   = "Property"
)

// ClassifyProperty derives the property-type category. The cascade is
// first-match-wins; the fallthrough category is "Property".
func ClassifyProperty(nature, purpose string) string {
	upper := strings.ToUpper(purpose)
	switch {
	case nature == "V":
		return TypeVacantLand
	case nature == "R":
		return TypeResidence
	case strings.Contains(upper, "RESIDENCE"):
		return TypeHouse
	case strings.Contains(upper, "UNIT"):
		return TypeUnit
	case strings.Contains(upper, "TOWNHOUSE"):
		return TypeTownhouse
	case nature == "3" && purpose != "":
		return purpose
	default:
		return TypeProperty
	}
}

// ComposeAddress builds the canonical full address from its parts:
// "unit/house street", uppercased, with absent parts elided.
func ComposeAddress(unit, house, street string) string {
	var b strings.Builder
	if unit != "" {
		b.WriteString(unit)
		b.WriteString("/")
	}
	if house != "" {
		b.WriteString(house)
		b.WriteString(" ")
	}
	b.WriteString(street)
	return strings.ToUpper(strings.TrimSpace(b.String()))
}
