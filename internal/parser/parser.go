// Package parser decodes raw semicolon-delimited land-sale lines into
// validated domain records.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"landsales/internal/metrics"
	"landsales/pkg/domain"
)

// Sale lines start with the record-type sentinel "B" followed by the field
// delimiter. Every other line (headers, parties, trailers) is ignored.
const saleLinePrefix = "B;"

// minFields is the minimum positional field count for a candidate line.
const minFields = 20

// Positional field indexes within a sale line.
const (
	fieldDistrict     = 1
	fieldPropertyID   = 2
	fieldUnitNumber   = 6
	fieldHouseNumber  = 7
	fieldStreetName   = 8
	fieldLocality     = 9
	fieldPostcode     = 10
	fieldArea         = 11
	fieldAreaUnit     = 12
	fieldContractDate = 13
	fieldSettlement   = 14
	fieldSalePrice    = 15
	fieldZoning       = 16
	fieldNature       = 17
	fieldPurpose      = 18
)

// Parse decodes one raw line given the year of the enclosing archive.
// It returns nil for any line that is not a valid sale record; candidate
// reports whether the line carried the sale sentinel at all, so callers can
// distinguish rejected records from ignored noise.
func Parse(line string, year int) (record *domain.SaleRecord, candidate bool) {
	if !strings.HasPrefix(line, saleLinePrefix) {
		return nil, false
	}
	fields := strings.Split(line, ";")
	if len(fields) < minFields {
		return nil, true
	}

	address := domain.ComposeAddress(fields[fieldUnitNumber], fields[fieldHouseNumber], fields[fieldStreetName])
	suburb := strings.TrimSpace(fields[fieldLocality])
	if address == "" || suburb == "" {
		return nil, true
	}

	r := &domain.SaleRecord{
		DistrictCode:     fields[fieldDistrict],
		PropertyID:       fields[fieldPropertyID],
		UnitNumber:       fields[fieldUnitNumber],
		HouseNumber:      fields[fieldHouseNumber],
		StreetName:       fields[fieldStreetName],
		Address:          address,
		Suburb:           suburb,
		Postcode:         fields[fieldPostcode],
		Area:             parseFloat(fields[fieldArea]),
		AreaUnit:         fields[fieldAreaUnit],
		ContractDate:     reformatDate(fields[fieldContractDate]),
		SaleDate:         reformatDate(fields[fieldSettlement]),
		SalePrice:        parsePrice(fields[fieldSalePrice]),
		Zoning:           fields[fieldZoning],
		NatureOfProperty: fields[fieldNature],
		PrimaryPurpose:   fields[fieldPurpose],
		PropertyType:     domain.ClassifyProperty(fields[fieldNature], fields[fieldPurpose]),
		Year:             year,
	}
	if !r.PriceValid() {
		return nil, true
	}
	return r, true
}

// ParseAll scans a raw data file, returning its valid records and the number
// of candidate lines rejected by validation. A scan error (a line over the
// buffer limit, a read failure) ends the scan early; the records parsed up to
// that point are returned alongside the error so callers can keep them.
func ParseAll(data []byte, year int) (records []domain.SaleRecord, rejected int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		record, candidate := Parse(scanner.Text(), year)
		switch {
		case record != nil:
			metrics.RecordsParsed.Inc()
			records = append(records, *record)
		case candidate:
			metrics.RecordsRejected.Inc()
			rejected++
		}
	}
	if err := scanner.Err(); err != nil {
		return records, rejected, fmt.Errorf("scan data file: %w", err)
	}
	return records, rejected, nil
}

// reformatDate turns an 8-character YYYYMMDD value into YYYY-MM-DD. Any
// other length yields the empty string, never an error.
func reformatDate(s string) string {
	if len(s) != 8 {
		return ""
	}
	return s[0:4] + "-" + s[4:6] + "-" + s[6:8]
}

// parseFloat decodes a numeric field, defaulting to zero on failure.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parsePrice decodes the sale price, tolerating decimal notation and
// defaulting to zero on failure (which the price bound then rejects).
func parsePrice(s string) int64 {
	trimmed := strings.TrimSpace(s)
	if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return int64(v)
	}
	return 0
}
