package portfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cortexre/internal/logging"
)

// quarterStartMonth maps a quarter suffix to the month its period begins.
var quarterStartMonth = map[string]time.Month{
	"Q1": time.January,
	"Q2": time.April,
	"Q3": time.July,
	"Q4": time.October,
}

// LoadCSV reads a portfolio ledger CSV from path, normalizes every row and
// returns an immutable Dataset snapshot. The header row names the columns;
// unknown columns are ignored so datasets can carry extra fields.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	logging.Portfolio("loaded dataset %s: %d records, %d properties, years %v",
		path, ds.Len(), len(ds.Properties()), ds.Years())
	return ds, nil
}

// ReadCSV parses CSV ledger data from r and normalizes it into a Dataset.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}
	if _, ok := cols["profit"]; !ok {
		return nil, fmt.Errorf("dataset is missing required column %q", "profit")
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		rec, err := normalizeRow(cols, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return NewDataset(records), nil
}

// normalizeRow applies the standard cleanup steps to one raw CSV row:
// whitespace trimming, missing-value fills, period parsing and the
// English half of bilingual descriptions.
func normalizeRow(cols map[string]int, row []string) (Record, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := Record{
		Property:       field("property_name"),
		Tenant:         field("tenant_name"),
		LedgerType:     strings.ToLower(field("ledger_type")),
		LedgerGroup:    field("ledger_group"),
		LedgerCategory: field("ledger_category"),
		Month:          field("month"),
		Quarter:        field("quarter"),
	}

	// Description keeps its raw spacing. Bilingual values carry the
	// English half after the last "|".
	if i, ok := cols["ledger_description"]; ok && i < len(row) {
		rec.Description = row[i]
		rec.DescriptionEN = strings.TrimSpace(rec.Description)
		if idx := strings.LastIndex(rec.Description, "|"); idx >= 0 {
			rec.DescriptionEN = strings.TrimSpace(rec.Description[idx+1:])
		}
	}

	if rec.Property == "" {
		rec.Property = OverheadProperty
	}
	if rec.Tenant == "" {
		rec.Tenant = "N/A"
	}

	if rec.Month != "" {
		date, err := parseMonth(rec.Month)
		if err != nil {
			logging.PortfolioWarn("unparseable month %q: %v", rec.Month, err)
		} else {
			rec.Date = date
			rec.Year = date.Year()
			rec.MonthVal = int(date.Month())
		}
	}
	if rec.Quarter != "" {
		if qs, err := parseQuarter(rec.Quarter); err == nil {
			rec.QuarterStart = qs
		} else {
			logging.PortfolioWarn("unparseable quarter %q: %v", rec.Quarter, err)
		}
	}

	amountStr := field("profit")
	if amountStr != "" {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(amountStr, ",", ""), 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid amount %q: %w", amountStr, err)
		}
		rec.Amount = amount
	}
	return rec, nil
}

// parseMonth turns "2025-M01" into the first day of that month.
func parseMonth(s string) (time.Time, error) {
	norm := strings.Replace(s, "-M", "-", 1)
	return time.Parse("2006-01", norm)
}

// parseQuarter turns "2025-Q1" into the first day of that quarter.
func parseQuarter(s string) (time.Time, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed quarter %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed quarter year %q", s)
	}
	month, ok := quarterStartMonth[parts[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown quarter suffix %q", parts[1])
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), nil
}
