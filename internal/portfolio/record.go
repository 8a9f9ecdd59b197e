// Package portfolio holds the normalized financial dataset and the
// deterministic query engine the research tools are built on. All
// calculations here are pure Go arithmetic over in-memory records; the
// LLM never computes a number itself.
package portfolio

import (
	"sort"
	"time"
)

// OverheadProperty is the property name used for corporate overhead entries
// that do not belong to a specific asset. Excluded from portfolio-level
// aggregates and rankings.
const OverheadProperty = "Corporate/General"

// Ledger types distinguishing revenue rows from expense rows.
const (
	LedgerRevenue  = "revenue"
	LedgerExpenses = "expenses"
)

// Record is one normalized general-ledger line. Amount carries its natural
// sign: revenue positive, expenses negative.
type Record struct {
	Property       string
	Tenant         string
	LedgerType     string
	LedgerGroup    string
	LedgerCategory string
	Description    string
	DescriptionEN  string
	Month          string // raw period label, e.g. "2025-M01"
	Quarter        string // raw quarter label, e.g. "2025-Q1"
	Date           time.Time
	QuarterStart   time.Time
	Year           int
	MonthVal       int
	Amount         float64
}

// Dataset is an immutable snapshot of the loaded records plus cached
// vocabularies used for tool-argument validation. Build one with
// NewDataset; never mutate it after construction.
type Dataset struct {
	records []Record

	properties       []string // sorted, excludes OverheadProperty
	allProperties    []string // sorted, includes OverheadProperty when present
	tenants          []string // sorted, excludes "N/A"
	ledgerGroups     []string
	ledgerCategories []string
	years            []int
	quarters         []string
	months           []string
	tenantsByProp    map[string][]string
}

// NewDataset builds a Dataset snapshot from normalized records and caches
// the distinct-value vocabularies.
func NewDataset(records []Record) *Dataset {
	d := &Dataset{
		records:       records,
		tenantsByProp: make(map[string][]string),
	}

	propSet := map[string]bool{}
	tenantSet := map[string]bool{}
	groupSet := map[string]bool{}
	catSet := map[string]bool{}
	yearSet := map[int]bool{}
	quarterSet := map[string]bool{}
	monthSet := map[string]bool{}
	tenantsByProp := map[string]map[string]bool{}

	for _, r := range records {
		if r.Property != "" {
			propSet[r.Property] = true
		}
		if r.Tenant != "" && r.Tenant != "N/A" {
			tenantSet[r.Tenant] = true
			if tenantsByProp[r.Property] == nil {
				tenantsByProp[r.Property] = map[string]bool{}
			}
			tenantsByProp[r.Property][r.Tenant] = true
		}
		if r.LedgerGroup != "" {
			groupSet[r.LedgerGroup] = true
		}
		if r.LedgerCategory != "" {
			catSet[r.LedgerCategory] = true
		}
		if r.Year != 0 {
			yearSet[r.Year] = true
		}
		if r.Quarter != "" {
			quarterSet[r.Quarter] = true
		}
		if r.Month != "" {
			monthSet[r.Month] = true
		}
	}

	d.allProperties = sortedKeys(propSet)
	for _, p := range d.allProperties {
		if p != OverheadProperty {
			d.properties = append(d.properties, p)
		}
	}
	d.tenants = sortedKeys(tenantSet)
	d.ledgerGroups = sortedKeys(groupSet)
	d.ledgerCategories = sortedKeys(catSet)
	d.quarters = sortedKeys(quarterSet)
	d.months = sortedKeys(monthSet)

	for y := range yearSet {
		d.years = append(d.years, y)
	}
	sort.Ints(d.years)

	for prop, set := range tenantsByProp {
		d.tenantsByProp[prop] = sortedKeys(set)
	}
	return d
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of records in the snapshot.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns the underlying record slice. Callers must not mutate it.
func (d *Dataset) Records() []Record { return d.records }

// Properties returns the sorted property names, excluding overhead.
func (d *Dataset) Properties() []string { return d.properties }

// AllProperties returns every property name including overhead entries.
func (d *Dataset) AllProperties() []string { return d.allProperties }

// Tenants returns the sorted tenant names, excluding the "N/A" filler.
func (d *Dataset) Tenants() []string { return d.tenants }

// LedgerGroups returns the sorted distinct ledger group names.
func (d *Dataset) LedgerGroups() []string { return d.ledgerGroups }

// LedgerCategories returns the sorted distinct ledger category names.
func (d *Dataset) LedgerCategories() []string { return d.ledgerCategories }

// Years returns the sorted distinct fiscal years.
func (d *Dataset) Years() []int { return d.years }

// Quarters returns the sorted distinct quarter labels.
func (d *Dataset) Quarters() []string { return d.quarters }

// Months returns the sorted distinct month labels.
func (d *Dataset) Months() []string { return d.months }

// TenantsByProperty maps each property to its sorted tenant names.
func (d *Dataset) TenantsByProperty() map[string][]string { return d.tenantsByProp }

// HasProperty reports whether name is an exact property in the dataset.
func (d *Dataset) HasProperty(name string) bool {
	for _, p := range d.allProperties {
		if p == name {
			return true
		}
	}
	return false
}

// HasYear reports whether the dataset contains rows for the given year.
func (d *Dataset) HasYear(year int) bool {
	for _, y := range d.years {
		if y == year {
			return true
		}
	}
	return false
}
