package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Sentinel errors for query outcomes the caller surfaces to the user.
var (
	// ErrNoMatchingData means a filter combination matched zero records.
	// Queries fail closed rather than report zeros that look like data.
	ErrNoMatchingData = errors.New("no matching data")

	// ErrUndefinedRatio means a ratio's denominator is zero or absent, so
	// the metric has no defined value.
	ErrUndefinedRatio = errors.New("ratio undefined for this period")

	// ErrUnknownMetric means a metric name is not one of noi, revenue or
	// expenses.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Metric names accepted by ranking and growth queries.
const (
	MetricNOI      = "noi"
	MetricRevenue  = "revenue"
	MetricExpenses = "expenses"
)

// ValidMetric reports whether name is a recognized financial metric.
func ValidMetric(name string) bool {
	switch name {
	case MetricNOI, MetricRevenue, MetricExpenses:
		return true
	}
	return false
}

// PLSummary is the profit-and-loss rollup for one scope. Expenses keep
// their negative sign; NOI is revenue + expenses.
type PLSummary struct {
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	NOI      float64 `json:"noi"`
}

// RankRow is a property ranked by a metric value.
type RankRow struct {
	Property string  `json:"property_name"`
	Value    float64 `json:"value"`
}

// GrowthRow is one property's growth over a consecutive year pair.
type GrowthRow struct {
	Property string  `json:"property_name"`
	Period   string  `json:"period"` // e.g. "2024→2025"
	Growth   float64 `json:"growth"` // fractional, 0.2 = +20%
}

// ExpenseRow is one expense category's signed total.
type ExpenseRow struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// TenantRow is one tenant's revenue within a property.
type TenantRow struct {
	Property string  `json:"property_name"`
	Tenant   string  `json:"tenant_name"`
	Revenue  float64 `json:"revenue"`
}

// FlexFilter is one equality predicate for FlexQuery.
type FlexFilter struct {
	Column string      `json:"column"`
	Value  interface{} `json:"value"`
}

// FlexRow is one aggregated row from FlexQuery: dimension values keyed by
// column name plus the summed metric.
type FlexRow map[string]interface{}

// SchemaInfo enumerates every valid dimension value in the dataset so the
// research agent can ground its filter arguments.
type SchemaInfo struct {
	Properties        []string            `json:"properties"`
	TenantsByProperty map[string][]string `json:"tenants_by_property"`
	AllTenants        []string            `json:"all_tenants"`
	LedgerGroups      []string            `json:"ledger_groups"`
	LedgerCategories  []string            `json:"ledger_categories"`
	Years             []int               `json:"years"`
	Quarters          []string            `json:"quarters"`
	Months            []string            `json:"months"`
}

// PropertyYearPL is one property's P&L for one year, used in the stats
// breakdown.
type PropertyYearPL struct {
	Property string  `json:"property_name"`
	Year     int     `json:"year"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	NOI      float64 `json:"noi"`
}

// EDAStats summarizes the loaded dataset for the exploratory endpoint.
type EDAStats struct {
	Records       int              `json:"records"`
	Properties    int              `json:"properties"`
	Tenants       int              `json:"tenants"`
	Years         []int            `json:"years"`
	TotalRevenue  float64          `json:"total_revenue"`
	TotalExpenses float64          `json:"total_expenses"`
	NOI           float64          `json:"noi"`
	MinAmount     float64          `json:"min_amount"`
	MaxAmount     float64          `json:"max_amount"`
	MeanAmount    float64          `json:"mean_amount"`
	Breakdown     []PropertyYearPL `json:"breakdown"`
}

// Engine runs deterministic financial queries against one Dataset snapshot.
type Engine struct {
	ds *Dataset
}

// NewEngine wraps a dataset snapshot.
func NewEngine(ds *Dataset) *Engine { return &Engine{ds: ds} }

// Dataset returns the snapshot this engine queries.
func (e *Engine) Dataset() *Dataset { return e.ds }

// PropertyPL returns the P&L rollup for one property. year == 0 aggregates
// all years. Returns ErrNoMatchingData when the filter matches no rows.
func (e *Engine) PropertyPL(property string, year int) (PLSummary, error) {
	var sum PLSummary
	matched := false
	for _, r := range e.ds.records {
		if r.Property != property {
			continue
		}
		if year != 0 && r.Year != year {
			continue
		}
		matched = true
		addToSummary(&sum, r)
	}
	if !matched {
		return PLSummary{}, fmt.Errorf("%w: property %q year %d", ErrNoMatchingData, property, year)
	}
	sum.NOI = sum.Revenue + sum.Expenses
	return sum, nil
}

// PortfolioSummary aggregates financials across all properties, excluding
// corporate overhead. year == 0 aggregates all years.
func (e *Engine) PortfolioSummary(year int) (PLSummary, error) {
	var sum PLSummary
	matched := false
	for _, r := range e.ds.records {
		if r.Property == OverheadProperty {
			continue
		}
		if year != 0 && r.Year != year {
			continue
		}
		matched = true
		addToSummary(&sum, r)
	}
	if !matched {
		return PLSummary{}, fmt.Errorf("%w: portfolio year %d", ErrNoMatchingData, year)
	}
	sum.NOI = sum.Revenue + sum.Expenses
	return sum, nil
}

func addToSummary(sum *PLSummary, r Record) {
	switch r.LedgerType {
	case LedgerRevenue:
		sum.Revenue += r.Amount
	case LedgerExpenses:
		sum.Expenses += r.Amount
	}
}

// OER returns the operating expense ratio |expenses| / revenue for one
// property and year. Returns ErrUndefinedRatio when the property has no
// revenue in that year, never a silent zero.
func (e *Engine) OER(property string, year int) (float64, error) {
	pl, err := e.PropertyPL(property, year)
	if err != nil {
		return 0, err
	}
	if pl.Revenue == 0 {
		return 0, fmt.Errorf("%w: %q has no revenue in %d", ErrUndefinedRatio, property, year)
	}
	return math.Abs(pl.Expenses) / pl.Revenue, nil
}

// metricValue extracts the named metric from a P&L rollup.
func metricValue(pl PLSummary, metric string) float64 {
	switch metric {
	case MetricRevenue:
		return pl.Revenue
	case MetricExpenses:
		return pl.Expenses
	default:
		return pl.NOI
	}
}

// GrowthTable computes year-over-year growth on a metric for every property
// over every consecutive year pair. Growth is (curr - prev) / |prev|. Pairs
// where the previous year's value is zero are skipped as undefined. Rows
// are sorted best performer first; ties break on property name.
func (e *Engine) GrowthTable(metric string) ([]GrowthRow, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("%w: %q (valid: noi, revenue, expenses)", ErrUnknownMetric, metric)
	}
	years := e.ds.Years()
	if len(years) < 2 {
		return nil, fmt.Errorf("%w: need at least two years of data for growth", ErrNoMatchingData)
	}

	var rows []GrowthRow
	for _, prop := range e.ds.Properties() {
		for i := 1; i < len(years); i++ {
			prev, cur := years[i-1], years[i]
			plPrev, errPrev := e.PropertyPL(prop, prev)
			plCur, errCur := e.PropertyPL(prop, cur)
			if errPrev != nil || errCur != nil {
				continue
			}
			vPrev := metricValue(plPrev, metric)
			if vPrev == 0 {
				continue
			}
			vCur := metricValue(plCur, metric)
			rows = append(rows, GrowthRow{
				Property: prop,
				Period:   fmt.Sprintf("%d→%d", prev, cur),
				Growth:   (vCur - vPrev) / math.Abs(vPrev),
			})
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no property has comparable years for %s", ErrNoMatchingData, metric)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Growth != rows[j].Growth {
			return rows[i].Growth > rows[j].Growth
		}
		return rows[i].Property < rows[j].Property
	})
	return rows, nil
}

// YoYGrowth returns the growth of one property's metric between two years.
// Returns ErrUndefinedRatio when the earlier year's value is zero.
func (e *Engine) YoYGrowth(property, metric string, yearPrev, yearCurr int) (float64, error) {
	if !ValidMetric(metric) {
		return 0, fmt.Errorf("%w: %q (valid: noi, revenue, expenses)", ErrUnknownMetric, metric)
	}
	plPrev, err := e.PropertyPL(property, yearPrev)
	if err != nil {
		return 0, err
	}
	plCur, err := e.PropertyPL(property, yearCurr)
	if err != nil {
		return 0, err
	}
	vPrev := metricValue(plPrev, metric)
	if vPrev == 0 {
		return 0, fmt.Errorf("%w: %s for %q is zero in %d", ErrUndefinedRatio, metric, property, yearPrev)
	}
	return (metricValue(plCur, metric) - vPrev) / math.Abs(vPrev), nil
}

// RankProperties ranks all non-overhead properties by a metric, highest
// first unless ascending is set, with ties broken by property name for
// stable output. year == 0 aggregates all years.
func (e *Engine) RankProperties(metric string, year int, ascending bool) ([]RankRow, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("%w: %q (valid: noi, revenue, expenses)", ErrUnknownMetric, metric)
	}
	totals := map[string]*PLSummary{}
	for _, r := range e.ds.records {
		if r.Property == OverheadProperty {
			continue
		}
		if year != 0 && r.Year != year {
			continue
		}
		pl := totals[r.Property]
		if pl == nil {
			pl = &PLSummary{}
			totals[r.Property] = pl
		}
		addToSummary(pl, r)
	}
	if len(totals) == 0 {
		if year != 0 {
			return nil, fmt.Errorf("%w: no portfolio rows for year %d", ErrNoMatchingData, year)
		}
		return nil, fmt.Errorf("%w: dataset has no portfolio properties", ErrNoMatchingData)
	}

	rows := make([]RankRow, 0, len(totals))
	for prop, pl := range totals {
		pl.NOI = pl.Revenue + pl.Expenses
		rows = append(rows, RankRow{Property: prop, Value: metricValue(*pl, metric)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			if ascending {
				return rows[i].Value < rows[j].Value
			}
			return rows[i].Value > rows[j].Value
		}
		return rows[i].Property < rows[j].Property
	})
	return rows, nil
}

// TopExpenseDrivers sums expenses per ledger category, most negative first.
// property == "" analyses the whole portfolio; topN <= 0 returns every
// category.
func (e *Engine) TopExpenseDrivers(property string, topN int) ([]ExpenseRow, error) {
	totals := map[string]float64{}
	for _, r := range e.ds.records {
		if r.LedgerType != LedgerExpenses {
			continue
		}
		if property != "" && r.Property != property {
			continue
		}
		totals[r.LedgerCategory] += r.Amount
	}
	if len(totals) == 0 {
		scope := "portfolio"
		if property != "" {
			scope = fmt.Sprintf("property %q", property)
		}
		return nil, fmt.Errorf("%w: no expense rows for %s", ErrNoMatchingData, scope)
	}
	rows := make([]ExpenseRow, 0, len(totals))
	for cat, total := range totals {
		rows = append(rows, ExpenseRow{Category: cat, Total: total})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total < rows[j].Total
		}
		return rows[i].Category < rows[j].Category
	})
	if topN > 0 && topN < len(rows) {
		rows = rows[:topN]
	}
	return rows, nil
}

// TenantSummary returns revenue per tenant, highest first. Either filter may
// be empty. An unknown tenant filter yields ErrNoMatchingData.
func (e *Engine) TenantSummary(property, tenant string) ([]TenantRow, error) {
	type key struct{ prop, tenant string }
	totals := map[key]float64{}
	for _, r := range e.ds.records {
		if r.LedgerType != LedgerRevenue || r.Tenant == "N/A" {
			continue
		}
		if property != "" && r.Property != property {
			continue
		}
		if tenant != "" && r.Tenant != tenant {
			continue
		}
		totals[key{r.Property, r.Tenant}] += r.Amount
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("%w: no tenant revenue for property=%q tenant=%q",
			ErrNoMatchingData, property, tenant)
	}
	rows := make([]TenantRow, 0, len(totals))
	for k, rev := range totals {
		rows = append(rows, TenantRow{Property: k.prop, Tenant: k.tenant, Revenue: rev})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Revenue != rows[j].Revenue {
			return rows[i].Revenue > rows[j].Revenue
		}
		if rows[i].Tenant != rows[j].Tenant {
			return rows[i].Tenant < rows[j].Tenant
		}
		return rows[i].Property < rows[j].Property
	})
	return rows, nil
}

// flexDimensions are the column names FlexQuery accepts for grouping and
// filtering.
var flexDimensions = map[string]func(Record) interface{}{
	"property_name":   func(r Record) interface{} { return r.Property },
	"tenant_name":     func(r Record) interface{} { return r.Tenant },
	"ledger_type":     func(r Record) interface{} { return r.LedgerType },
	"ledger_group":    func(r Record) interface{} { return r.LedgerGroup },
	"ledger_category": func(r Record) interface{} { return r.LedgerCategory },
	"description_en":  func(r Record) interface{} { return r.DescriptionEN },
	"year":            func(r Record) interface{} { return r.Year },
	"month":           func(r Record) interface{} { return r.Month },
	"month_val":       func(r Record) interface{} { return r.MonthVal },
	"quarter":         func(r Record) interface{} { return r.Quarter },
}

// FlexDimensionNames returns the grouping columns FlexQuery understands,
// sorted for stable tool descriptions.
func FlexDimensionNames() []string {
	names := make([]string, 0, len(flexDimensions))
	for name := range flexDimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FlexQuery groups the dataset by the given dimensions, applies equality
// filters, and sums the profit column per group. With no dimensions, the
// filtered total comes back as a single row. Rows are sorted by their
// dimension values for deterministic output.
func (e *Engine) FlexQuery(dimensions []string, filters []FlexFilter) ([]FlexRow, error) {
	var dims []string
	for _, d := range dimensions {
		if _, ok := flexDimensions[d]; ok {
			dims = append(dims, d)
		}
	}

	match := func(r Record) bool {
		for _, f := range filters {
			extract, ok := flexDimensions[f.Column]
			if !ok {
				continue
			}
			if !flexEqual(extract(r), f.Value) {
				return false
			}
		}
		return true
	}

	if len(dims) == 0 {
		total := 0.0
		matched := false
		for _, r := range e.ds.records {
			if match(r) {
				total += r.Amount
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: filters matched no rows", ErrNoMatchingData)
		}
		return []FlexRow{{"profit": total}}, nil
	}

	type group struct {
		values []interface{}
		total  float64
	}
	groups := map[string]*group{}
	for _, r := range e.ds.records {
		if !match(r) {
			continue
		}
		values := make([]interface{}, len(dims))
		var keyB strings.Builder
		for i, d := range dims {
			values[i] = flexDimensions[d](r)
			fmt.Fprintf(&keyB, "%v\x00", values[i])
		}
		key := keyB.String()
		g := groups[key]
		if g == nil {
			g = &group{values: values}
			groups[key] = g
		}
		g.total += r.Amount
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: filters matched no rows", ErrNoMatchingData)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]FlexRow, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		row := FlexRow{}
		for i, d := range dims {
			row[d] = g.values[i]
		}
		row["profit"] = g.total
		rows = append(rows, row)
	}
	return rows, nil
}

// flexEqual compares a record value against a filter value, tolerating the
// int-vs-float64 mismatch JSON decoding introduces for numeric filters.
func flexEqual(recordVal, filterVal interface{}) bool {
	if recordVal == filterVal {
		return true
	}
	switch rv := recordVal.(type) {
	case int:
		switch fv := filterVal.(type) {
		case float64:
			return float64(rv) == fv
		case int:
			return rv == fv
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(fv))
			return err == nil && rv == n
		}
	case string:
		if fv, ok := filterVal.(string); ok {
			return rv == fv
		}
	}
	return false
}

// Schema packages the dataset's vocabularies for the schema discovery tool.
func (e *Engine) Schema() SchemaInfo {
	return SchemaInfo{
		Properties:        e.ds.Properties(),
		TenantsByProperty: e.ds.TenantsByProperty(),
		AllTenants:        e.ds.Tenants(),
		LedgerGroups:      e.ds.LedgerGroups(),
		LedgerCategories:  e.ds.LedgerCategories(),
		Years:             e.ds.Years(),
		Quarters:          e.ds.Quarters(),
		Months:            e.ds.Months(),
	}
}

// Stats computes summary statistics over the whole dataset.
func (e *Engine) Stats() EDAStats {
	stats := EDAStats{
		Records:    e.ds.Len(),
		Properties: len(e.ds.Properties()),
		Tenants:    len(e.ds.Tenants()),
		Years:      e.ds.Years(),
	}
	if stats.Records == 0 {
		return stats
	}
	stats.MinAmount = math.Inf(1)
	stats.MaxAmount = math.Inf(-1)
	total := 0.0
	type cell struct {
		prop string
		year int
	}
	cells := map[cell]*PropertyYearPL{}
	for _, r := range e.ds.records {
		total += r.Amount
		if r.Amount < stats.MinAmount {
			stats.MinAmount = r.Amount
		}
		if r.Amount > stats.MaxAmount {
			stats.MaxAmount = r.Amount
		}
		if r.Property == OverheadProperty {
			continue
		}
		c := cell{r.Property, r.Year}
		pl := cells[c]
		if pl == nil {
			pl = &PropertyYearPL{Property: r.Property, Year: r.Year}
			cells[c] = pl
		}
		switch r.LedgerType {
		case LedgerRevenue:
			stats.TotalRevenue += r.Amount
			pl.Revenue += r.Amount
		case LedgerExpenses:
			stats.TotalExpenses += r.Amount
			pl.Expenses += r.Amount
		}
	}
	stats.NOI = stats.TotalRevenue + stats.TotalExpenses
	stats.MeanAmount = total / float64(stats.Records)

	for _, pl := range cells {
		pl.NOI = pl.Revenue + pl.Expenses
		stats.Breakdown = append(stats.Breakdown, *pl)
	}
	sort.Slice(stats.Breakdown, func(i, j int) bool {
		if stats.Breakdown[i].Property != stats.Breakdown[j].Property {
			return stats.Breakdown[i].Property < stats.Breakdown[j].Property
		}
		return stats.Breakdown[i].Year < stats.Breakdown[j].Year
	})
	return stats
}

// FormatAmount renders a signed number with thousands separators, e.g.
// "-1,234,567.89". Tool results carry these alongside the raw floats so the
// model never re-formats currency itself.
func FormatAmount(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]

	var b strings.Builder
	b.WriteString(sign)
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	b.WriteByte('.')
	b.WriteString(parts[1])
	return b.String()
}

// FormatPercent renders a fractional ratio as a percentage, signed when
// explicit sign display is requested, e.g. "+12.34%" or "35.00%".
func FormatPercent(v float64, signed bool) string {
	if signed {
		return fmt.Sprintf("%+.2f%%", v*100)
	}
	return fmt.Sprintf("%.2f%%", v*100)
}
