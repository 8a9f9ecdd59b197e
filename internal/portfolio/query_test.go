package portfolio

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testRecords() []Record {
	return []Record{
		{Property: "Building-120", Tenant: "Acme Corp", LedgerType: LedgerRevenue, LedgerCategory: "Rent Income", Year: 2024, Amount: 1_500_000},
		{Property: "Building-120", Tenant: "N/A", LedgerType: LedgerExpenses, LedgerCategory: "Maintenance", Year: 2024, Amount: -400_000},
		{Property: "Building-120", Tenant: "Acme Corp", LedgerType: LedgerRevenue, LedgerCategory: "Rent Income", Year: 2025, Amount: 2_000_000},
		{Property: "Building-120", Tenant: "N/A", LedgerType: LedgerExpenses, LedgerCategory: "Maintenance", Year: 2025, Amount: -300_000},
		{Property: "Building-120", Tenant: "N/A", LedgerType: LedgerExpenses, LedgerCategory: "Utilities", Year: 2025, Amount: -200_000},
		{Property: "Warehouse-7", Tenant: "Globex", LedgerType: LedgerRevenue, LedgerCategory: "Rent Income", Year: 2024, Amount: 800_000},
		{Property: "Warehouse-7", Tenant: "N/A", LedgerType: LedgerExpenses, LedgerCategory: "Utilities", Year: 2024, Amount: -350_000},
		{Property: "Warehouse-7", Tenant: "Globex", LedgerType: LedgerRevenue, LedgerCategory: "Rent Income", Year: 2025, Amount: 760_000},
		{Property: OverheadProperty, Tenant: "N/A", LedgerType: LedgerExpenses, LedgerCategory: "Head Office", Year: 2025, Amount: -900_000},
	}
}

func testEngine() *Engine {
	return NewEngine(NewDataset(testRecords()))
}

func TestPropertyPL(t *testing.T) {
	e := testEngine()

	pl, err := e.PropertyPL("Building-120", 2025)
	if err != nil {
		t.Fatalf("PropertyPL: %v", err)
	}
	if pl.Revenue != 2_000_000 {
		t.Errorf("revenue = %f, want 2000000", pl.Revenue)
	}
	if pl.Expenses != -500_000 {
		t.Errorf("expenses = %f, want -500000", pl.Expenses)
	}
	if pl.NOI != 1_500_000 {
		t.Errorf("noi = %f, want 1500000", pl.NOI)
	}
}

func TestPropertyPLAllYears(t *testing.T) {
	e := testEngine()

	pl, err := e.PropertyPL("Building-120", 0)
	if err != nil {
		t.Fatalf("PropertyPL: %v", err)
	}
	if pl.Revenue != 3_500_000 {
		t.Errorf("revenue = %f, want 3500000", pl.Revenue)
	}
	if pl.NOI != 2_600_000 {
		t.Errorf("noi = %f, want 2600000", pl.NOI)
	}
}

func TestPropertyPLNoData(t *testing.T) {
	e := testEngine()

	_, err := e.PropertyPL("Building-120", 2019)
	if !errors.Is(err, ErrNoMatchingData) {
		t.Errorf("expected ErrNoMatchingData, got %v", err)
	}
}

func TestPortfolioSummaryExcludesOverhead(t *testing.T) {
	e := testEngine()

	pl, err := e.PortfolioSummary(2025)
	if err != nil {
		t.Fatalf("PortfolioSummary: %v", err)
	}
	// The Corporate/General -900,000 row must not appear.
	if pl.Expenses != -500_000 {
		t.Errorf("expenses = %f, want -500000 (overhead excluded)", pl.Expenses)
	}
	if pl.Revenue != 2_760_000 {
		t.Errorf("revenue = %f, want 2760000", pl.Revenue)
	}
}

func TestOER(t *testing.T) {
	e := testEngine()

	oer, err := e.OER("Building-120", 2025)
	if err != nil {
		t.Fatalf("OER: %v", err)
	}
	if oer != 0.25 {
		t.Errorf("oer = %f, want 0.25", oer)
	}
}

func TestOERUndefinedOnZeroRevenue(t *testing.T) {
	e := NewEngine(NewDataset([]Record{
		{Property: "Vacant-1", LedgerType: LedgerExpenses, LedgerCategory: "Security", Year: 2025, Amount: -10_000},
	}))

	_, err := e.OER("Vacant-1", 2025)
	if !errors.Is(err, ErrUndefinedRatio) {
		t.Errorf("expected ErrUndefinedRatio, got %v", err)
	}
}

func TestYoYGrowth(t *testing.T) {
	e := testEngine()

	g, err := e.YoYGrowth("Building-120", MetricRevenue, 2024, 2025)
	if err != nil {
		t.Fatalf("YoYGrowth: %v", err)
	}
	// 1.5M -> 2.0M is +33.33%.
	if g < 0.333 || g > 0.334 {
		t.Errorf("growth = %f, want ~0.3333", g)
	}
}

func TestYoYGrowthUndefinedOnZeroBase(t *testing.T) {
	e := NewEngine(NewDataset([]Record{
		{Property: "New-1", LedgerType: LedgerRevenue, Year: 2024, Amount: 0},
		{Property: "New-1", LedgerType: LedgerRevenue, Year: 2025, Amount: 100},
	}))

	_, err := e.YoYGrowth("New-1", MetricRevenue, 2024, 2025)
	if !errors.Is(err, ErrUndefinedRatio) {
		t.Errorf("expected ErrUndefinedRatio, got %v", err)
	}
}

func TestGrowthTableSorted(t *testing.T) {
	e := testEngine()

	rows, err := e.GrowthTable(MetricRevenue)
	if err != nil {
		t.Fatalf("GrowthTable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Building-120 grew, Warehouse-7 declined.
	if rows[0].Property != "Building-120" {
		t.Errorf("best performer = %q, want Building-120", rows[0].Property)
	}
	if rows[1].Growth >= 0 {
		t.Errorf("Warehouse-7 growth should be negative, got %f", rows[1].Growth)
	}
}

func TestGrowthTableUnknownMetric(t *testing.T) {
	e := testEngine()

	_, err := e.GrowthTable("ebitda")
	if !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestRankProperties(t *testing.T) {
	e := testEngine()

	rows, err := e.RankProperties(MetricNOI, 0, false)
	if err != nil {
		t.Fatalf("RankProperties: %v", err)
	}
	want := []RankRow{
		{Property: "Building-120", Value: 2_600_000},
		{Property: "Warehouse-7", Value: 1_210_000},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestRankPropertiesAscending(t *testing.T) {
	e := testEngine()

	rows, err := e.RankProperties(MetricNOI, 0, true)
	if err != nil {
		t.Fatalf("RankProperties: %v", err)
	}
	if rows[0].Property != "Warehouse-7" {
		t.Errorf("ascending order should put the lowest NOI first, got %v", rows)
	}
}

func TestRankPropertiesByYear(t *testing.T) {
	e := testEngine()

	rows, err := e.RankProperties(MetricNOI, 2024, false)
	if err != nil {
		t.Fatalf("RankProperties: %v", err)
	}
	want := []RankRow{
		{Property: "Building-120", Value: 1_100_000},
		{Property: "Warehouse-7", Value: 450_000},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.RankProperties(MetricNOI, 2019, false); !errors.Is(err, ErrNoMatchingData) {
		t.Errorf("expected ErrNoMatchingData for absent year, got %v", err)
	}
}

func TestRankPropertiesTieBreaksOnName(t *testing.T) {
	e := NewEngine(NewDataset([]Record{
		{Property: "B", LedgerType: LedgerRevenue, Year: 2025, Amount: 100},
		{Property: "A", LedgerType: LedgerRevenue, Year: 2025, Amount: 100},
	}))

	rows, err := e.RankProperties(MetricRevenue, 0, false)
	if err != nil {
		t.Fatalf("RankProperties: %v", err)
	}
	if rows[0].Property != "A" || rows[1].Property != "B" {
		t.Errorf("equal values should order by name, got %v", rows)
	}
}

func TestTopExpenseDrivers(t *testing.T) {
	e := testEngine()

	rows, err := e.TopExpenseDrivers("Building-120", 0)
	if err != nil {
		t.Fatalf("TopExpenseDrivers: %v", err)
	}
	want := []ExpenseRow{
		{Category: "Maintenance", Total: -700_000},
		{Category: "Utilities", Total: -200_000},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("expense drivers mismatch (-want +got):\n%s", diff)
	}
}

func TestTopExpenseDriversTopN(t *testing.T) {
	e := testEngine()

	rows, err := e.TopExpenseDrivers("", 1)
	if err != nil {
		t.Fatalf("TopExpenseDrivers: %v", err)
	}
	if len(rows) != 1 || rows[0].Category != "Head Office" {
		t.Errorf("topN rows = %v, want the single largest category", rows)
	}
}

func TestTenantSummary(t *testing.T) {
	e := testEngine()

	rows, err := e.TenantSummary("", "")
	if err != nil {
		t.Fatalf("TenantSummary: %v", err)
	}
	if rows[0].Tenant != "Acme Corp" {
		t.Errorf("top tenant = %q, want Acme Corp", rows[0].Tenant)
	}
	if rows[0].Revenue != 3_500_000 {
		t.Errorf("top tenant revenue = %f, want 3500000", rows[0].Revenue)
	}
}

func TestTenantSummaryNoMatch(t *testing.T) {
	e := testEngine()

	_, err := e.TenantSummary("", "Initech")
	if !errors.Is(err, ErrNoMatchingData) {
		t.Errorf("expected ErrNoMatchingData, got %v", err)
	}
}

func TestFlexQueryGroupAndFilter(t *testing.T) {
	e := testEngine()

	rows, err := e.FlexQuery(
		[]string{"property_name"},
		[]FlexFilter{{Column: "year", Value: float64(2025)}, {Column: "ledger_type", Value: "revenue"}},
	)
	if err != nil {
		t.Fatalf("FlexQuery: %v", err)
	}
	want := []FlexRow{
		{"property_name": "Building-120", "profit": 2_000_000.0},
		{"property_name": "Warehouse-7", "profit": 760_000.0},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("flex rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFlexQueryNoDimensionsTotals(t *testing.T) {
	e := testEngine()

	rows, err := e.FlexQuery(nil, []FlexFilter{{Column: "property_name", Value: "Warehouse-7"}})
	if err != nil {
		t.Fatalf("FlexQuery: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one total row, got %d", len(rows))
	}
	if got := rows[0]["profit"].(float64); got != 1_210_000 {
		t.Errorf("total = %f, want 1210000", got)
	}
}

func TestFlexQueryFailsClosed(t *testing.T) {
	e := testEngine()

	_, err := e.FlexQuery([]string{"year"}, []FlexFilter{{Column: "tenant_name", Value: "Nobody"}})
	if !errors.Is(err, ErrNoMatchingData) {
		t.Errorf("expected ErrNoMatchingData, got %v", err)
	}
}

func TestSchema(t *testing.T) {
	e := testEngine()

	schema := e.Schema()
	if diff := cmp.Diff([]string{"Building-120", "Warehouse-7"}, schema.Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Acme Corp", "Globex"}, schema.AllTenants); diff != "" {
		t.Errorf("tenants mismatch (-want +got):\n%s", diff)
	}
}

func TestStats(t *testing.T) {
	e := testEngine()

	stats := e.Stats()
	if stats.Records != 9 {
		t.Errorf("records = %d, want 9", stats.Records)
	}
	if stats.TotalRevenue != 5_060_000 {
		t.Errorf("total revenue = %f, want 5060000", stats.TotalRevenue)
	}
	if stats.MinAmount != -900_000 {
		t.Errorf("min = %f, want -900000", stats.MinAmount)
	}
	// Two properties x two years, overhead excluded; ordered by property
	// then year.
	if len(stats.Breakdown) != 4 {
		t.Fatalf("breakdown rows = %d, want 4", len(stats.Breakdown))
	}
	first := stats.Breakdown[0]
	if first.Property != "Building-120" || first.Year != 2024 || first.NOI != 1_100_000 {
		t.Errorf("breakdown[0] = %+v", first)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{
		0:            "0.00",
		1234567.891:  "1,234,567.89",
		-1234567.891: "-1,234,567.89",
		-500000:      "-500,000.00",
		999:          "999.00",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%f) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.25, false); got != "25.00%" {
		t.Errorf("FormatPercent = %q, want 25.00%%", got)
	}
	if got := FormatPercent(0.2, true); got != "+20.00%" {
		t.Errorf("FormatPercent signed = %q, want +20.00%%", got)
	}
	if got := FormatPercent(-0.05, true); got != "-5.00%" {
		t.Errorf("FormatPercent negative = %q, want -5.00%%", got)
	}
}
