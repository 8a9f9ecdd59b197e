package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"cortexre/internal/portfolio"
)

func testDataset() *portfolio.Dataset {
	return portfolio.NewDataset([]portfolio.Record{
		{Property: "Building-120", Tenant: "Acme Corp", LedgerType: portfolio.LedgerRevenue, LedgerCategory: "Rent Income", Year: 2024, Amount: 1_500_000},
		{Property: "Building-120", Tenant: "Acme Corp", LedgerType: portfolio.LedgerRevenue, LedgerCategory: "Rent Income", Year: 2025, Amount: 2_000_000},
		{Property: "Building-120", Tenant: "N/A", LedgerType: portfolio.LedgerExpenses, LedgerCategory: "Maintenance", Year: 2025, Amount: -500_000},
		{Property: "Warehouse-7", Tenant: "Globex", LedgerType: portfolio.LedgerRevenue, LedgerCategory: "Rent Income", Year: 2025, Amount: 760_000},
		{Property: portfolio.OverheadProperty, Tenant: "N/A", LedgerType: portfolio.LedgerExpenses, LedgerCategory: "Head Office", Year: 2025, Amount: -900_000},
	})
}

func testRegistry() *Registry {
	return NewPortfolioRegistry(testDataset(), 0.55, 3)
}

func mustExecute(t *testing.T, r *Registry, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := r.Execute(context.Background(), name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Result), &out); err != nil {
		t.Fatalf("%s result is not JSON: %v", name, err)
	}
	return out
}

func TestPortfolioRegistryHasAllTools(t *testing.T) {
	r := testRegistry()
	want := []string{
		"calculate_oer", "compare_properties", "get_growth_metrics",
		"get_portfolio_summary", "get_property_pl", "get_schema_info",
		"get_tenant_summary", "list_properties", "query_portfolio",
		"top_expense_drivers",
	}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("registered tools: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tool %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListPropertiesExcludesOverhead(t *testing.T) {
	out := mustExecute(t, testRegistry(), "list_properties", nil)
	props := out["properties"].([]any)
	for _, p := range props {
		if p == portfolio.OverheadProperty {
			t.Errorf("overhead property should not be listed: %v", props)
		}
	}
	if out["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", out["count"])
	}
}

func TestGetPropertyPL(t *testing.T) {
	out := mustExecute(t, testRegistry(), "get_property_pl",
		map[string]any{"property_name": "Building-120", "year": float64(2025)})

	if out["revenue"].(float64) != 2_000_000 {
		t.Errorf("revenue = %v, want 2000000", out["revenue"])
	}
	if out["noi_fmt"] != "1,500,000.00" {
		t.Errorf("noi_fmt = %v, want 1,500,000.00", out["noi_fmt"])
	}
}

func TestGetPropertyPLSpacingVariantSuggests(t *testing.T) {
	r := testRegistry()
	_, err := r.Execute(context.Background(), "get_property_pl",
		map[string]any{"property_name": "Building 120"})
	if !IsToolError(err) {
		t.Fatalf("spacing variant should fail validation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Did you mean: Building-120") {
		t.Errorf("error should rank Building-120 first, got %q", err.Error())
	}
}

func TestGetPropertyPLSuggestions(t *testing.T) {
	r := testRegistry()
	_, err := r.Execute(context.Background(), "get_property_pl",
		map[string]any{"property_name": "Bulding-120"})
	if !IsToolError(err) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Did you mean: Building-120") {
		t.Errorf("error should suggest Building-120, got %q", err.Error())
	}
}

func TestGetPropertyPLUnknownYear(t *testing.T) {
	r := testRegistry()
	_, err := r.Execute(context.Background(), "get_property_pl",
		map[string]any{"property_name": "Building-120", "year": float64(2019)})
	if !IsToolError(err) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if !strings.Contains(err.Error(), "2019") {
		t.Errorf("error should name the bad year, got %q", err.Error())
	}
}

func TestCalculateOER(t *testing.T) {
	out := mustExecute(t, testRegistry(), "calculate_oer",
		map[string]any{"property_name": "Building-120", "year": float64(2025)})
	if out["oer"].(float64) != 0.25 {
		t.Errorf("oer = %v, want 0.25", out["oer"])
	}
	if out["oer_pct"] != "25.00%" {
		t.Errorf("oer_pct = %v, want 25.00%%", out["oer_pct"])
	}
}

func TestCalculateOERMissingArgs(t *testing.T) {
	r := testRegistry()
	_, err := r.Execute(context.Background(), "calculate_oer",
		map[string]any{"property_name": "Building-120"})
	if err == nil {
		t.Fatal("expected error for missing required year")
	}
}

func TestPortfolioSummaryExcludesOverhead(t *testing.T) {
	out := mustExecute(t, testRegistry(), "get_portfolio_summary",
		map[string]any{"year": float64(2025)})
	if out["expenses"].(float64) != -500_000 {
		t.Errorf("expenses = %v, want -500000 (overhead excluded)", out["expenses"])
	}
}

func TestGrowthMetricsDefaultsToNOI(t *testing.T) {
	out := mustExecute(t, testRegistry(), "get_growth_metrics", nil)
	if out["metric"] != "noi" {
		t.Errorf("metric = %v, want noi", out["metric"])
	}
	if out["best_performer"] != "Building-120" {
		t.Errorf("best performer = %v, want Building-120", out["best_performer"])
	}
}

func TestGrowthMetricsUnknownMetric(t *testing.T) {
	r := testRegistry()
	_, err := r.Execute(context.Background(), "get_growth_metrics",
		map[string]any{"metric": "ebitda"})
	if !IsToolError(err) {
		t.Errorf("unknown metric should be a ToolError, got %v", err)
	}
}

func TestQueryPortfolio(t *testing.T) {
	out := mustExecute(t, testRegistry(), "query_portfolio", map[string]any{
		"dimensions": []any{"tenant_name"},
		"filters":    []any{map[string]any{"column": "ledger_type", "value": "revenue"}},
	})
	rows := out["rows"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 tenant rows, got %d", len(rows))
	}
}

func TestQueryPortfolioBadTenantFilter(t *testing.T) {
	r := testRegistry()
	_, err := r.Execute(context.Background(), "query_portfolio", map[string]any{
		"dimensions": []any{"year"},
		"filters":    []any{map[string]any{"column": "tenant_name", "value": "Initech"}},
	})
	if !IsToolError(err) {
		t.Errorf("unknown tenant filter should be a ToolError, got %v", err)
	}
}

func TestGetSchemaInfo(t *testing.T) {
	out := mustExecute(t, testRegistry(), "get_schema_info", nil)
	if _, ok := out["tenants_by_property"]; !ok {
		t.Error("schema info missing tenants_by_property")
	}
	years := out["years"].([]any)
	if len(years) != 2 {
		t.Errorf("years = %v, want two entries", years)
	}
}

func TestGetTenantSummaryFuzzyTenant(t *testing.T) {
	r := testRegistry()
	out := mustExecute(t, r, "get_tenant_summary", map[string]any{"tenant_name": "acme corp"})
	rows := out["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if out["top_tenant"] != "Acme Corp" {
		t.Errorf("top_tenant = %v, want Acme Corp", out["top_tenant"])
	}
}

func TestTopExpenseDriversScoped(t *testing.T) {
	out := mustExecute(t, testRegistry(), "top_expense_drivers",
		map[string]any{"property_name": "Building-120"})
	if out["largest_expense"] != "Maintenance" {
		t.Errorf("largest_expense = %v, want Maintenance", out["largest_expense"])
	}
}

func TestTopExpenseDriversTopN(t *testing.T) {
	out := mustExecute(t, testRegistry(), "top_expense_drivers",
		map[string]any{"top_n": float64(1)})
	rows := out["rows"].([]any)
	if len(rows) != 1 {
		t.Errorf("top_n 1 returned %d rows", len(rows))
	}
}

func TestComparePropertiesByYear(t *testing.T) {
	out := mustExecute(t, testRegistry(), "compare_properties",
		map[string]any{"field": "revenue", "year": float64(2024)})
	if out["top_property"] == nil || out["top_property"] == "" {
		t.Errorf("top_property missing: %v", out)
	}
}
