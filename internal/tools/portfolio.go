package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cortexre/internal/fuzzy"
	"cortexre/internal/portfolio"
)

// maxQueryRows bounds how many aggregated rows a flexible query reports
// back, keeping tool observations small enough for the model's context.
const maxQueryRows = 50

// NewPortfolioRegistry builds the full portfolio tool set bound to one
// dataset snapshot. Every tool validates its arguments against the
// snapshot's vocabularies before touching the query engine, so the model
// gets a "Did you mean" correction instead of an empty result when it
// misspells a name.
func NewPortfolioRegistry(ds *portfolio.Dataset, similarityFloor float64, maxSuggestions int) *Registry {
	r := NewRegistry()
	engine := portfolio.NewEngine(ds)
	propMatcher := fuzzy.NewMatcher(ds.AllProperties(), similarityFloor, maxSuggestions)
	tenantMatcher := fuzzy.NewMatcher(ds.Tenants(), similarityFloor, maxSuggestions)
	categoryMatcher := fuzzy.NewMatcher(ds.LedgerCategories(), similarityFloor, maxSuggestions)

	validateProperty := func(name string) (string, error) {
		res := propMatcher.Match(name)
		if res.Matched() {
			return res.Exact, nil
		}
		return "", NewToolError(
			fmt.Sprintf("No property named %q was found in the dataset.", name),
			res.SuggestionValues()...)
	}
	validateYear := func(year int) error {
		if ds.HasYear(year) {
			return nil
		}
		return NewToolError(fmt.Sprintf(
			"No financial data is available for the year %d. Available years: %v.",
			year, ds.Years()))
	}

	r.MustRegister(&Tool{
		Name: "list_properties",
		Description: "List all property names known in the dataset. " +
			"Use this tool first whenever the user refers to a property by a partial " +
			"name or asks which properties are available.",
		Schema: ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			props := ds.Properties()
			return marshal(map[string]any{
				"label":      "Known properties",
				"properties": props,
				"count":      len(props),
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "get_property_pl",
		Description: "Return the P&L summary (revenue, expenses, NOI) for a single property. " +
			"Use this when the user asks about profit and loss, revenue, expenses, or Net " +
			"Operating Income for a specific property. For portfolio-wide totals use " +
			"get_portfolio_summary instead.",
		Schema: ToolSchema{
			Required: []string{"property_name"},
			Properties: map[string]Property{
				"property_name": {Type: "string", Description: "Exact property name as it appears in the dataset. Call list_properties first if unsure."},
				"year":          {Type: "integer", Description: "Optional fiscal year, e.g. 2024 or 2025. When omitted, all years are aggregated."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			prop, err := validateProperty(argString(args, "property_name"))
			if err != nil {
				return "", err
			}
			year, err := argYear(args, validateYear)
			if err != nil {
				return "", err
			}
			pl, err := engine.PropertyPL(prop, year)
			if err != nil {
				return "", asToolError(err)
			}
			return marshal(map[string]any{
				"label":         fmt.Sprintf("P&L for '%s' (%s)", prop, yearLabel(year)),
				"property_name": prop,
				"year":          year,
				"revenue":       pl.Revenue,
				"expenses":      pl.Expenses,
				"noi":           pl.NOI,
				"revenue_fmt":   portfolio.FormatAmount(pl.Revenue),
				"expenses_fmt":  portfolio.FormatAmount(pl.Expenses),
				"noi_fmt":       portfolio.FormatAmount(pl.NOI),
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "get_portfolio_summary",
		Description: "Return aggregated financials (revenue, expenses, NOI) across all properties. " +
			"Use this when the user asks about the entire portfolio rather than a specific asset. " +
			"Corporate/General overhead entries are excluded automatically.",
		Schema: ToolSchema{
			Properties: map[string]Property{
				"year": {Type: "integer", Description: "Optional fiscal year filter. When omitted, all years are aggregated."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			year, err := argYear(args, validateYear)
			if err != nil {
				return "", err
			}
			pl, err := engine.PortfolioSummary(year)
			if err != nil {
				return "", asToolError(err)
			}
			return marshal(map[string]any{
				"label":        fmt.Sprintf("Portfolio summary (%s)", yearLabel(year)),
				"year":         year,
				"revenue":      pl.Revenue,
				"expenses":     pl.Expenses,
				"noi":          pl.NOI,
				"revenue_fmt":  portfolio.FormatAmount(pl.Revenue),
				"expenses_fmt": portfolio.FormatAmount(pl.Expenses),
				"noi_fmt":      portfolio.FormatAmount(pl.NOI),
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "calculate_oer",
		Description: "Calculate the Operating Expense Ratio (OER) for a property in a given year. " +
			"OER is |Total Expenses| / Total Revenue. A higher OER means a larger share of " +
			"revenue is consumed by operating costs.",
		Schema: ToolSchema{
			Required: []string{"property_name", "year"},
			Properties: map[string]Property{
				"property_name": {Type: "string", Description: "Exact property name as it appears in the dataset."},
				"year":          {Type: "integer", Description: "The fiscal year to calculate OER for, e.g. 2024 or 2025."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			prop, err := validateProperty(argString(args, "property_name"))
			if err != nil {
				return "", err
			}
			year, err := argYear(args, validateYear)
			if err != nil {
				return "", err
			}
			oer, err := engine.OER(prop, year)
			if err != nil {
				return "", asToolError(err)
			}
			return marshal(map[string]any{
				"label":         fmt.Sprintf("OER for '%s' (%d)", prop, year),
				"property_name": prop,
				"year":          year,
				"oer":           oer,
				"oer_pct":       portfolio.FormatPercent(oer, false),
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "get_growth_metrics",
		Description: "Calculate year-over-year growth for each property across every consecutive " +
			"year pair in the dataset. Use this when the user asks which properties grew or " +
			"declined the most. Results are sorted best performer first.",
		Schema: ToolSchema{
			Properties: map[string]Property{
				"metric": {
					Type:        "string",
					Description: "The financial metric to measure growth on.",
					Default:     "noi",
					Enum:        []any{"noi", "revenue", "expenses"},
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			metric := argString(args, "metric")
			if metric == "" {
				metric = portfolio.MetricNOI
			}
			rows, err := engine.GrowthTable(metric)
			if err != nil {
				return "", asToolError(err)
			}
			out := make([]map[string]any, len(rows))
			for i, row := range rows {
				out[i] = map[string]any{
					"property_name": row.Property,
					"period":        row.Period,
					"growth":        row.Growth,
					"growth_pct":    portfolio.FormatPercent(row.Growth, true),
				}
			}
			return marshal(map[string]any{
				"label":           fmt.Sprintf("YoY growth by %s", metric),
				"metric":          metric,
				"rows":            out,
				"best_performer":  rows[0].Property,
				"worst_performer": rows[len(rows)-1].Property,
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "compare_properties",
		Description: "Rank all properties from highest to lowest by a selected financial metric. " +
			"Use this when the user wants to compare or rank properties against each other.",
		Schema: ToolSchema{
			Properties: map[string]Property{
				"field": {
					Type:        "string",
					Description: "The metric to rank by.",
					Default:     "noi",
					Enum:        []any{"noi", "revenue", "expenses"},
				},
				"year":      {Type: "integer", Description: "Optional fiscal year. When omitted, all years are aggregated."},
				"ascending": {Type: "boolean", Description: "Sort lowest first. Defaults to highest first."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			field := argString(args, "field")
			if field == "" {
				field = portfolio.MetricNOI
			}
			year, err := argYear(args, validateYear)
			if err != nil {
				return "", err
			}
			ascending, _ := args["ascending"].(bool)
			rows, err := engine.RankProperties(field, year, ascending)
			if err != nil {
				return "", asToolError(err)
			}
			out := make([]map[string]any, len(rows))
			for i, row := range rows {
				out[i] = map[string]any{
					"property_name": row.Property,
					"value":         row.Value,
					"value_fmt":     portfolio.FormatAmount(row.Value),
				}
			}
			return marshal(map[string]any{
				"label":        fmt.Sprintf("Property comparison by %s (%s)", field, yearLabel(year)),
				"field":        field,
				"year":         year,
				"rows":         out,
				"top_property": rows[0].Property,
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "top_expense_drivers",
		Description: "Identify the largest expense categories by total cost, for the whole " +
			"portfolio or one property. Results are sorted largest expense first.",
		Schema: ToolSchema{
			Properties: map[string]Property{
				"property_name": {Type: "string", Description: "Optional property name to scope the analysis. When omitted, the whole portfolio is analysed."},
				"top_n":         {Type: "integer", Description: "Optional cap on the number of categories returned, e.g. 5 for the top five."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			prop := argString(args, "property_name")
			if prop != "" {
				var err error
				if prop, err = validateProperty(prop); err != nil {
					return "", err
				}
			}
			topN, err := argInt(args, "top_n")
			if err != nil {
				return "", err
			}
			rows, err := engine.TopExpenseDrivers(prop, topN)
			if err != nil {
				return "", asToolError(err)
			}
			out := make([]map[string]any, len(rows))
			for i, row := range rows {
				out[i] = map[string]any{
					"category":  row.Category,
					"total":     row.Total,
					"total_fmt": portfolio.FormatAmount(row.Total),
				}
			}
			scope := "portfolio"
			if prop != "" {
				scope = fmt.Sprintf("'%s'", prop)
			}
			return marshal(map[string]any{
				"label":           fmt.Sprintf("Top expense drivers (%s)", scope),
				"property_name":   prop,
				"rows":            out,
				"largest_expense": rows[0].Category,
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "query_portfolio",
		Description: "Flexible query engine for custom portfolio analysis across any dimensions. " +
			"Use this as a fallback when no other tool covers the question, e.g. profit by " +
			"tenant or expenses grouped by month. Available dimensions: " +
			strings.Join(portfolio.FlexDimensionNames(), ", ") + ". The only metric is profit.",
		Schema: ToolSchema{
			Required: []string{"dimensions"},
			Properties: map[string]Property{
				"dimensions": {
					Type:        "array",
					Description: "Column names to group by, e.g. [\"tenant_name\"] or [\"year\", \"ledger_type\"].",
					Items:       &PropertyItems{Type: "string"},
				},
				"filters": {
					Type:        "array",
					Description: "Optional equality filters, each an object with \"column\" and \"value\" keys, e.g. [{\"column\": \"year\", \"value\": 2025}].",
					Items:       &PropertyItems{Type: "object"},
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			dims, err := argStringSlice(args, "dimensions")
			if err != nil {
				return "", err
			}
			filters, err := decodeFilters(args["filters"])
			if err != nil {
				return "", err
			}
			if err := validateFilters(ds, filters, validateProperty, tenantMatcher, categoryMatcher); err != nil {
				return "", err
			}

			rows, err := engine.FlexQuery(dims, filters)
			if err != nil {
				return "", asToolError(err)
			}
			if len(rows) > maxQueryRows {
				return marshal(map[string]any{
					"label": "Custom query result (truncated)",
					"rows":  rows[:maxQueryRows],
					"note": fmt.Sprintf("Result truncated. %d total rows found, showing top %d.",
						len(rows), maxQueryRows),
				})
			}
			return marshal(map[string]any{
				"label": "Custom query result",
				"rows":  rows,
			})
		},
	})

	r.MustRegister(&Tool{
		Name: "get_schema_info",
		Description: "Return all valid dimension values available in the dataset: properties, " +
			"tenants per property, ledger groups and categories, years, quarters and months. " +
			"Call this first whenever unsure which exact values to filter on.",
		Schema: ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return marshal(engine.Schema())
		},
	})

	r.MustRegister(&Tool{
		Name: "get_tenant_summary",
		Description: "Return revenue per tenant, ranked from highest to lowest. Use this when " +
			"the user asks who the tenants are, what a tenant pays, or which tenant generates " +
			"the most revenue.",
		Schema: ToolSchema{
			Properties: map[string]Property{
				"property_name": {Type: "string", Description: "Optional property to scope results to."},
				"tenant_name":   {Type: "string", Description: "Optional specific tenant to filter to. Call get_schema_info first if unsure of the exact name."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			prop := argString(args, "property_name")
			if prop != "" {
				var err error
				if prop, err = validateProperty(prop); err != nil {
					return "", err
				}
			}
			tenant := argString(args, "tenant_name")
			if tenant != "" {
				res := tenantMatcher.Match(tenant)
				if !res.Matched() {
					return "", NewToolError(
						fmt.Sprintf("No tenant named %q in the dataset.", tenant),
						res.SuggestionValues()...)
				}
				tenant = res.Exact
			}
			rows, err := engine.TenantSummary(prop, tenant)
			if err != nil {
				return "", asToolError(err)
			}
			out := make([]map[string]any, len(rows))
			for i, row := range rows {
				out[i] = map[string]any{
					"property_name": row.Property,
					"tenant_name":   row.Tenant,
					"revenue":       row.Revenue,
					"revenue_fmt":   portfolio.FormatAmount(row.Revenue),
				}
			}
			return marshal(map[string]any{
				"label":      "Tenant revenue summary",
				"rows":       out,
				"top_tenant": rows[0].Tenant,
			})
		},
	})

	return r
}

// validateFilters checks flexible-query filter values against the dataset
// vocabularies so typos surface as corrections instead of empty results.
func validateFilters(ds *portfolio.Dataset, filters []portfolio.FlexFilter,
	validateProperty func(string) (string, error),
	tenantMatcher, categoryMatcher *fuzzy.Matcher) error {

	for i, f := range filters {
		switch f.Column {
		case "property_name":
			name, _ := f.Value.(string)
			canonical, err := validateProperty(name)
			if err != nil {
				return err
			}
			filters[i].Value = canonical
		case "tenant_name":
			name, _ := f.Value.(string)
			res := tenantMatcher.Match(name)
			if !res.Matched() {
				return NewToolError(
					fmt.Sprintf("No tenant named %q in the dataset. Call get_schema_info to see tenants per property.", name),
					res.SuggestionValues()...)
			}
			filters[i].Value = res.Exact
		case "ledger_category":
			name, _ := f.Value.(string)
			res := categoryMatcher.Match(name)
			if !res.Matched() {
				return NewToolError(
					fmt.Sprintf("No ledger category %q in the dataset. Call get_schema_info for the full list.", name),
					res.SuggestionValues()...)
			}
			filters[i].Value = res.Exact
		}
	}
	return nil
}

// asToolError converts recoverable engine errors into ToolError
// observations; anything else passes through unchanged.
func asToolError(err error) error {
	switch {
	case errors.Is(err, portfolio.ErrNoMatchingData),
		errors.Is(err, portfolio.ErrUndefinedRatio),
		errors.Is(err, portfolio.ErrUnknownMetric):
		return NewToolError(err.Error())
	}
	return err
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(data), nil
}

func yearLabel(year int) string {
	if year == 0 {
		return "all years"
	}
	return fmt.Sprintf("%d", year)
}

// argString fetches a string argument, tolerating absence.
func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// argInt fetches an optional integer argument, tolerating float64 and
// numeric strings.
func argInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, nil
		}
		var out int
		if _, err := fmt.Sscanf(s, "%d", &out); err != nil {
			return 0, NewToolError(fmt.Sprintf("Invalid value %q for %s.", n, key))
		}
		return out, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgType, key)
	}
}

// argYear fetches the optional year argument. JSON numbers arrive as
// float64; strings like "2025" are tolerated since models emit them.
func argYear(args map[string]any, validate func(int) error) (int, error) {
	v, ok := args["year"]
	if !ok || v == nil {
		return 0, nil
	}
	var year int
	switch n := v.(type) {
	case float64:
		year = int(n)
	case int:
		year = n
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, nil
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &year); err != nil {
			return 0, NewToolError(fmt.Sprintf("Invalid year value %q.", n))
		}
	default:
		return 0, fmt.Errorf("%w: year must be an integer", ErrInvalidArgType)
	}
	if year == 0 {
		return 0, nil
	}
	if err := validate(year); err != nil {
		return 0, err
	}
	return year, nil
}

// argStringSlice fetches a required []string argument.
func argStringSlice(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArgType, key)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArgType, key)
}

// decodeFilters converts the raw filters argument into FlexFilter values.
func decodeFilters(v any) ([]portfolio.FlexFilter, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]portfolio.FlexFilter); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("%w: filters must be an array of objects", ErrInvalidArgType)
	}
	filters := make([]portfolio.FlexFilter, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: each filter must be an object with column and value", ErrInvalidArgType)
		}
		col, _ := obj["column"].(string)
		if col == "" {
			return nil, NewToolError("Each filter needs a non-empty \"column\" key.")
		}
		filters = append(filters, portfolio.FlexFilter{Column: col, Value: obj["value"]})
	}
	return filters, nil
}
