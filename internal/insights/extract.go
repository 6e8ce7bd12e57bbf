package insights

import (
	"math"
	"strconv"
	"strings"

	"github.com/brandpulse/insights-go/internal/models"
)

// parseAmount turns a decimal string from the feed into a usable
// number. Malformed input, NaN, Inf and negatives all collapse to 0 so
// a single bad row can never poison downstream sums.
func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// actionValue finds the first list entry of the given action type and
// parses its value. Missing entries yield 0.
func actionValue(entries []models.ActionEntry, actionType string) float64 {
	for _, e := range entries {
		if e.ActionType == actionType {
			return parseAmount(e.Value)
		}
	}
	return 0
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Extract derives the metric set for one raw row. Revenue and result
// counts come from the purchase action, falling back to Meta's
// omni_purchase variant.
func Extract(row models.RawRow) models.MetricUnit {
	spend := parseAmount(row.Spend)
	revenue := firstNonZero(
		actionValue(row.ActionValues, "purchase"),
		actionValue(row.ActionValues, "omni_purchase"),
	)
	results := firstNonZero(
		actionValue(row.Actions, "purchase"),
		actionValue(row.Actions, "omni_purchase"),
	)
	return models.MetricUnit{
		Spend:   spend,
		Revenue: revenue,
		Results: results,
		ROAS:    safeDiv(revenue, spend),
		CAC:     safeDiv(spend, results),
	}
}

// Index builds the campaign-id lookup for one window. A duplicate id
// within the window keeps the later row, it is not summed.
func Index(rows []models.RawRow) map[string]models.MetricUnit {
	idx := make(map[string]models.MetricUnit, len(rows))
	for _, r := range rows {
		idx[r.CampaignID] = Extract(r)
	}
	return idx
}
