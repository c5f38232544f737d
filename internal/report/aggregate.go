package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// Options tunes aggregation
type Options struct {
	// InferModelNames guesses a model from the deployment name when the
	// deployment listing does not know it
	InferModelNames bool
}

// Aggregate builds the report. Each resource contributes one row per
// deployment with activity; rows of different resources are never merged,
// even when deployment names collide.
func Aggregate(p period.Period, generatedAt time.Time, results []ResourceResult, opts Options) *Report {
	r := &Report{
		Period:      p,
		GeneratedAt: generatedAt,
		Resources:   results,
	}

	for _, res := range results {
		r.Rows = append(r.Rows, resourceRows(res, p.MonthLabel(), opts)...)
	}

	r.Totals = computeTotals(r.Rows)
	return r
}

// resourceRows sums the input and output samples of each deployment
func resourceRows(res ResourceResult, month string, opts Options) []UsageRow {
	var (
		order []string
		rows  = make(map[string]*UsageRow)
		input = make(map[string]float64)
		out   = make(map[string]float64)
	)

	for _, s := range res.Samples {
		key := strings.ToLower(s.DeploymentName)
		if _, ok := rows[key]; !ok {
			order = append(order, key)
			rows[key] = &UsageRow{
				ResourceID:       res.Resource.ID,
				ResourceName:     res.Resource.Name,
				DeploymentName:   s.DeploymentName,
				ModelName:        resolveModel(res.Deployments, s.DeploymentName, opts),
				Month:            month,
				SubscriptionID:   res.Resource.SubscriptionID,
				SubscriptionName: res.Resource.SubscriptionName,
				Kind:             res.Resource.Kind,
			}
		}
		switch s.Kind {
		case provider.MetricInput:
			input[key] += s.Sum
		case provider.MetricOutput:
			out[key] += s.Sum
		}
	}

	result := make([]UsageRow, 0, len(order))
	for _, key := range order {
		row := rows[key]
		row.InputTokens = tokens(input[key])
		row.OutputTokens = tokens(out[key])
		row.TotalTokens = row.InputTokens + row.OutputTokens
		if row.TotalTokens <= 0 {
			continue
		}
		result = append(result, *row)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].TotalTokens != result[j].TotalTokens {
			return result[i].TotalTokens > result[j].TotalTokens
		}
		return result[i].DeploymentName < result[j].DeploymentName
	})
	return result
}

// resolveModel returns the deployment's model, an inferred one, or ""
func resolveModel(deployments provider.Deployments, name string, opts Options) string {
	if d, ok := deployments.Lookup(name); ok && d.ModelName != "" {
		return d.ModelName
	}
	if opts.InferModelNames {
		return provider.InferModelName(name)
	}
	return ""
}

// tokens converts a metric sum to a non-negative whole token count
func tokens(sum float64) int64 {
	if sum <= 0 || math.IsNaN(sum) {
		return 0
	}
	return int64(math.Round(sum))
}

func computeTotals(rows []UsageRow) Totals {
	models := lo.Filter(lo.Map(rows, func(r UsageRow, _ int) string { return r.ModelName }),
		func(m string, _ int) bool { return m != "" })

	return Totals{
		Tokens:    lo.SumBy(rows, func(r UsageRow) int64 { return r.TotalTokens }),
		Resources: len(lo.Uniq(lo.Map(rows, func(r UsageRow, _ int) string { return r.ResourceID }))),
		Models:    len(lo.Uniq(models)),
	}
}
