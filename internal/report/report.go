// Package report joins token metrics with deployment and subscription
// metadata and renders the result as CSV and as a console summary.
package report

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// ResourceResult is the outcome of processing one resource. Failed sub-steps
// are recorded rather than aborting the run, so "no data" and "lookup failed"
// stay distinguishable.
type ResourceResult struct {
	Resource       provider.Resource
	Samples        []provider.MetricSample
	Deployments    provider.Deployments
	DeploymentsErr error
	MetricsErr     error
	Cost           *provider.Cost
	CostErr        error
}

// HasUsage reports whether any token activity was recorded
func (r ResourceResult) HasUsage() bool {
	return len(r.Samples) > 0
}

// ModelLookupFailed reports whether deployment names could not be resolved
func (r ResourceResult) ModelLookupFailed() bool {
	return r.DeploymentsErr != nil
}

// MetricsFailed reports whether the metrics query for the resource failed
func (r ResourceResult) MetricsFailed() bool {
	return r.MetricsErr != nil
}

// UsageRow is one CSV line: the tokens of one deployment on one resource
type UsageRow struct {
	ResourceID       string
	ResourceName     string
	DeploymentName   string
	ModelName        string
	InputTokens      int64
	OutputTokens     int64
	TotalTokens      int64
	Month            string
	SubscriptionID   string
	SubscriptionName string
	Kind             string
}

// Totals summarizes all rows of a report
type Totals struct {
	Tokens    int64
	Resources int // distinct resources with at least one row
	Models    int // distinct non-empty model names
}

// Report is the aggregated result of one run
type Report struct {
	Period      period.Period
	GeneratedAt time.Time
	Rows        []UsageRow
	Totals      Totals
	Resources   []ResourceResult
}

// Cost sums the cost of every resource that has one. ok is false when no
// resource reported a cost.
func (r *Report) Cost() (total decimal.Decimal, currency string, ok bool) {
	total = decimal.Zero
	for _, res := range r.Resources {
		if res.Cost == nil {
			continue
		}
		total = total.Add(res.Cost.Amount)
		if currency == "" {
			currency = res.Cost.Currency
		}
		ok = true
	}
	return total, currency, ok
}

// RowsFor returns the rows belonging to one resource
func (r *Report) RowsFor(resourceID string) []UsageRow {
	var rows []UsageRow
	for _, row := range r.Rows {
		if row.ResourceID == resourceID {
			rows = append(rows, row)
		}
	}
	return rows
}
