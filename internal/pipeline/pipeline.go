// Package pipeline drives one reporting run: discover resources, resolve
// their deployments, query token metrics and aggregate the results.
package pipeline

import (
	"context"
	"fmt"

	"github.com/zgpcy/azure-openai-token-report/internal/clock"
	"github.com/zgpcy/azure-openai-token-report/internal/logger"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
	"github.com/zgpcy/azure-openai-token-report/internal/report"
)

// Runner processes resources one at a time. Cost is optional; a nil
// CostQuerier skips the cost step.
type Runner struct {
	discoverer  provider.ResourceDiscoverer
	deployments provider.DeploymentLister
	metrics     provider.MetricsQuerier
	cost        provider.CostQuerier
	opts        report.Options
	clock       clock.Clock
	logger      *logger.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithCost enables per-resource cost lookups
func WithCost(q provider.CostQuerier) Option {
	return func(r *Runner) { r.cost = q }
}

// WithClock overrides the clock used for the report timestamp
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithReportOptions sets the aggregation options
func WithReportOptions(opts report.Options) Option {
	return func(r *Runner) { r.opts = opts }
}

// New creates a Runner
func New(d provider.ResourceDiscoverer, l provider.DeploymentLister, m provider.MetricsQuerier, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		discoverer:  d,
		deployments: l,
		metrics:     m,
		clock:       clock.RealClock{},
		logger:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run builds the report for the period. Discovery failure is fatal. Failures
// for a single resource are recorded on its result and the run continues.
// When ctx is cancelled mid-run the report for the resources processed so far
// is returned together with the context error.
func (r *Runner) Run(ctx context.Context, p period.Period) (*report.Report, error) {
	generatedAt := r.clock.Now()

	r.logger.Info("Discovering resources", "period", p.String())
	resources, err := r.discoverer.DiscoverResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("resource discovery failed: %w", err)
	}
	if len(resources) == 0 {
		r.logger.Warn("No Azure OpenAI or AI Services resources found")
	} else {
		r.logger.Info("Resources discovered", "count", len(resources))
	}

	results := make([]report.ResourceResult, 0, len(resources))
	var runErr error
	for i, res := range resources {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Run cancelled, reporting partial data",
				"processed", i,
				"total", len(resources))
			runErr = err
			break
		}
		results = append(results, r.processResource(ctx, res, p))
	}

	rep := report.Aggregate(p, generatedAt, results, r.opts)
	r.logger.Info("Aggregation complete",
		"rows", len(rep.Rows),
		"total_tokens", rep.Totals.Tokens,
		"resources_with_usage", rep.Totals.Resources,
		"models", rep.Totals.Models)
	return rep, runErr
}

// processResource runs the per-resource steps, recording each failure
func (r *Runner) processResource(ctx context.Context, res provider.Resource, p period.Period) report.ResourceResult {
	log := r.logger.WithFields("resource_id", res.ID)
	log.Debug("Processing resource", "name", res.Name, "kind", res.Kind)

	result := report.ResourceResult{Resource: res}

	deployments, err := r.deployments.ListDeployments(ctx, res)
	if err != nil {
		log.Warn("Failed to list deployments, model names will be empty", "error", err)
		result.DeploymentsErr = err
	} else {
		result.Deployments = deployments
		log.Debug("Deployments resolved", "count", len(deployments))
	}

	samples, err := r.metrics.QueryTokenMetrics(ctx, res, p)
	if err != nil {
		log.Warn("Failed to query token metrics", "error", err)
		result.MetricsErr = err
	} else {
		result.Samples = samples
		log.Debug("Token metrics collected", "samples", len(samples))
	}

	if r.cost != nil {
		cost, err := r.cost.QueryResourceCost(ctx, res, p)
		if err != nil {
			log.Warn("Failed to query resource cost", "error", err)
			result.CostErr = err
		} else {
			result.Cost = &cost
		}
	}

	return result
}
