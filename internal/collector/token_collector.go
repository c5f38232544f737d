package collector

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zgpcy/azure-openai-token-report/internal/report"
	"github.com/zgpcy/azure-openai-token-report/internal/version"
)

// Error stages reported by azure_openai_report_errors
const (
	StageDeployments = "deployments"
	StageMetrics     = "metrics"
	StageCost        = "cost"
)

// TokenCollector implements prometheus.Collector for a finished report
type TokenCollector struct {
	report *report.Report

	// Metrics
	tokensMetric    *prometheus.Desc
	rowsMetric      *prometheus.Desc
	resourcesMetric *prometheus.Desc
	modelsMetric    *prometheus.Desc
	costMetric      *prometheus.Desc
	errorsMetric    *prometheus.Desc
	timestampMetric *prometheus.Desc
	buildInfo       *prometheus.GaugeVec
}

// NewTokenCollector creates a collector exposing r
func NewTokenCollector(r *report.Report) *TokenCollector {
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "azure_openai_token_report_build_info",
			Help: "Build version information",
		},
		[]string{"version", "git_commit", "build_date", "go_version"},
	)

	versionInfo := version.Info()
	buildInfo.With(prometheus.Labels{
		"version":    versionInfo["version"],
		"git_commit": versionInfo["git_commit"],
		"build_date": versionInfo["build_date"],
		"go_version": versionInfo["go_version"],
	}).Set(1)

	resourceLabels := []string{"resource_id", "resource_name", "kind", "subscription_id", "subscription_name", "month"}

	return &TokenCollector{
		report: r,
		tokensMetric: prometheus.NewDesc(
			"azure_openai_tokens_total",
			"Tokens processed by a deployment during the reported month, by direction (input, output).",
			[]string{"resource_id", "resource_name", "deployment", "model", "kind", "subscription_id", "subscription_name", "month", "direction"},
			nil,
		),
		rowsMetric: prometheus.NewDesc(
			"azure_openai_report_rows",
			"Number of rows written to the CSV report",
			nil, nil,
		),
		resourcesMetric: prometheus.NewDesc(
			"azure_openai_report_resources",
			"Number of resources with token usage",
			nil, nil,
		),
		modelsMetric: prometheus.NewDesc(
			"azure_openai_report_models",
			"Number of distinct models with token usage",
			nil, nil,
		),
		costMetric: prometheus.NewDesc(
			"azure_openai_resource_cost",
			"Actual cost of a resource during the reported period",
			append(resourceLabels, "currency"),
			nil,
		),
		errorsMetric: prometheus.NewDesc(
			"azure_openai_report_errors",
			"Number of resources whose processing stage failed",
			[]string{"stage"},
			nil,
		),
		timestampMetric: prometheus.NewDesc(
			"azure_openai_report_generated_timestamp_seconds",
			"Unix timestamp of the report generation",
			nil, nil,
		),
		buildInfo: buildInfo,
	}
}

// Describe implements prometheus.Collector
func (c *TokenCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tokensMetric
	ch <- c.rowsMetric
	ch <- c.resourcesMetric
	ch <- c.modelsMetric
	ch <- c.costMetric
	ch <- c.errorsMetric
	ch <- c.timestampMetric
	c.buildInfo.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *TokenCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.report

	for _, row := range r.Rows {
		labels := []string{
			row.ResourceID,
			row.ResourceName,
			row.DeploymentName,
			row.ModelName,
			row.Kind,
			row.SubscriptionID,
			row.SubscriptionName,
			row.Month,
		}
		ch <- prometheus.MustNewConstMetric(c.tokensMetric, prometheus.GaugeValue,
			float64(row.InputTokens), append(labels, "input")...)
		ch <- prometheus.MustNewConstMetric(c.tokensMetric, prometheus.GaugeValue,
			float64(row.OutputTokens), append(labels, "output")...)
	}

	ch <- prometheus.MustNewConstMetric(c.rowsMetric, prometheus.GaugeValue, float64(len(r.Rows)))
	ch <- prometheus.MustNewConstMetric(c.resourcesMetric, prometheus.GaugeValue, float64(r.Totals.Resources))
	ch <- prometheus.MustNewConstMetric(c.modelsMetric, prometheus.GaugeValue, float64(r.Totals.Models))

	errs := map[string]int{StageDeployments: 0, StageMetrics: 0, StageCost: 0}
	month := r.Period.MonthLabel()
	for _, res := range r.Resources {
		if res.DeploymentsErr != nil {
			errs[StageDeployments]++
		}
		if res.MetricsErr != nil {
			errs[StageMetrics]++
		}
		if res.CostErr != nil {
			errs[StageCost]++
		}
		if res.Cost == nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.costMetric, prometheus.GaugeValue,
			res.Cost.Amount.InexactFloat64(),
			res.Resource.ID,
			res.Resource.Name,
			res.Resource.Kind,
			res.Resource.SubscriptionID,
			res.Resource.SubscriptionName,
			month,
			res.Cost.Currency,
		)
	}
	for stage, count := range errs {
		ch <- prometheus.MustNewConstMetric(c.errorsMetric, prometheus.GaugeValue, float64(count), stage)
	}

	if !r.GeneratedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.timestampMetric, prometheus.GaugeValue, float64(r.GeneratedAt.Unix()))
	}

	c.buildInfo.Collect(ch)
}

// WriteTextfile writes the report metrics in the node_exporter textfile
// format. The file is written atomically.
func WriteTextfile(path string, r *report.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(NewTokenCollector(r)); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
