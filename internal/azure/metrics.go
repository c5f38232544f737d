package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// Azure Monitor query constants
const (
	// DeploymentDimension is the metric dimension carrying the deployment name
	DeploymentDimension = "ModelDeploymentName"

	// AggregationTotal sums values within each time grain
	AggregationTotal = "Total"
)

// deploymentFilter splits the metrics by every deployment
var deploymentFilter = fmt.Sprintf("%s eq '*'", DeploymentDimension)

// QueryTokenMetrics returns input and output token sums per deployment for
// the period. Deployments without activity are omitted.
func (c *Client) QueryTokenMetrics(ctx context.Context, res provider.Resource, p period.Period) ([]provider.MetricSample, error) {
	subscriptionID := res.SubscriptionID
	if subscriptionID == "" {
		rid, err := parseResourceID(res.ID)
		if err != nil {
			return nil, err
		}
		subscriptionID = rid.SubscriptionID
	}

	mc, err := c.metricsClient(subscriptionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	opts := &armmonitor.MetricsClientListOptions{
		Metricnames: to.Ptr(c.cfg.Metrics.Input + "," + c.cfg.Metrics.Output),
		Timespan:    to.Ptr(p.Timespan()),
		Interval:    to.Ptr(c.cfg.Metrics.Interval),
		Aggregation: to.Ptr(AggregationTotal),
		Filter:      to.Ptr(deploymentFilter),
		Top:         to.Ptr(int32(c.cfg.Metrics.MaxSeries)),
	}

	c.logger.Debug("Querying Azure Monitor metrics",
		"resource", res.Name,
		"timespan", *opts.Timespan,
		"metrics", *opts.Metricnames)

	resp, err := mc.List(ctx, res.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("metrics query failed for %s to %s: %w",
			p.Start.Format(period.DateLayout), p.End.Format(period.DateLayout), err)
	}

	return parseMetrics(resp.Response, res.ID, c.metricKinds(), p.Month().Format("2006-01")), nil
}

// metricKinds maps lowercase metric names onto the kind they count
func (c *Client) metricKinds() map[string]provider.MetricKind {
	return map[string]provider.MetricKind{
		strings.ToLower(c.cfg.Metrics.Input):  provider.MetricInput,
		strings.ToLower(c.cfg.Metrics.Output): provider.MetricOutput,
	}
}

// deploymentName reads the deployment dimension from a timeseries, ignoring
// the case of the dimension name
func deploymentName(values []*armmonitor.MetadataValue) string {
	for _, mv := range values {
		if mv == nil || mv.Name == nil || mv.Name.Value == nil {
			continue
		}
		if strings.EqualFold(*mv.Name.Value, DeploymentDimension) {
			if name := stringValue(mv.Value); name != "" {
				return name
			}
		}
	}
	return provider.UnknownDeployment
}

// parseMetrics sums every data point of each (deployment, metric) timeseries
// into one sample. Samples come back in first-seen order; zero sums are dropped.
func parseMetrics(resp armmonitor.Response, resourceID string, kinds map[string]provider.MetricKind, month string) []provider.MetricSample {
	type sampleKey struct {
		deployment string
		kind       provider.MetricKind
	}

	var (
		order []sampleKey
		sums  = make(map[sampleKey]float64)
		names = make(map[sampleKey]string)
	)

	for _, m := range resp.Value {
		if m == nil || m.Name == nil || m.Name.Value == nil {
			continue
		}
		kind, ok := kinds[strings.ToLower(*m.Name.Value)]
		if !ok {
			continue
		}

		for _, ts := range m.Timeseries {
			if ts == nil {
				continue
			}
			name := deploymentName(ts.Metadatavalues)
			key := sampleKey{deployment: strings.ToLower(name), kind: kind}
			if _, seen := names[key]; !seen {
				names[key] = name
				order = append(order, key)
			}
			for _, dp := range ts.Data {
				if dp == nil || dp.Total == nil {
					continue
				}
				sums[key] += *dp.Total
			}
		}
	}

	samples := make([]provider.MetricSample, 0, len(order))
	for _, key := range order {
		if sums[key] <= 0 {
			continue
		}
		samples = append(samples, provider.MetricSample{
			ResourceID:     resourceID,
			DeploymentName: names[key],
			Kind:           key.kind,
			Sum:            sums[key],
			Month:          month,
		})
	}
	return samples
}
