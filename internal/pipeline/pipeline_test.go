package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgpcy/azure-openai-token-report/internal/clock"
	"github.com/zgpcy/azure-openai-token-report/internal/logger"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
	"github.com/zgpcy/azure-openai-token-report/internal/report"
)

type fakeAzure struct {
	resources    []provider.Resource
	discoverErr  error
	deployments  map[string][]provider.Deployment
	deployErrs   map[string]error
	samples      map[string][]provider.MetricSample
	metricErrs   map[string]error
	costs        map[string]provider.Cost
	costErrs     map[string]error
	metricCalls  []string
	afterMetrics func(resourceID string)
}

func (f *fakeAzure) DiscoverResources(context.Context) ([]provider.Resource, error) {
	return f.resources, f.discoverErr
}

func (f *fakeAzure) ListDeployments(_ context.Context, res provider.Resource) (provider.Deployments, error) {
	if err := f.deployErrs[res.ID]; err != nil {
		return nil, err
	}
	return provider.NewDeployments(f.deployments[res.ID]), nil
}

func (f *fakeAzure) QueryTokenMetrics(_ context.Context, res provider.Resource, _ period.Period) ([]provider.MetricSample, error) {
	f.metricCalls = append(f.metricCalls, res.ID)
	if f.afterMetrics != nil {
		defer f.afterMetrics(res.ID)
	}
	if err := f.metricErrs[res.ID]; err != nil {
		return nil, err
	}
	return f.samples[res.ID], nil
}

func (f *fakeAzure) QueryResourceCost(_ context.Context, res provider.Resource, _ period.Period) (provider.Cost, error) {
	if err := f.costErrs[res.ID]; err != nil {
		return provider.Cost{}, err
	}
	return f.costs[res.ID], nil
}

var (
	january = period.Period{
		Start: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
	}
	now = time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC)
)

func resource(name string) provider.Resource {
	return provider.Resource{
		ID:             "/subscriptions/sub-1/resourceGroups/rg/providers/Microsoft.CognitiveServices/accounts/" + name,
		Name:           name,
		Kind:           "OpenAI",
		SubscriptionID: "sub-1",
	}
}

func input(res provider.Resource, deployment string, sum float64) provider.MetricSample {
	return provider.MetricSample{ResourceID: res.ID, DeploymentName: deployment, Kind: provider.MetricInput, Sum: sum, Month: "2026-01"}
}

func newRunner(f *fakeAzure, opts ...Option) *Runner {
	opts = append([]Option{WithClock(clock.Fixed(now))}, opts...)
	return New(f, f, f, logger.Discard(), opts...)
}

func TestRun_PartialFailures(t *testing.T) {
	a, b, c := resource("alpha"), resource("beta"), resource("gamma")
	f := &fakeAzure{
		resources: []provider.Resource{a, b, c},
		deployments: map[string][]provider.Deployment{
			a.ID: {{Name: "chat", ResourceID: a.ID, ModelName: "gpt-4o"}},
		},
		deployErrs: map[string]error{b.ID: errors.New("forbidden")},
		samples: map[string][]provider.MetricSample{
			a.ID: {input(a, "chat", 100)},
			b.ID: {input(b, "chat", 40)},
		},
		metricErrs: map[string]error{c.ID: errors.New("throttled")},
	}

	rep, err := newRunner(f).Run(context.Background(), january)
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, b.ID, c.ID}, f.metricCalls)
	assert.Equal(t, now, rep.GeneratedAt)
	require.Len(t, rep.Resources, 3)
	assert.NoError(t, rep.Resources[0].DeploymentsErr)
	assert.True(t, rep.Resources[1].ModelLookupFailed())
	assert.True(t, rep.Resources[2].MetricsFailed())

	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "gpt-4o", rep.Rows[0].ModelName)
	assert.Equal(t, b.ID, rep.Rows[1].ResourceID)
	assert.Empty(t, rep.Rows[1].ModelName)
	assert.Equal(t, int64(140), rep.Totals.Tokens)
}

func TestRun_DiscoveryFailureIsFatal(t *testing.T) {
	f := &fakeAzure{discoverErr: errors.New("AuthorizationFailed")}

	rep, err := newRunner(f).Run(context.Background(), january)
	assert.Nil(t, rep)
	assert.ErrorContains(t, err, "AuthorizationFailed")
	assert.Empty(t, f.metricCalls)
}

func TestRun_NoResources(t *testing.T) {
	rep, err := newRunner(&fakeAzure{}).Run(context.Background(), january)
	require.NoError(t, err)
	assert.Empty(t, rep.Rows)
	assert.Empty(t, rep.Resources)
	assert.Equal(t, january, rep.Period)
}

func TestRun_Cost(t *testing.T) {
	a, b := resource("alpha"), resource("beta")
	f := &fakeAzure{
		resources: []provider.Resource{a, b},
		samples:   map[string][]provider.MetricSample{a.ID: {input(a, "chat", 10)}},
		costs:     map[string]provider.Cost{a.ID: {Amount: decimal.NewFromInt(3), Currency: "USD"}},
		costErrs:  map[string]error{b.ID: errors.New("429")},
	}

	rep, err := newRunner(f, WithCost(f)).Run(context.Background(), january)
	require.NoError(t, err)

	require.NotNil(t, rep.Resources[0].Cost)
	assert.Equal(t, "3", rep.Resources[0].Cost.Amount.String())
	assert.Nil(t, rep.Resources[1].Cost)
	assert.Error(t, rep.Resources[1].CostErr)

	// Without WithCost no cost is attached
	rep, err = newRunner(f).Run(context.Background(), january)
	require.NoError(t, err)
	assert.Nil(t, rep.Resources[0].Cost)
	assert.NoError(t, rep.Resources[1].CostErr)
}

func TestRun_InferModelNames(t *testing.T) {
	a := resource("alpha")
	f := &fakeAzure{
		resources: []provider.Resource{a},
		samples:   map[string][]provider.MetricSample{a.ID: {input(a, "prod-gpt-4o", 10)}},
	}

	rep, err := newRunner(f, WithReportOptions(report.Options{InferModelNames: true})).Run(context.Background(), january)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "gpt-4o", rep.Rows[0].ModelName)
}

func TestRun_CancelledKeepsProcessedResources(t *testing.T) {
	a, b := resource("alpha"), resource("beta")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeAzure{
		resources:    []provider.Resource{a, b},
		samples:      map[string][]provider.MetricSample{a.ID: {input(a, "chat", 5)}},
		afterMetrics: func(string) { cancel() },
	}

	rep, err := newRunner(f).Run(ctx, january)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Len(t, rep.Resources, 1)
	assert.Equal(t, []string{a.ID}, f.metricCalls)
	assert.Equal(t, int64(5), rep.Totals.Tokens)
}
