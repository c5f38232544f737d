package provider

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
)

// MetricKind distinguishes the two token metrics summed per deployment
type MetricKind string

// Token metric kinds
const (
	MetricInput  MetricKind = "input"
	MetricOutput MetricKind = "output"
)

// UnknownDeployment names timeseries that carry no deployment dimension
const UnknownDeployment = "Unknown"

// Resource is an Azure OpenAI or AI Services account found by discovery
type Resource struct {
	ID               string // Full ARM resource identifier
	Name             string
	Kind             string // OpenAI, AIServices
	SubscriptionID   string
	SubscriptionName string
	ResourceGroup    string
	Location         string
}

// Deployment is a model deployment on a Resource
type Deployment struct {
	Name         string
	ResourceID   string
	ModelName    string
	ModelVersion string
}

// Deployments maps deployment names to deployments. Keys are case-insensitive
// because Azure Monitor does not preserve the case of dimension values.
type Deployments map[string]Deployment

// NewDeployments indexes a deployment list. A later entry with the same name
// replaces an earlier one.
func NewDeployments(list []Deployment) Deployments {
	d := make(Deployments, len(list))
	for _, dep := range list {
		d[strings.ToLower(dep.Name)] = dep
	}
	return d
}

// Lookup finds a deployment by name, ignoring case
func (d Deployments) Lookup(name string) (Deployment, bool) {
	dep, ok := d[strings.ToLower(name)]
	return dep, ok
}

// MetricSample is the summed value of one token metric for one deployment
// over the requested period
type MetricSample struct {
	ResourceID     string
	DeploymentName string
	Kind           MetricKind
	Sum            float64
	Month          string // YYYY-MM of the requested month
}

// Cost is the actual cost of a resource over the requested period
type Cost struct {
	Amount   decimal.Decimal
	Currency string
}

// ResourceDiscoverer enumerates the accounts to report on
type ResourceDiscoverer interface {
	DiscoverResources(ctx context.Context) ([]Resource, error)
}

// DeploymentLister resolves deployment names to models for one resource
type DeploymentLister interface {
	ListDeployments(ctx context.Context, res Resource) (Deployments, error)
}

// MetricsQuerier returns per-deployment token sums for one resource
type MetricsQuerier interface {
	QueryTokenMetrics(ctx context.Context, res Resource, p period.Period) ([]MetricSample, error)
}

// CostQuerier returns the actual cost of one resource over the period
type CostQuerier interface {
	QueryResourceCost(ctx context.Context, res Resource, p period.Period) (Cost, error)
}
