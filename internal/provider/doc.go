// Package provider defines the domain records and the collaborator
// interfaces the report pipeline consumes.
//
// The Azure implementations live in package azure. Tests substitute fakes:
//
//	type ResourceDiscoverer interface {
//		DiscoverResources(ctx context.Context) ([]Resource, error)
//	}
//
//	type DeploymentLister interface {
//		ListDeployments(ctx context.Context, res Resource) (Deployments, error)
//	}
//
//	type MetricsQuerier interface {
//		QueryTokenMetrics(ctx context.Context, res Resource, p period.Period) ([]MetricSample, error)
//	}
//
// Records are created once per run and treated as read-only afterwards.
package provider
