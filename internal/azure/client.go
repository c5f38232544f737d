package azure

import (
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/cognitiveservices/armcognitiveservices"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
	"github.com/zgpcy/azure-openai-token-report/internal/config"
	"github.com/zgpcy/azure-openai-token-report/internal/logger"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// ErrInvalidResourceID is returned when a resource ID cannot be split into
// subscription, resource group and account name
var ErrInvalidResourceID = errors.New("invalid resource ID")

// Client talks to Resource Graph, Cognitive Services, Azure Monitor and Cost
// Management on behalf of the report pipeline
type Client struct {
	cred   azcore.TokenCredential
	cfg    *config.Config
	logger *logger.Logger

	graph *armresourcegraph.Client
	cost  *armcostmanagement.QueryClient

	// Subscription-scoped clients, created on first use
	deployments map[string]*armcognitiveservices.DeploymentsClient
	metrics     map[string]*armmonitor.MetricsClient
}

// Verify that Client implements the pipeline collaborators
var (
	_ provider.ResourceDiscoverer = (*Client)(nil)
	_ provider.DeploymentLister   = (*Client)(nil)
	_ provider.MetricsQuerier     = (*Client)(nil)
	_ provider.CostQuerier        = (*Client)(nil)
)

// NewClient creates the Azure clients used by the report
func NewClient(cred azcore.TokenCredential, cfg *config.Config, log *logger.Logger) (*Client, error) {
	graph, err := armresourcegraph.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource graph client: %w", err)
	}

	var cost *armcostmanagement.QueryClient
	if cfg.IncludeCost {
		cost, err = armcostmanagement.NewQueryClient(cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cost management client: %w", err)
		}
	}

	return &Client{
		cred:        cred,
		cfg:         cfg,
		logger:      log,
		graph:       graph,
		cost:        cost,
		deployments: make(map[string]*armcognitiveservices.DeploymentsClient),
		metrics:     make(map[string]*armmonitor.MetricsClient),
	}, nil
}

// timeout bounds a single Azure API call
func (c *Client) timeout() time.Duration {
	return time.Duration(c.cfg.APITimeout) * time.Second
}

func (c *Client) deploymentsClient(subscriptionID string) (*armcognitiveservices.DeploymentsClient, error) {
	if dc, ok := c.deployments[subscriptionID]; ok {
		return dc, nil
	}
	dc, err := armcognitiveservices.NewDeploymentsClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployments client: %w", err)
	}
	c.deployments[subscriptionID] = dc
	return dc, nil
}

func (c *Client) metricsClient(subscriptionID string) (*armmonitor.MetricsClient, error) {
	if mc, ok := c.metrics[subscriptionID]; ok {
		return mc, nil
	}
	mc, err := armmonitor.NewMetricsClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}
	c.metrics[subscriptionID] = mc
	return mc, nil
}

// parseResourceID splits a Cognitive Services account ID into its parts
func parseResourceID(id string) (*arm.ResourceID, error) {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidResourceID, id, err)
	}
	if rid.SubscriptionID == "" || rid.ResourceGroupName == "" || rid.Name == "" {
		return nil, fmt.Errorf("%w %q: missing subscription, resource group or name", ErrInvalidResourceID, id)
	}
	return rid, nil
}

// Helper functions
func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
