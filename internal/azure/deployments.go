package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/cognitiveservices/armcognitiveservices"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// ListDeployments maps the account's deployment names to their models
func (c *Client) ListDeployments(ctx context.Context, res provider.Resource) (provider.Deployments, error) {
	rid, err := parseResourceID(res.ID)
	if err != nil {
		return nil, err
	}

	dc, err := c.deploymentsClient(rid.SubscriptionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var all []provider.Deployment
	pager := dc.NewListPager(rid.ResourceGroupName, rid.Name, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list deployments for %s: %w", rid.Name, err)
		}
		all = append(all, parseDeployments(page.Value, res.ID)...)
	}

	for _, d := range all {
		c.logger.Debug("Resolved deployment",
			"resource", res.Name,
			"deployment", d.Name,
			"model", d.ModelName,
			"model_version", d.ModelVersion)
	}

	return provider.NewDeployments(all), nil
}

// parseDeployments converts SDK deployments, skipping unnamed entries
func parseDeployments(values []*armcognitiveservices.Deployment, resourceID string) []provider.Deployment {
	deployments := make([]provider.Deployment, 0, len(values))
	for _, v := range values {
		if v == nil || v.Name == nil || *v.Name == "" {
			continue
		}
		d := provider.Deployment{
			Name:       *v.Name,
			ResourceID: resourceID,
		}
		if v.Properties != nil && v.Properties.Model != nil {
			d.ModelName = stringValue(v.Properties.Model.Name)
			d.ModelVersion = stringValue(v.Properties.Model.Version)
		}
		deployments = append(deployments, d)
	}
	return deployments
}
