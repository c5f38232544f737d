package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// maxGraphPages guards against a skip token that never runs out
const maxGraphPages = 100

const resourceQueryTemplate = `Resources
| where type =~ 'microsoft.cognitiveservices/accounts'
| where kind in~ (%s)
| where isnotempty(sku)
| project id, name, kind, subscriptionId, resourceGroup, location
| join kind=leftouter (
    ResourceContainers
    | where type =~ 'microsoft.resources/subscriptions'
    | project subscriptionName=name, subscriptionId
  ) on subscriptionId
| project id, name, kind, subscriptionId, subscriptionName, resourceGroup, location
| order by subscriptionId asc, name asc`

// buildResourceQuery renders the discovery query for the configured kinds
func buildResourceQuery(kinds []string) string {
	quoted := make([]string, 0, len(kinds))
	for _, k := range kinds {
		quoted = append(quoted, "'"+strings.TrimSpace(k)+"'")
	}
	return fmt.Sprintf(resourceQueryTemplate, strings.Join(quoted, ","))
}

// DiscoverResources lists OpenAI and AI Services accounts in every subscription
// the credential can see, or only the configured ones
func (c *Client) DiscoverResources(ctx context.Context) ([]provider.Resource, error) {
	request := armresourcegraph.QueryRequest{
		Query: to.Ptr(buildResourceQuery(c.cfg.Kinds)),
		Options: &armresourcegraph.QueryRequestOptions{
			ResultFormat: to.Ptr(armresourcegraph.ResultFormatObjectArray),
		},
	}
	if ids := c.cfg.SubscriptionIDs(); len(ids) > 0 {
		request.Subscriptions = to.SliceOfPtrs(ids...)
	}

	c.logger.Debug("Querying Azure Resource Graph",
		"kinds", c.cfg.Kinds,
		"subscription_scope", len(request.Subscriptions))

	var resources []provider.Resource
	for page := 0; page < maxGraphPages; page++ {
		resp, err := c.queryGraph(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("resource graph query failed: %w", err)
		}

		resources = append(resources, parseGraphRows(resp.Data)...)

		if resp.SkipToken == nil || *resp.SkipToken == "" {
			return resources, nil
		}
		request.Options.SkipToken = resp.SkipToken
	}

	c.logger.Warn("Resource Graph paging limit reached, results may be incomplete",
		"pages", maxGraphPages,
		"resources", len(resources))
	return resources, nil
}

func (c *Client) queryGraph(ctx context.Context, request armresourcegraph.QueryRequest) (armresourcegraph.QueryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	resp, err := c.graph.Resources(ctx, request, nil)
	if err != nil {
		return armresourcegraph.QueryResponse{}, err
	}
	return resp.QueryResponse, nil
}

// parseGraphRows converts an objectArray result into resources. Rows without
// an id are skipped.
func parseGraphRows(data any) []provider.Resource {
	rows, ok := data.([]any)
	if !ok {
		return nil
	}

	resources := make([]provider.Resource, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id := rowString(row, "id")
		if id == "" {
			continue
		}
		resources = append(resources, provider.Resource{
			ID:               id,
			Name:             rowString(row, "name"),
			Kind:             rowString(row, "kind"),
			SubscriptionID:   rowString(row, "subscriptionId"),
			SubscriptionName: rowString(row, "subscriptionName"),
			ResourceGroup:    rowString(row, "resourceGroup"),
			Location:         rowString(row, "location"),
		})
	}
	return resources
}

// rowString extracts a string column from a Resource Graph row
func rowString(row map[string]any, column string) string {
	if v, ok := row[column].(string); ok {
		return v
	}
	return ""
}
