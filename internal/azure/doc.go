// Package azure implements the report's collaborators on top of the Azure SDK.
//
// A single Client covers every stage that talks to Azure:
//   - DiscoverResources: Resource Graph query for OpenAI / AI Services accounts,
//     joined with subscription display names, following skip tokens
//   - ListDeployments: Cognitive Services deployment listing, mapping
//     deployment names to model names
//   - QueryTokenMetrics: Azure Monitor ProcessedPromptTokens and
//     GeneratedTokens, split by the ModelDeploymentName dimension and summed
//     over the requested period
//   - QueryResourceCost: optional Cost Management lookup of the account's
//     actual cost, retried with exponential backoff when throttled
//
// Each API call runs under its own timeout (api_timeout). Response parsing is
// kept in pure functions so it can be tested against JSON fixtures.
//
// Example usage:
//
//	client, err := azure.NewClient(cred, cfg, log)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	resources, err := client.DiscoverResources(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, res := range resources {
//		samples, err := client.QueryTokenMetrics(ctx, res, p)
//		...
//	}
package azure
