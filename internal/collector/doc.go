// Package collector exposes a finished token report as Prometheus metrics.
//
// TokenCollector implements prometheus.Collector over a report.Report and is
// meant for the node_exporter textfile collector: the CLI runs once, and
// WriteTextfile renders the metrics to a file that node_exporter picks up.
//
// The collector exposes the following metrics:
//   - azure_openai_tokens_total: tokens per deployment and direction (input, output)
//   - azure_openai_report_rows: rows written to the CSV
//   - azure_openai_report_resources: resources with usage
//   - azure_openai_report_models: distinct models with usage
//   - azure_openai_resource_cost: actual cost per resource, when cost lookup is enabled
//   - azure_openai_report_errors: failed resources per stage (deployments, metrics, cost)
//   - azure_openai_report_generated_timestamp_seconds: report generation time
//   - azure_openai_token_report_build_info: build version information
//
// Example usage:
//
//	rep, _ := runner.Run(ctx, p)
//	if err := collector.WriteTextfile("/var/lib/node_exporter/tokens.prom", rep); err != nil {
//		log.Error("Failed to write metrics", "error", err)
//	}
package collector
