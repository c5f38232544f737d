// Package config provides configuration management for the token report.
//
// The configuration file is optional. Values are resolved in this order
// (highest priority first):
//  1. Command-line flags (applied by cmd/tokenreport)
//  2. Environment variables
//  3. YAML configuration file
//  4. Default values
//
// Supported environment variables:
//   - TOKEN_REPORT_LOG_LEVEL: Log level (debug, info, warn, error)
//   - TOKEN_REPORT_OUTPUT_DIR: Directory the CSV is written to
//   - TOKEN_REPORT_API_TIMEOUT: Per-call Azure API timeout in seconds (1-300)
//   - TOKEN_REPORT_INCLUDE_COST: Also query Cost Management (true/false)
//   - TOKEN_REPORT_SUBSCRIPTIONS: Comma-separated subscription IDs or id:name pairs
//
// Example configuration file (tokenreport.yaml):
//
//	log_level: "info"
//	api_timeout: 60
//	output_dir: "./reports"
//
//	kinds: ["OpenAI", "AIServices"]
//
//	subscriptions:
//	  - id: "00000000-0000-0000-0000-000000000000"
//	    name: "Production"
//
//	metrics:
//	  input: "ProcessedPromptTokens"
//	  output: "GeneratedTokens"
//	  interval: "P1D"
//	  max_series: 100
//
//	infer_model_names: false
//	include_cost: true
//	currency: "USD"
//	metrics_file: "./reports/tokens.prom"
package config
