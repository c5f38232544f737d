package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TableConfig sets the console table column widths
type TableConfig struct {
	ResourceWidth   int
	DeploymentWidth int
	ModelWidth      int
	TokensWidth     int
}

// DefaultTableConfig returns the widths used by the console summary
func DefaultTableConfig() TableConfig {
	return TableConfig{
		ResourceWidth:   30,
		DeploymentWidth: 30,
		ModelWidth:      26,
		TokensWidth:     16,
	}
}

const summaryTemplate = `
Token Usage Summary ({{.MonthLabel}})
Period: {{.Period}}
Resources discovered: {{.Discovered}}
{{range .Resources}}
  {{.Name}} ({{.Kind}}) [{{.Subscription}}]: {{if .HasUsage}}{{.Deployments}} deployment(s), {{.Tokens}} tokens{{else}}no token usage{{end}}{{with .Cost}}, cost {{.}}{{end}}
{{- range .Warnings}}
    warning: {{.}}
{{- end}}
{{- end}}
{{if .Rows}}
{{separator}}
{{formatRow "Resource" "Deployment" "Model" "Tokens"}}
{{separator}}
{{range .Rows}}{{formatRow .Resource .Deployment .Model .Tokens}}
{{end}}{{separator}}
{{end}}
Overall Summary:
  Total Tokens: {{.TotalTokens}}
  Resources with usage: {{.ResourceCount}}
  Unique Models: {{.ModelCount}}
{{- with .TotalCost}}
  Total Cost: {{.}}
{{- end}}
`

type resourceLine struct {
	Name         string
	Kind         string
	Subscription string
	HasUsage     bool
	Deployments  int
	Tokens       string
	Cost         string
	Warnings     []string
}

type tableRow struct {
	Resource   string
	Deployment string
	Model      string
	Tokens     string
}

type summaryView struct {
	MonthLabel    string
	Period        string
	Discovered    int
	Resources     []resourceLine
	Rows          []tableRow
	TotalTokens   string
	ResourceCount int
	ModelCount    int
	TotalCost     string
}

// Summary prints the human-readable console summary of a report
type Summary struct {
	writer  io.Writer
	config  TableConfig
	printer *message.Printer
}

// NewSummary creates a summary printer; a nil writer means stdout
func NewSummary(writer io.Writer) *Summary {
	if writer == nil {
		writer = os.Stdout
	}
	return &Summary{
		writer:  writer,
		config:  DefaultTableConfig(),
		printer: message.NewPrinter(language.English),
	}
}

// FormatTokens renders a token count with thousands separators
func (s *Summary) FormatTokens(n int64) string {
	return s.printer.Sprintf("%d", n)
}

// Handle writes the summary for the report
func (s *Summary) Handle(r *Report) error {
	funcMap := template.FuncMap{
		"formatRow": func(resource, deployment, model, tokens string) string {
			return fmt.Sprintf("| %-*s | %-*s | %-*s | %*s |",
				s.config.ResourceWidth, fit(resource, s.config.ResourceWidth),
				s.config.DeploymentWidth, fit(deployment, s.config.DeploymentWidth),
				s.config.ModelWidth, fit(model, s.config.ModelWidth),
				s.config.TokensWidth, tokens)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+",
				strings.Repeat("-", s.config.ResourceWidth+2),
				strings.Repeat("-", s.config.DeploymentWidth+2),
				strings.Repeat("-", s.config.ModelWidth+2),
				strings.Repeat("-", s.config.TokensWidth+2))
		},
	}

	t, err := template.New("summary").Funcs(funcMap).Parse(summaryTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(s.writer, s.view(r))
}

func (s *Summary) view(r *Report) summaryView {
	v := summaryView{
		MonthLabel:    r.Period.MonthLabel(),
		Period:        r.Period.String(),
		Discovered:    len(r.Resources),
		TotalTokens:   s.FormatTokens(r.Totals.Tokens),
		ResourceCount: r.Totals.Resources,
		ModelCount:    r.Totals.Models,
	}

	for _, res := range r.Resources {
		rows := r.RowsFor(res.Resource.ID)
		var tokens int64
		for _, row := range rows {
			tokens += row.TotalTokens
		}

		subscription := res.Resource.SubscriptionName
		if subscription == "" {
			subscription = res.Resource.SubscriptionID
		}

		line := resourceLine{
			Name:         res.Resource.Name,
			Kind:         res.Resource.Kind,
			Subscription: subscription,
			HasUsage:     len(rows) > 0,
			Deployments:  len(rows),
			Tokens:       s.FormatTokens(tokens),
		}
		if res.Cost != nil {
			line.Cost = formatCost(res.Cost.Amount, res.Cost.Currency)
		}
		if res.MetricsErr != nil {
			line.Warnings = append(line.Warnings, "metrics query failed: "+res.MetricsErr.Error())
		}
		if res.DeploymentsErr != nil {
			line.Warnings = append(line.Warnings, "model lookup failed, model names left empty: "+res.DeploymentsErr.Error())
		}
		if res.CostErr != nil {
			line.Warnings = append(line.Warnings, "cost query failed: "+res.CostErr.Error())
		}
		v.Resources = append(v.Resources, line)
	}

	// Table is ordered by resource name, then by usage
	rows := append([]UsageRow(nil), r.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ResourceName != rows[j].ResourceName {
			return rows[i].ResourceName < rows[j].ResourceName
		}
		return rows[i].TotalTokens > rows[j].TotalTokens
	})
	for _, row := range rows {
		model := row.ModelName
		if model == "" {
			model = "(unknown)"
		}
		v.Rows = append(v.Rows, tableRow{
			Resource:   row.ResourceName,
			Deployment: row.DeploymentName,
			Model:      model,
			Tokens:     s.FormatTokens(row.TotalTokens),
		})
	}

	if total, currency, ok := r.Cost(); ok {
		v.TotalCost = formatCost(total, currency)
	}
	return v
}

func formatCost(amount decimal.Decimal, currency string) string {
	return strings.TrimSpace(amount.StringFixed(2) + " " + currency)
}

// fit truncates s to width runes
func fit(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "~"
}
