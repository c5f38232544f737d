package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

var (
	january = period.Period{
		Start: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
	}
	generatedAt = time.Date(2026, time.February, 3, 10, 15, 0, 0, time.UTC)

	prod = provider.Resource{
		ID:               "/subscriptions/sub-1/resourceGroups/ai-rg/providers/Microsoft.CognitiveServices/accounts/oai-prod",
		Name:             "oai-prod",
		Kind:             "OpenAI",
		SubscriptionID:   "sub-1",
		SubscriptionName: "Production",
	}
	lab = provider.Resource{
		ID:               "/subscriptions/sub-2/resourceGroups/lab-rg/providers/Microsoft.CognitiveServices/accounts/ais-lab",
		Name:             "ais-lab",
		Kind:             "AIServices",
		SubscriptionID:   "sub-2",
		SubscriptionName: "Lab",
	}
	idle = provider.Resource{
		ID:             "/subscriptions/sub-2/resourceGroups/lab-rg/providers/Microsoft.CognitiveServices/accounts/ais-idle",
		Name:           "ais-idle",
		Kind:           "AIServices",
		SubscriptionID: "sub-2",
	}
)

func sample(res provider.Resource, deployment string, kind provider.MetricKind, sum float64) provider.MetricSample {
	return provider.MetricSample{ResourceID: res.ID, DeploymentName: deployment, Kind: kind, Sum: sum, Month: "2026-01"}
}

// mixedResults covers a resource with two deployments, a resource without
// usage, and a resource whose model lookup failed
func mixedResults() []ResourceResult {
	return []ResourceResult{
		{
			Resource: prod,
			Samples: []provider.MetricSample{
				sample(prod, "chat", provider.MetricInput, 1000),
				sample(prod, "embed", provider.MetricInput, 250),
				sample(prod, "CHAT", provider.MetricOutput, 400),
			},
			Deployments: provider.NewDeployments([]provider.Deployment{
				{Name: "chat", ResourceID: prod.ID, ModelName: "gpt-4o"},
				{Name: "embed", ResourceID: prod.ID, ModelName: "text-embedding-3-small"},
			}),
		},
		{Resource: idle},
		{
			Resource: lab,
			Samples: []provider.MetricSample{
				sample(lab, "chat", provider.MetricInput, 10),
				sample(lab, "chat", provider.MetricOutput, 5),
			},
			DeploymentsErr: errors.New("authorization failed"),
		},
	}
}

func TestAggregate_RowsPerResourceAndDeployment(t *testing.T) {
	r := Aggregate(january, generatedAt, mixedResults(), Options{})

	require.Len(t, r.Rows, 3)

	chat := r.Rows[0]
	assert.Equal(t, prod.ID, chat.ResourceID)
	assert.Equal(t, "chat", chat.DeploymentName)
	assert.Equal(t, "gpt-4o", chat.ModelName)
	assert.Equal(t, int64(1000), chat.InputTokens)
	assert.Equal(t, int64(400), chat.OutputTokens)
	assert.Equal(t, int64(1400), chat.TotalTokens)
	assert.Equal(t, "January 2026", chat.Month)
	assert.Equal(t, "sub-1", chat.SubscriptionID)
	assert.Equal(t, "Production", chat.SubscriptionName)
	assert.Equal(t, "OpenAI", chat.Kind)

	embed := r.Rows[1]
	assert.Equal(t, "embed", embed.DeploymentName)
	assert.Equal(t, "text-embedding-3-small", embed.ModelName)
	assert.Equal(t, int64(250), embed.TotalTokens)

	// Same deployment name on another resource stays a separate row
	labChat := r.Rows[2]
	assert.Equal(t, lab.ID, labChat.ResourceID)
	assert.Equal(t, "chat", labChat.DeploymentName)
	assert.Equal(t, int64(15), labChat.TotalTokens)
}

func TestAggregate_FailedModelLookupKeepsRow(t *testing.T) {
	r := Aggregate(january, generatedAt, mixedResults(), Options{})

	rows := r.RowsFor(lab.ID)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].ModelName)
	assert.Equal(t, int64(15), rows[0].TotalTokens)
	assert.True(t, r.Resources[2].ModelLookupFailed())
}

func TestAggregate_IdleResourceHasNoRows(t *testing.T) {
	r := Aggregate(january, generatedAt, mixedResults(), Options{})

	assert.Empty(t, r.RowsFor(idle.ID))
	assert.False(t, r.Resources[1].HasUsage())
	// Still listed as a processed resource
	assert.Len(t, r.Resources, 3)
}

func TestAggregate_Totals(t *testing.T) {
	r := Aggregate(january, generatedAt, mixedResults(), Options{})

	assert.Equal(t, int64(1400+250+15), r.Totals.Tokens)
	assert.Equal(t, 2, r.Totals.Resources)
	// The lab row has no model name and does not count
	assert.Equal(t, 2, r.Totals.Models)
}

func TestAggregate_InferModelNames(t *testing.T) {
	results := []ResourceResult{{
		Resource: lab,
		Samples: []provider.MetricSample{
			sample(lab, "team-gpt-4o-mini-01", provider.MetricInput, 7),
			sample(lab, "custom", provider.MetricInput, 3),
		},
		DeploymentsErr: errors.New("forbidden"),
	}}

	r := Aggregate(january, generatedAt, results, Options{InferModelNames: true})

	require.Len(t, r.Rows, 2)
	assert.Equal(t, "gpt-4o-mini", r.Rows[0].ModelName)
	assert.Empty(t, r.Rows[1].ModelName)
	assert.Equal(t, 1, r.Totals.Models)
}

func TestAggregate_DeletedDeploymentKeepsTokens(t *testing.T) {
	results := []ResourceResult{{
		Resource: prod,
		Samples: []provider.MetricSample{
			sample(prod, "retired", provider.MetricInput, 99.6),
		},
		Deployments: provider.NewDeployments([]provider.Deployment{{Name: "chat", ModelName: "gpt-4o"}}),
	}}

	r := Aggregate(january, generatedAt, results, Options{})

	require.Len(t, r.Rows, 1)
	assert.Empty(t, r.Rows[0].ModelName)
	assert.Equal(t, int64(100), r.Rows[0].TotalTokens)
}

func TestAggregate_Empty(t *testing.T) {
	r := Aggregate(january, generatedAt, nil, Options{})

	assert.Empty(t, r.Rows)
	assert.Equal(t, Totals{}, r.Totals)
}

func TestReportCost(t *testing.T) {
	results := mixedResults()
	results[0].Cost = &provider.Cost{Amount: decimal.RequireFromString("12.50"), Currency: "EUR"}
	results[2].Cost = &provider.Cost{Amount: decimal.RequireFromString("0.75"), Currency: "EUR"}

	r := Aggregate(january, generatedAt, results, Options{})
	total, currency, ok := r.Cost()

	require.True(t, ok)
	assert.Equal(t, "13.25", total.StringFixed(2))
	assert.Equal(t, "EUR", currency)

	_, _, ok = Aggregate(january, generatedAt, mixedResults(), Options{}).Cost()
	assert.False(t, ok)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "azure_openai_tokens_January_2026_20260203_101500.csv", FileName(january, generatedAt))
}

func TestCSV_RoundTrip(t *testing.T) {
	r := Aggregate(january, generatedAt, mixedResults(), Options{})

	path, err := WriteCSVFile(t.TempDir(), r)
	require.NoError(t, err)
	assert.Equal(t, FileName(january, generatedAt), filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, rows, len(r.Rows))

	var sum int64
	for i, got := range rows {
		want := r.Rows[i]
		assert.Equal(t, want.ResourceID, got.ResourceID)
		assert.Equal(t, want.DeploymentName, got.DeploymentName)
		assert.Equal(t, want.ModelName, got.ModelName)
		assert.Equal(t, want.TotalTokens, got.TotalTokens)
		assert.Equal(t, want.Month, got.Month)
		assert.Equal(t, want.SubscriptionID, got.SubscriptionID)
		assert.Equal(t, want.SubscriptionName, got.SubscriptionName)
		assert.Equal(t, want.Kind, got.Kind)
		sum += got.TotalTokens
	}
	assert.Equal(t, r.Totals.Tokens, sum)
}

func TestCSV_HeaderOnlyWhenEmpty(t *testing.T) {
	r := Aggregate(january, generatedAt, nil, Options{})

	path, err := WriteCSVFile(filepath.Join(t.TempDir(), "nested"), r)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID,DeploymentName,ModelName,Processed Inference Tokens (Sum),Month,Subscription Id,Subscription Name,Kind\n", string(data))

	rows, err := ReadCSV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCSV_QuotesFields(t *testing.T) {
	rows := []UsageRow{{ResourceID: "id", DeploymentName: "chat", SubscriptionName: `Team "A", EU`, TotalTokens: 5}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, `Team "A", EU`, got[0].SubscriptionName)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c,d,e,f,g,h\n"))
	assert.ErrorIs(t, err, ErrBadHeader)

	header := strings.Join(Header, ",") + "\n"
	_, err = ReadCSV(strings.NewReader(header + "id,chat,gpt,lots,Jan,s,n,k\n"))
	assert.ErrorContains(t, err, "invalid token count")

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestSummary_TotalsMatchCSV(t *testing.T) {
	results := mixedResults()
	results[0].Cost = &provider.Cost{Amount: decimal.RequireFromString("12.5"), Currency: "USD"}
	r := Aggregate(january, generatedAt, results, Options{})

	var out bytes.Buffer
	require.NoError(t, NewSummary(&out).Handle(r))
	text := out.String()

	assert.Contains(t, text, "Token Usage Summary (January 2026)")
	assert.Contains(t, text, "Period: January 01, 2026 to January 31, 2026")
	assert.Contains(t, text, "oai-prod (OpenAI) [Production]: 2 deployment(s), 1,650 tokens, cost 12.50 USD")
	assert.Contains(t, text, "ais-idle (AIServices) [sub-2]: no token usage")
	assert.Contains(t, text, "model lookup failed")
	assert.Contains(t, text, "Total Tokens: 1,665")
	assert.Contains(t, text, "Resources with usage: 2")
	assert.Contains(t, text, "Unique Models: 2")
	assert.Contains(t, text, "Total Cost: 12.50 USD")
	assert.Contains(t, text, "(unknown)")
}

func TestSummary_EmptyReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewSummary(&out).Handle(Aggregate(january, generatedAt, nil, Options{})))

	text := out.String()
	assert.Contains(t, text, "Resources discovered: 0")
	assert.Contains(t, text, "Total Tokens: 0")
	assert.NotContains(t, text, "Total Cost")
	assert.NotContains(t, text, "| Resource")
}

func TestFit(t *testing.T) {
	assert.Equal(t, "short", fit("short", 10))
	assert.Equal(t, "abcd~", fit("abcdefgh", 5))
}

func TestVerifyCSVFile(t *testing.T) {
	r := Aggregate(january, generatedAt, mixedResults(), Options{})
	path, err := WriteCSVFile(t.TempDir(), r)
	require.NoError(t, err)

	require.NoError(t, VerifyCSVFile(path, r))

	r.Totals.Tokens++
	assert.ErrorIs(t, VerifyCSVFile(path, r), ErrVerifyMismatch)

	r.Rows = r.Rows[:1]
	assert.ErrorIs(t, VerifyCSVFile(path, r), ErrVerifyMismatch)
}
