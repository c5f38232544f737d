package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/zgpcy/azure-openai-token-report/internal/period"
	"github.com/zgpcy/azure-openai-token-report/internal/provider"
)

// Cost Management retry constants. The API throttles aggressively (HTTP 429),
// so cost lookups retry on their own schedule.
const (
	// MaxRetryElapsedTime is the maximum time to spend retrying a failed API call
	MaxRetryElapsedTime = 45 * time.Second

	// InitialRetryInterval is the initial backoff interval for retries
	InitialRetryInterval = 2 * time.Second

	// MaxRetryInterval is the maximum backoff interval between retries
	MaxRetryInterval = 15 * time.Second
)

// ErrCostDisabled is returned when cost lookups were not enabled in config
var ErrCostDisabled = errors.New("cost lookups are disabled")

// costColumns are the column names Cost Management uses for the summed cost
var costColumns = []string{"totalCost", "Cost", "PreTaxCost", "CostUSD"}

// QueryResourceCost returns the actual cost of one account over the period
func (c *Client) QueryResourceCost(ctx context.Context, res provider.Resource, p period.Period) (provider.Cost, error) {
	if c.cost == nil {
		return provider.Cost{}, ErrCostDisabled
	}

	rid, err := parseResourceID(res.ID)
	if err != nil {
		return provider.Cost{}, err
	}

	var result provider.Cost

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = InitialRetryInterval
	bo.MaxInterval = MaxRetryInterval
	bo.MaxElapsedTime = MaxRetryElapsedTime

	operation := func() error {
		cost, err := c.queryResourceCostInternal(ctx, rid.SubscriptionID, rid.ResourceGroupName, res.ID, p)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			c.logger.Debug("Cost Management call failed, will retry",
				"resource", res.Name,
				"error", err)
			return err
		}
		result = cost
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return provider.Cost{}, fmt.Errorf("cost query for %s failed: %w", res.Name, err)
	}
	return result, nil
}

// queryResourceCostInternal performs the actual API call without retry logic
func (c *Client) queryResourceCostInternal(ctx context.Context, subscriptionID, resourceGroup, resourceID string, p period.Period) (provider.Cost, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	scope := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscriptionID, resourceGroup)
	from := p.Start
	until := p.ExclusiveEnd().Add(-time.Second)

	queryDef := armcostmanagement.QueryDefinition{
		Type:      to.Ptr(armcostmanagement.ExportTypeActualCost),
		Timeframe: to.Ptr(armcostmanagement.TimeframeTypeCustom),
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &from,
			To:   &until,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {
					Name:     to.Ptr("Cost"),
					Function: to.Ptr(armcostmanagement.FunctionTypeSum),
				},
			},
			Filter: &armcostmanagement.QueryFilter{
				Dimensions: &armcostmanagement.QueryComparisonExpression{
					Name:     to.Ptr("ResourceId"),
					Operator: to.Ptr(armcostmanagement.QueryOperatorTypeIn),
					Values:   []*string{to.Ptr(strings.ToLower(resourceID))},
				},
			},
		},
	}

	resp, err := c.cost.Usage(ctx, scope, queryDef, nil)
	if err != nil {
		return provider.Cost{}, fmt.Errorf("cost query failed for %s to %s: %w",
			p.Start.Format(period.DateLayout), p.End.Format(period.DateLayout), err)
	}

	return parseCostResult(resp.QueryResult, c.cfg.Currency), nil
}

// retryable reports whether a Cost Management error is worth retrying:
// throttling, server errors and transport failures
func retryable(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return !errors.Is(err, context.Canceled)
	}
	return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= http.StatusInternalServerError
}

// buildColumnMap creates a map of column names to their indices
func buildColumnMap(columns []*armcostmanagement.QueryColumn) map[string]int {
	columnMap := make(map[string]int)
	for i, col := range columns {
		if col.Name != nil {
			columnMap[*col.Name] = i
		}
	}
	return columnMap
}

// getStringFromRow extracts a string value from a row by column name
func getStringFromRow(row []interface{}, columnMap map[string]int, columnName string) string {
	if idx, ok := columnMap[columnName]; ok && len(row) > idx {
		if value, ok := row[idx].(string); ok {
			return value
		}
	}
	return ""
}

// parseAmount converts a JSON cost value to a decimal
func parseAmount(value interface{}) decimal.Decimal {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// parseCostResult sums the cost column over all rows. The currency column
// wins over the configured fallback when present.
func parseCostResult(result armcostmanagement.QueryResult, fallbackCurrency string) provider.Cost {
	cost := provider.Cost{Amount: decimal.Zero, Currency: fallbackCurrency}

	if result.Properties == nil || result.Properties.Rows == nil {
		return cost
	}

	columnMap := buildColumnMap(result.Properties.Columns)

	costIdx := -1
	for _, name := range costColumns {
		if idx, ok := columnMap[name]; ok {
			costIdx = idx
			break
		}
	}
	if costIdx < 0 {
		return cost
	}

	for _, row := range result.Properties.Rows {
		if len(row) <= costIdx {
			continue
		}
		cost.Amount = cost.Amount.Add(parseAmount(row[costIdx]))
		if currency := getStringFromRow(row, columnMap, "Currency"); currency != "" {
			cost.Currency = currency
		}
	}
	return cost
}
