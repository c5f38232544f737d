// Package identity supplies the Azure credential and describes who is signed
// in before any resource is touched.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zgpcy/azure-openai-token-report/internal/logger"
)

// ManagementScope is the token scope for Azure Resource Manager
const ManagementScope = "https://management.azure.com/.default"

var (
	// ErrNoSubscription is returned when the principal can see no enabled subscription
	ErrNoSubscription = errors.New("no enabled subscription is visible to the signed-in principal")

	// ErrNoPrincipal is returned when the access token names nobody
	ErrNoPrincipal = errors.New("access token carries no principal claim")
)

// Account describes the signed-in principal and its active subscription
type Account struct {
	Principal        string
	SubscriptionID   string
	SubscriptionName string
}

// Provider supplies a credential and the account it belongs to
type Provider interface {
	Credential() azcore.TokenCredential
	Account(ctx context.Context) (Account, error)
}

// subscriptionsAPI is the part of armsubscriptions.Client used here
type subscriptionsAPI interface {
	Get(ctx context.Context, subscriptionID string, options *armsubscriptions.ClientGetOptions) (armsubscriptions.ClientGetResponse, error)
	NewListPager(options *armsubscriptions.ClientListOptions) *runtime.Pager[armsubscriptions.ClientListResponse]
}

// AzureProvider authenticates through the Azure CLI login first, then the
// default credential chain (environment, workload and managed identity)
type AzureProvider struct {
	cred        azcore.TokenCredential
	subs        subscriptionsAPI
	profilePath string
	getenv      func(string) string
	logger      *logger.Logger
}

// Verify that AzureProvider implements Provider
var _ Provider = (*AzureProvider)(nil)

// NewAzureProvider builds the credential chain and subscription client
func NewAzureProvider(log *logger.Logger) (*AzureProvider, error) {
	sources := []azcore.TokenCredential{}

	cli, err := azidentity.NewAzureCLICredential(nil)
	if err != nil {
		log.Debug("Azure CLI credential unavailable", "error", err)
	} else {
		sources = append(sources, cli)
	}

	def, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		log.Debug("Default Azure credential unavailable", "error", err)
	} else {
		sources = append(sources, def)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("failed to create Azure credential: no credential source available")
	}

	cred, err := azidentity.NewChainedTokenCredential(sources, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	subs, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	return &AzureProvider{
		cred:        cred,
		subs:        subs,
		profilePath: defaultProfilePath(),
		getenv:      os.Getenv,
		logger:      log,
	}, nil
}

// Credential returns the token credential used by all Azure clients
func (p *AzureProvider) Credential() azcore.TokenCredential {
	return p.cred
}

// Account acquires a management token and resolves the principal and the
// active subscription. Any failure means the caller is not usable.
func (p *AzureProvider) Account(ctx context.Context) (Account, error) {
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{ManagementScope}})
	if err != nil {
		return Account{}, fmt.Errorf("failed to acquire management token (run 'az login'): %w", err)
	}

	principal, err := PrincipalFromToken(tok.Token)
	if err != nil {
		return Account{}, err
	}

	id, name, err := p.activeSubscription(ctx)
	if err != nil {
		return Account{}, err
	}

	return Account{
		Principal:        principal,
		SubscriptionID:   id,
		SubscriptionName: name,
	}, nil
}

// activeSubscription prefers AZURE_SUBSCRIPTION_ID, then the Azure CLI
// default, then the first enabled subscription
func (p *AzureProvider) activeSubscription(ctx context.Context) (string, string, error) {
	if id := p.getenv("AZURE_SUBSCRIPTION_ID"); id != "" {
		resp, err := p.subs.Get(ctx, id, nil)
		if err != nil {
			return "", "", fmt.Errorf("failed to read subscription %s: %w", id, err)
		}
		return id, displayName(resp.Subscription), nil
	}

	if sub, ok := loadProfileDefault(p.profilePath); ok {
		p.logger.Debug("Using Azure CLI default subscription", "subscription_id", sub.ID)
		return sub.ID, sub.Name, nil
	}

	pager := p.subs.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", "", fmt.Errorf("failed to list subscriptions: %w", err)
		}
		for _, s := range page.Value {
			if s == nil || s.SubscriptionID == nil {
				continue
			}
			if s.State != nil && *s.State != armsubscriptions.SubscriptionStateEnabled {
				continue
			}
			return *s.SubscriptionID, displayName(*s), nil
		}
	}
	return "", "", ErrNoSubscription
}

func displayName(s armsubscriptions.Subscription) string {
	if s.DisplayName != nil && *s.DisplayName != "" {
		return *s.DisplayName
	}
	if s.SubscriptionID != nil {
		return *s.SubscriptionID
	}
	return ""
}

// principalClaims are checked in order; users carry upn, service principals appid
var principalClaims = []string{"upn", "unique_name", "preferred_username", "email"}

// PrincipalFromToken reads the display identity from an access token. The
// signature is not verified: the value is only shown to the operator.
func PrincipalFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to decode access token: %w", err)
	}

	for _, name := range principalClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, nil
		}
	}
	if v, ok := claims["appid"].(string); ok && v != "" {
		return "app:" + v, nil
	}
	if v, ok := claims["oid"].(string); ok && v != "" {
		return "object:" + v, nil
	}
	return "", ErrNoPrincipal
}

// profileSubscription is one entry of the Azure CLI azureProfile.json
type profileSubscription struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	State     string `json:"state"`
}

func defaultProfilePath() string {
	if dir := os.Getenv("AZURE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "azureProfile.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".azure", "azureProfile.json")
}

// loadProfileDefault returns the subscription marked default by 'az account set'
func loadProfileDefault(path string) (profileSubscription, bool) {
	if path == "" {
		return profileSubscription{}, false
	}
	// #nosec G304 -- path is the Azure CLI profile location
	data, err := os.ReadFile(path)
	if err != nil {
		return profileSubscription{}, false
	}
	// The CLI writes the file with a UTF-8 byte order mark
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var profile struct {
		Subscriptions []profileSubscription `json:"subscriptions"`
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		return profileSubscription{}, false
	}
	for _, s := range profile.Subscriptions {
		if s.IsDefault && s.ID != "" {
			return s, true
		}
	}
	return profileSubscription{}, false
}
