// Package stripe owns gateway credential handling and the translation of
// Stripe failures into the service error taxonomy.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jordanmaier/copperline-backend/pkg/config"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

// keyPrefixes pins which secret-key families each environment accepts. A
// live key configured against the test environment is a deploy mistake the
// process should refuse to start with.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test", "rk_test"},
	liveEnv: {"sk_live", "rk_live"},
}

var errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)

// Client holds the validated gateway credentials. SDK calls authenticate
// through the package-level key set during NewClient.
type Client struct {
	environment   string
	signingSecret string
}

// NewClient validates the configured credentials, installs the API key for
// the Stripe SDK, and returns the client handle.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(logg.WithField(ctx, "environment", env), "stripe client initialized")
	}

	return &Client{environment: env, signingSecret: signingSecret}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// MapError translates a Stripe API failure into the platform error taxonomy.
// Rejections we caused (bad credentials, malformed requests, declined charges)
// are terminal; everything else is treated as a retryable outage.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(codeForStripeError(stripeErr), err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

func codeForStripeError(stripeErr *stripe.Error) pkgerrors.Code {
	switch stripeErr.HTTPStatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeGatewayRejected
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard, stripe.ErrorTypeIdempotency:
		return pkgerrors.CodeGatewayRejected
	}
	return pkgerrors.CodeDependency
}

func normalizeEnv(raw string) (string, error) {
	switch env := strings.TrimSpace(strings.ToLower(raw)); env {
	case "":
		return testEnv, nil
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a secret key prefixed %s", env, strings.Join(prefixes, " or "))
}
