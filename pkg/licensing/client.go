package licensing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/orbsec/organization-service/pkg/faults"
	"github.com/orbsec/organization-service/pkg/observability"
)

const maxResponseBytes = 1 << 20

// License is a license issued by the licensing service
type License struct {
	LicenseID        string `json:"licenseId"`
	Description      string `json:"description"`
	OrganizationID   string `json:"organizationId"`
	ProductName      string `json:"productName"`
	LicenseType      string `json:"licenseType"`
	Comment          string `json:"comment"`
	OrganizationName string `json:"organizationName"`
	ContactName      string `json:"contactName"`
	ContactPhone     string `json:"contactPhone"`
	ContactEmail     string `json:"contactEmail"`
	// Degraded marks a placeholder produced while the licensing service was unreachable
	Degraded bool `json:"degraded,omitempty"`
}

// Gateway fetches licenses owned by an organization
type Gateway interface {
	FetchLicenses(ctx context.Context, authToken, organizationID string) ([]License, error)
}

// Config configures the HTTP client
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client implements Gateway over HTTP
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	logger     *observability.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient creates a client for the licensing service at cfg.BaseURL
func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid licensing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid licensing base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "organization-service"
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("component", "licensing"),
	}, nil
}

// FetchLicenses returns the licenses of organizationID. authToken is sent
// unmodified as the Authorization header.
func (c *Client) FetchLicenses(ctx context.Context, authToken, organizationID string) ([]License, error) {
	const op = "licensing.fetch"

	if strings.TrimSpace(authToken) == "" {
		return nil, faults.New(faults.Unauthorized, op, "missing authorization credential")
	}

	endpoint := c.baseURL.JoinPath("api", "v1", "license", "organization", organizationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, faults.Wrap(faults.Unknown, op, err)
	}
	req.Header.Set("Authorization", authToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.Classify(err), op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, faults.Wrap(faults.Classify(err), op, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(map[string]interface{}{
			"status":          resp.StatusCode,
			"organization_id": organizationID,
		}).Debug("licensing service returned an error")
		return nil, statusError(op, resp.StatusCode, body)
	}

	licenses := make([]License, 0)
	if err := json.Unmarshal(body, &licenses); err != nil {
		return nil, faults.Wrap(faults.Unknown, op, fmt.Errorf("decode licenses: %w", err))
	}
	return licenses, nil
}

func statusError(op string, status int, body []byte) error {
	msg := fmt.Sprintf("licensing service responded %d %s", status, http.StatusText(status))
	if detail := strings.TrimSpace(string(body)); detail != "" && len(detail) <= 512 {
		msg += ": " + detail
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return faults.New(faults.Unauthorized, op, msg)
	case status == http.StatusNotFound:
		return faults.New(faults.NotFound, op, msg)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return faults.New(faults.Timeout, op, msg)
	case status == http.StatusTooManyRequests, status >= 500:
		return faults.New(faults.Unavailable, op, msg)
	default:
		return faults.New(faults.Unknown, op, msg)
	}
}
