package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDirectoryTimeout = 10 * time.Second

type listRecipientsResponse struct {
	RecipientIDs []string `json:"recipientIds"`
}

// HTTPDirectory queries the profile service over its REST API.
type HTTPDirectory struct {
	client  *resty.Client
	baseURL string
}

var _ Directory = (*HTTPDirectory)(nil)

func NewHTTPDirectory(baseURL, token string) (*HTTPDirectory, error) {
	client := resty.New()
	client.SetTimeout(defaultDirectoryTimeout)
	client.SetRetryCount(0)
	if token = strings.TrimSpace(token); token != "" {
		client.SetAuthToken(token)
	}

	return NewHTTPDirectoryWithClient(baseURL, client)
}

func NewHTTPDirectoryWithClient(baseURL string, client *resty.Client) (*HTTPDirectory, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDirectoryTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPDirectory{
		client:  client,
		baseURL: trimmedURL,
	}, nil
}

func (d *HTTPDirectory) ListAll(ctx context.Context) ([]string, error) {
	return d.list(ctx, "")
}

func (d *HTTPDirectory) ListByRole(ctx context.Context, role string) ([]string, error) {
	role = normalizeRole(role)
	if role == "" {
		return nil, fmt.Errorf("role is required")
	}
	return d.list(ctx, role)
}

func (d *HTTPDirectory) list(ctx context.Context, role string) ([]string, error) {
	if d == nil || d.client == nil {
		return nil, fmt.Errorf("directory is not initialized")
	}

	var body listRecipientsResponse
	request := d.client.R().
		SetContext(ctx).
		SetResult(&body)
	if role != "" {
		request.SetQueryParam("role", role)
	}

	response, err := request.Get(d.baseURL + "/v1/recipients")
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("directory returned empty response")
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("directory returned status %d", statusCode)
	}

	return body.RecipientIDs, nil
}
