// Package controlpush delivers control attribute changes to the device
// platform over its HTTP device API.
package controlpush

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"CapIot.telemetry/internal/models"
)

const attributesPath = "/api/v1/{credential}/attributes"

// HTTPPusher posts attributes to {scheme}://{host}/api/v1/{credential}/attributes.
type HTTPPusher struct {
	client *resty.Client
}

// NewHTTPPusher creates a new HTTPPusher for the device platform at host.
func NewHTTPPusher(scheme, host string, timeout time.Duration) *HTTPPusher {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s://%s", scheme, host)).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPPusher{client: client}
}

// PushAttribute sends {key: value} for the credential's device. Any transport
// error or non-2xx status is a failure.
func (p *HTTPPusher) PushAttribute(ctx context.Context, credential string, key models.Attribute, value any) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("credential", credential).
		SetBody(map[string]any{string(key): value}).
		Post(attributesPath)
	if err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("push %s: unexpected status %d", key, resp.StatusCode())
	}
	return nil
}

type attributesResponse struct {
	Client map[string]any `json:"client"`
}

// FetchClientAttributes returns the client attributes the device last
// reported for the keys in models.ClientAttributes.
func (p *HTTPPusher) FetchClientAttributes(ctx context.Context, credential string) (map[string]any, error) {
	keys := make([]string, 0, len(models.ClientAttributes))
	for _, a := range models.ClientAttributes {
		keys = append(keys, string(a))
	}

	var result attributesResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("credential", credential).
		SetQueryParam("clientKeys", strings.Join(keys, ",")).
		SetResult(&result).
		Get(attributesPath)
	if err != nil {
		return nil, fmt.Errorf("fetch client attributes: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch client attributes: unexpected status %d", resp.StatusCode())
	}
	if result.Client == nil {
		return map[string]any{}, nil
	}
	return result.Client, nil
}
