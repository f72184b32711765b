package smartthings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnauthorized signals an HTTP 401: the access token is invalid or
// expired and must be refreshed before the next attempt.
var ErrUnauthorized = errors.New("smartthings: unauthorized (invalid or expired token)")

// TransientError covers every non-auth failure of a status fetch: transport
// errors, unexpected status codes and unparseable bodies. Transient failures
// are not retried within a poll cycle; the next scheduled cycle retries
// naturally.
type TransientError struct {
	DeviceID   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("smartthings: device %s status fetch failed with HTTP %d", e.DeviceID, e.StatusCode)
	}
	return fmt.Sprintf("smartthings: device %s status fetch failed: %v", e.DeviceID, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// traceBudget caps the raw payload bytes echoed at debug verbosity; vendor
// status documents can run to tens of kilobytes.
const traceBudget = 4000

// Client issues authenticated status reads against the SmartThings API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a status client for the given API root. The timeout
// bounds every request; there is no mid-flight cancellation beyond it.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "smartthings").Logger(),
	}
}

// FetchStatus retrieves and parses the full status document for a device.
// It returns ErrUnauthorized on HTTP 401 and a *TransientError for every
// other failure mode.
func (c *Client) FetchStatus(ctx context.Context, deviceID, accessToken string) (*StatusDocument, error) {
	url := fmt.Sprintf("%s/v1/devices/%s/status", c.baseURL, deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransientError{DeviceID: deviceID, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{DeviceID: deviceID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{DeviceID: deviceID, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug().
		Str("device", deviceID).
		Int("status", resp.StatusCode).
		Str("payload", truncatePayload(body)).
		Msg("status response received")

	switch {
	case resp.StatusCode == http.StatusOK:
		doc, err := ParseStatus(body)
		if err != nil {
			return nil, &TransientError{DeviceID: deviceID, Err: fmt.Errorf("parse status: %w", err)}
		}
		return doc, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, &TransientError{DeviceID: deviceID, StatusCode: resp.StatusCode}
	}
}

func truncatePayload(body []byte) string {
	if len(body) <= traceBudget {
		return string(body)
	}
	return string(body[:traceBudget]) + "...(truncated)"
}
