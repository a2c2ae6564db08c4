package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"tasksync-api/domain"
)

const maxResponseSize = 4 * 1024 * 1024 // 4 MiB

var (
	// ErrSourceUnavailable covers transport failures, timeouts and
	// non-success status codes from the calendar source. The pass may be
	// retried later.
	ErrSourceUnavailable = errors.New("calendar source unavailable")
	// ErrMalformedResponse is returned when the response body cannot be
	// decoded as an event collection.
	ErrMalformedResponse = errors.New("malformed calendar response")
)

// Client reads the event collection of an authenticated principal from the
// external calendar source over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	maxResults int
	timeout    time.Duration
}

// New creates a calendar client for the given events endpoint. maxResults
// bounds the result count when positive; timeout bounds each fetch.
func New(endpoint string, maxResults int, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		maxResults: maxResults,
		timeout:    timeout,
	}
}

type eventsResponse struct {
	Items []domain.Event `json:"items"`
}

// FetchEvents performs one authenticated read of the caller's event
// collection. An empty response body is a successful empty collection.
func (c *Client) FetchEvents(ctx context.Context, accessToken string) ([]domain.Event, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(body) == 0 {
		return nil, nil
	}

	var decoded eventsResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return decoded.Items, nil
}

func (c *Client) requestURL() (string, error) {
	if c.maxResults <= 0 {
		return c.endpoint, nil
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid endpoint: %v", ErrSourceUnavailable, err)
	}
	q := u.Query()
	q.Set("maxResults", strconv.Itoa(c.maxResults))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
