package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
)

// DefaultBaseURL is the Microsoft Graph v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin HTTP client for the Microsoft Graph mail API. It
// retries HTTP 429 with backoff and maps 401 to source.ErrUnauthorized.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	maxBackoff time.Duration
}

// NewClient creates a Graph client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxRetries: 3,
		maxBackoff: 30 * time.Second,
	}
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.get(ctx, token, "/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UnreadMessages lists up to top unread inbox messages, newest first.
func (c *Client) UnreadMessages(ctx context.Context, token string, top int) ([]Message, error) {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(top))
	q.Set("$filter", "isRead eq false")
	q.Set("$orderby", "receivedDateTime desc")

	var page messagePage
	if err := c.get(ctx, token, "/me/messages", q, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

// get performs a GET request, handling auth, rate limiting with
// exponential backoff, and JSON decoding.
func (c *Client) get(
	ctx context.Context,
	token string,
	path string,
	query url.Values,
	result interface{},
) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return transportErr("creating request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportErr("GET "+path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return transportErr("reading response body", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on GET %s", path)

			select {
			case <-ctx.Done():
				return transportErr("GET "+path, ctx.Err())
			case <-time.After(c.retryAfter(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("GET %s: %w", path, source.ErrUnauthorized)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var graphErr errorResponse
			if json.Unmarshal(respBody, &graphErr) == nil && graphErr.Error.Message != "" {
				return transportErr("GET "+path, fmt.Errorf(
					"graph API error (%d): %s: %s",
					resp.StatusCode, graphErr.Error.Code, graphErr.Error.Message,
				))
			}
			return transportErr("GET "+path, fmt.Errorf(
				"unexpected status %d: %s", resp.StatusCode, string(respBody),
			))
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return transportErr("GET "+path, fmt.Errorf("unmarshaling response: %w", err))
		}
		return nil
	}

	return transportErr("GET "+path, fmt.Errorf(
		"max retries (%d) exceeded: %w", c.maxRetries, lastErr,
	))
}

// retryAfter reads the Retry-After header, falling back to exponential
// backoff capped at maxBackoff.
func (c *Client) retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return min(time.Duration(seconds)*time.Second, c.maxBackoff)
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * time.Second
	return min(backoff, c.maxBackoff)
}

func transportErr(op string, err error) error {
	return &source.TransportError{Provider: model.ProviderOutlook, Op: op, Err: err}
}
