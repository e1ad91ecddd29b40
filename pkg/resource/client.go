package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-stocksync/pkg/fetch"
	"github.com/illmade-knight/go-stocksync/pkg/pagestream"
)

// API is the surface the sync layer consumes. The contract depends exactly
// on the remote field names in pagestream.Page; a backend rename breaks
// pagination unless the types here are updated with it.
type API interface {
	Scopes(ctx context.Context, page int) (pagestream.Page[Scope], error)
	Inventory(ctx context.Context, scopeID string, page int) (pagestream.Page[InventoryItem], error)
	Additions(ctx context.Context, scopeID string, page int) (pagestream.Page[StockMovement], error)
	Withdrawals(ctx context.Context, scopeID string, page int) (pagestream.Page[StockMovement], error)
	Summary(ctx context.Context, scopeID string) (Summary, error)
	AddStock(ctx context.Context, scopeID string, mutation Mutation) error
	WithdrawStock(ctx context.Context, scopeID string, mutation Mutation) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
	logger   zerolog.Logger
}

// NewClient creates a Client for the configured endpoints.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With().Str("component", "ResourceClient").Logger(),
	}, nil
}

// Scopes lists the available scopes.
func (c *Client) Scopes(ctx context.Context, page int) (pagestream.Page[Scope], error) {
	return getPage[Scope](c, ctx, "/scopes", page)
}

// Inventory retrieves one page of a scope's stock snapshot.
func (c *Client) Inventory(ctx context.Context, scopeID string, page int) (pagestream.Page[InventoryItem], error) {
	return getPage[InventoryItem](c, ctx, "/scopes/"+url.PathEscape(scopeID)+"/inventory", page)
}

// Additions retrieves one page of a scope's restock log.
func (c *Client) Additions(ctx context.Context, scopeID string, page int) (pagestream.Page[StockMovement], error) {
	return getPage[StockMovement](c, ctx, "/scopes/"+url.PathEscape(scopeID)+"/additions", page)
}

// Withdrawals retrieves one page of a scope's sale/withdrawal log.
func (c *Client) Withdrawals(ctx context.Context, scopeID string, page int) (pagestream.Page[StockMovement], error) {
	return getPage[StockMovement](c, ctx, "/scopes/"+url.PathEscape(scopeID)+"/withdrawals", page)
}

// Summary retrieves the dashboard roll-up for a scope. A 404 surfaces as a
// ClassAbsent error; the caller substitutes the sentinel empty summary.
func (c *Client) Summary(ctx context.Context, scopeID string) (Summary, error) {
	var summary Summary
	err := c.getJSON(ctx, "/scopes/"+url.PathEscape(scopeID)+"/summary", nil, &summary)
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// AddStock records a restock for a scope. The response body is not
// inspected beyond success or failure.
func (c *Client) AddStock(ctx context.Context, scopeID string, mutation Mutation) error {
	return c.postJSON(ctx, "/scopes/"+url.PathEscape(scopeID)+"/additions", mutation)
}

// WithdrawStock records a withdrawal/sale for a scope.
func (c *Client) WithdrawStock(ctx context.Context, scopeID string, mutation Mutation) error {
	return c.postJSON(ctx, "/scopes/"+url.PathEscape(scopeID)+"/withdrawals", mutation)
}

// getPage is the shared paginated GET. Methods cannot carry their own type
// parameters, so this is a package-level function over the client.
func getPage[T any](c *Client, ctx context.Context, path string, page int) (pagestream.Page[T], error) {
	var result pagestream.Page[T]
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(c.pageSize)},
	}
	if err := c.getJSON(ctx, path, query, &result); err != nil {
		var zero pagestream.Page[T]
		return zero, err
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fetch.NewError(fetch.ClassTransient, 0, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.classify(resp, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to decode response body.")
		return fetch.NewError(fetch.ClassTransient, resp.StatusCode, "malformed response body", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	// Retried submissions of the same logical write are deduplicated
	// server-side by this key.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fetch.NewError(fetch.ClassTransient, 0, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return c.classify(resp, path)
	}
	return nil
}

// classify maps an HTTP failure status onto the fetch taxonomy, carrying a
// snippet of the response body as the message.
func (c *Client) classify(resp *http.Response, path string) error {
	message := readBodySnippet(resp.Body)

	var class fetch.Class
	switch {
	case resp.StatusCode == http.StatusNotFound:
		class = fetch.ClassAbsent
	case resp.StatusCode == http.StatusTooManyRequests:
		class = fetch.ClassRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		class = fetch.ClassAuthRequired
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		class = fetch.ClassValidationRejected
	default:
		class = fetch.ClassTransient
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("path", path).
		Str("class", class.String()).
		Msg("Remote call failed.")
	return fetch.NewError(class, resp.StatusCode, message, nil)
}

func readBodySnippet(body io.Reader) string {
	snippet, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(snippet))
}
