package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/crypto"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// Client is the REST client for the Polymarket markets and orders API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
	signer     *crypto.Signer
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHMAC switches request authentication from the bearer token to L2
// HMAC headers.
func WithHMAC(auth *crypto.HMACAuth) ClientOption {
	return func(c *Client) { c.hmacAuth = auth }
}

// WithSigner attaches the wallet signer used to sign orders.
func WithSigner(s *crypto.Signer) ClientOption {
	return func(c *Client) { c.signer = s }
}

// NewClient creates a new Polymarket REST client.
//
// baseURL is the API root, e.g. "https://clob.polymarket.com".
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMarkets returns the active, unclosed markets.
func (c *Client) GetMarkets(ctx context.Context, limit int) (MarketsResponse, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/markets?"+params.Encode(), nil)
	if err != nil {
		return MarketsResponse{}, fmt.Errorf("polymarket: get markets: %w", err)
	}

	var resp MarketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return MarketsResponse{}, fmt.Errorf("polymarket: decode markets: %w", err)
	}
	return resp, nil
}

// PostOrder submits an order, signing it first when a wallet signer is
// configured, and returns the order id.
func (c *Client) PostOrder(ctx context.Context, order OrderBody) (string, error) {
	if c.signer != nil {
		side := crypto.SideBuy
		if order.Side == "sell" {
			side = crypto.SideSell
		}
		order.Maker = c.signer.Address().Hex()
		order.Nonce = strconv.FormatInt(c.now().UnixMilli(), 10)
		sig, err := c.signer.SignOrder(crypto.OrderPayload{
			Maker:    order.Maker,
			MarketID: order.MarketID,
			Side:     side,
			Price:    order.Price,
			Amount:   order.Amount,
			Nonce:    order.Nonce,
		})
		if err != nil {
			return "", fmt.Errorf("polymarket: sign order: %w: %v", domain.ErrSigningFailed, err)
		}
		order.Signature = sig
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/orders", order)
	if err != nil {
		return "", fmt.Errorf("polymarket: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("polymarket: decode order result: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("polymarket: order rejected: %s: %w", result.ErrorMsg, domain.ErrOrderRejected)
	}
	return result.ID, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, authenticates, sends, and reads an HTTP request. It
// returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	switch {
	case c.hmacAuth != nil:
		var address string
		if c.signer != nil {
			address = c.signer.Address().Hex()
		}
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		headers := c.hmacAuth.L2HeadersAt(address, method, signPath, bodyStr, c.now().Unix())
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	case c.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrOrderRejected, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
