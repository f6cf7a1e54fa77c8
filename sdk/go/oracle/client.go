// Package oracle is a small Go client for the Agentic Oracle query API.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Inference-backed queries can take several seconds.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the oracled REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Reply is the structured answer to a chat query. Data is a string for
// textual replies and an object for amount or news replies.
type Reply struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Action *bool           `json:"action,omitempty"`
}

// Text returns Data as a string when the reply is textual.
func (r Reply) Text() (string, bool) {
	var s string
	if err := json.Unmarshal(r.Data, &s); err != nil {
		return "", false
	}
	return s, true
}

// Amount returns the extracted amount of stake, unstake and reward replies.
func (r Reply) Amount() (string, bool) {
	var payload struct {
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(r.Data, &payload); err != nil || payload.Amount == "" {
		return "", false
	}
	return payload.Amount, true
}

// ChatMessage is one stored half of a chat exchange.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Intent    string `json:"intent,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Agent is the on-chain registration state of an oracle agent.
type Agent struct {
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
	Stake      string `json:"stake"`
	Rewards    string `json:"rewards"`
}

// LatestPrice is the most recent on-chain price.
type LatestPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// PriceUpdate is a price submission recorded by the publisher.
type PriceUpdate struct {
	Symbol      string    `json:"symbol"`
	Price       string    `json:"price"`
	Amount      string    `json:"amount"`
	Sources     []string  `json:"sources,omitempty"`
	TxHash      string    `json:"txHash"`
	Agent       string    `json:"agent"`
	PublishedAt time.Time `json:"publishedAt"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("oracle api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("oracle api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the oracled API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Query sends a free-text chat query on behalf of userID.
func (c *Client) Query(ctx context.Context, userID, text string) (Reply, error) {
	var reply Reply
	payload := map[string]string{"userQuery": text, "userId": userID}
	if err := c.post(ctx, "/query", payload, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// History returns the most recent chat messages of userID, oldest first.
func (c *Client) History(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	var messages []ChatMessage
	endpoint := "/api/v1/history/" + url.PathEscape(userID)
	if err := c.get(ctx, endpoint, limitQuery(limit), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Agent fetches the on-chain registration state of address.
func (c *Client) Agent(ctx context.Context, address string) (Agent, error) {
	var agent Agent
	if err := c.get(ctx, "/api/v1/agents/"+url.PathEscape(address), nil, &agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// LatestPrice fetches the most recent on-chain price.
func (c *Client) LatestPrice(ctx context.Context) (LatestPrice, error) {
	var price LatestPrice
	if err := c.get(ctx, "/api/v1/price/latest", nil, &price); err != nil {
		return LatestPrice{}, err
	}
	return price, nil
}

// PriceHistory returns recent publisher submissions, newest first.
func (c *Client) PriceHistory(ctx context.Context, limit int) ([]PriceUpdate, error) {
	var updates []PriceUpdate
	if err := c.get(ctx, "/api/v1/prices/history", limitQuery(limit), &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			// /query 返回 {type:"error", data:"..."}，其余接口返回 {code, message}。
			var reply struct {
				Type string `json:"type"`
				Data string `json:"data"`
			}
			if json.Unmarshal(data, &reply) == nil && reply.Type == "error" {
				apiErr.Message = reply.Data
			} else {
				_ = json.Unmarshal(data, apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
