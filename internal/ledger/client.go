package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Client talks to the ledger's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type Config struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

var _ Ledger = (*Client)(nil)

func (c *Client) PrepareTransfer(ctx context.Context, req PrepareRequest) (Transfer, error) {
	return c.createTransfer(ctx, req, "")
}

// ExecuteTransfer prepares and releases in a single ledger call. Only valid
// when both accounts live on this ledger and the fulfillment is already known.
func (c *Client) ExecuteTransfer(ctx context.Context, req PrepareRequest, fulfillment string) (Transfer, error) {
	return c.createTransfer(ctx, req, fulfillment)
}

type createTransferRequest struct {
	PrepareRequest
	Fulfillment string `json:"fulfillment,omitempty"`
}

func (c *Client) createTransfer(ctx context.Context, req PrepareRequest, fulfillment string) (Transfer, error) {
	body, err := json.Marshal(createTransferRequest{PrepareRequest: req, Fulfillment: fulfillment})
	if err != nil {
		return Transfer{}, fmt.Errorf("marshal transfer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return Transfer{}, fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Transfer{}, fmt.Errorf("ledger prepare failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Transfer{}, c.statusError(resp)
	}

	var transfer Transfer
	if err := json.NewDecoder(resp.Body).Decode(&transfer); err != nil {
		return Transfer{}, fmt.Errorf("decode transfer response: %w", err)
	}
	return transfer, nil
}

func (c *Client) FulfillTransfer(ctx context.Context, transferID, fulfillment string) error {
	body, err := json.Marshal(map[string]string{"fulfillment": fulfillment})
	if err != nil {
		return fmt.Errorf("marshal fulfillment: %w", err)
	}

	endpoint := fmt.Sprintf("%s/transfers/%s/fulfillment", c.baseURL, url.PathEscape(transferID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build fulfillment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ledger fulfill failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.statusError(resp)
	}
	return nil
}

func (c *Client) LookupByCondition(ctx context.Context, condition string) (*Transfer, error) {
	endpoint := c.baseURL + "/transfers?" + url.Values{"condition": {condition}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var transfer Transfer
	if err := json.NewDecoder(resp.Body).Decode(&transfer); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	return &transfer, nil
}

type ledgerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body ledgerError
	_ = json.Unmarshal(raw, &body)

	switch {
	case resp.StatusCode == http.StatusNotFound || body.Code == "UnknownAccount":
		return fmt.Errorf("%w: %s", ErrInvalidAccount, body.Message)
	case resp.StatusCode == http.StatusUnprocessableEntity || body.Code == "InsufficientFunds":
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, body.Message)
	default:
		c.logger.Error("unexpected ledger response",
			zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}
}
