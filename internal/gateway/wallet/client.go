package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/errors"
)

// Client talks to the headless wallet node over JSON-RPC. The node owns
// the byteball keys and watches the ledger; this process only instructs
// payouts and address issuance.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a headless wallet client.
func NewClient(cfg config.WalletConfig) *Client {
	return &Client{
		url:  cfg.URL,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return errors.TracerFromError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.TracerFromError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewErrorDetails(err.Error(), string(errors.WalletRPCError), method)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.NewErrorDetails(err.Error(), string(errors.WalletRPCError), method)
	}
	if rpcResp.Error != nil {
		if strings.Contains(rpcResp.Error.Message, "too small") {
			return errors.NewErrorDetails(rpcResp.Error.Message, string(errors.DustPayment), method)
		}
		return errors.NewErrorDetails(
			fmt.Sprintf("wallet rpc %s: %s", method, rpcResp.Error.Message),
			string(errors.WalletRPCError), method)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.NewErrorDetails(err.Error(), string(errors.WalletRPCError), method)
		}
	}
	return nil
}

// NewReceivingAddress asks the wallet for a fresh deposit address.
func (c *Client) NewReceivingAddress(ctx context.Context) (string, error) {
	var address string
	if err := c.call(ctx, "getnewaddress", []any{}, &address); err != nil {
		return "", err
	}
	return address, nil
}

// IssuePayment pays bytes to an address and returns the unit that carried
// them. A DustPayment coded error is terminal and must not be retried.
func (c *Client) IssuePayment(ctx context.Context, address string, amount int64) (string, error) {
	var unit string
	if err := c.call(ctx, "sendtoaddress", []any{address, amount}, &unit); err != nil {
		return "", err
	}
	return unit, nil
}

// Balance returns the stable byte balance of the wallet.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	var result struct {
		Base struct {
			Stable  int64 `json:"stable"`
			Pending int64 `json:"pending"`
		} `json:"base"`
	}
	if err := c.call(ctx, "getbalance", []any{}, &result); err != nil {
		return 0, err
	}
	return result.Base.Stable, nil
}
