package bitcoin

import (
	"context"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/errors"
)

// Received is one inbound payment reported by a wallet rescan.
type Received struct {
	Txid          string
	Address       string
	SatoshiAmount int64
	Confirmations int
}

// Client talks to the bitcoind wallet over JSON-RPC.
type Client struct {
	rpc    *rpcclient.Client
	params *chaincfg.Params
}

// NewClient connects to bitcoind in HTTP POST mode.
func NewClient(cfg config.BitcoinConfig) (*Client, error) {
	params := &chaincfg.MainNetParams
	if cfg.Testnet {
		params = &chaincfg.TestNet3Params
	}

	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return &Client{rpc: rpc, params: params}, nil
}

// NewReceivingAddress asks the wallet for a fresh deposit address.
func (c *Client) NewReceivingAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	addr, err := c.rpc.GetNewAddress("")
	if err != nil {
		return "", errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "getnewaddress")
	}
	return addr.EncodeAddress(), nil
}

// SendPayment pays satoshis to an address and returns the txid. A payment
// the node rejects as below its minimum comes back with a DustPayment
// coded error; callers must treat that as terminal, not retryable.
func (c *Client) SendPayment(ctx context.Context, address string, satoshis int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return "", errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "address")
	}

	hash, err := c.rpc.SendToAddress(addr, btcutil.Amount(satoshis))
	if err != nil {
		if strings.Contains(err.Error(), "too small") {
			return "", errors.NewErrorDetails(err.Error(), string(errors.DustPayment), "amount")
		}
		return "", errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "sendtoaddress")
	}
	return hash.String(), nil
}

// ListSince returns every receive credited to the wallet since the given
// block, plus the cursor to use on the next call. An empty cursor scans
// from the beginning.
func (c *Client) ListSince(ctx context.Context, blockHash string) ([]Received, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var since *chainhash.Hash
	if blockHash != "" {
		h, err := chainhash.NewHashFromStr(blockHash)
		if err != nil {
			return nil, "", errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "block_hash")
		}
		since = h
	}

	result, err := c.rpc.ListSinceBlock(since)
	if err != nil {
		return nil, "", errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "listsinceblock")
	}

	var received []Received
	for _, tx := range result.Transactions {
		if tx.Category != "receive" {
			continue
		}
		amount, err := btcutil.NewAmount(tx.Amount)
		if err != nil {
			return nil, "", errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "amount")
		}
		received = append(received, Received{
			Txid:          tx.TxID,
			Address:       tx.Address,
			SatoshiAmount: int64(amount),
			Confirmations: int(tx.Confirmations),
		})
	}
	return received, result.LastBlock, nil
}

// Balance returns the spendable wallet balance in satoshis.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	amount, err := c.rpc.GetBalance("*")
	if err != nil {
		return 0, errors.NewErrorDetails(err.Error(), string(errors.BitcoinRPCError), "getbalance")
	}
	return int64(amount), nil
}

// Shutdown tears down the RPC connection.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}
