package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ContractCall is one read-only call in a batch.
type ContractCall struct {
	To   common.Address
	Data []byte
}

// Client wraps go-ethereum RPC and provides the capabilities the sync
// engine consumes: ranged log queries, head subscriptions, and batched
// contract reads.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL. Head
// subscriptions require a WebSocket or IPC endpoint.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// SubscribeNewHead subscribes to new block headers.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.ethClient.SubscribeNewHead(ctx, ch)
}

// FilterLogs returns logs in the given inclusive range, optionally
// restricted to addresses and topic0 values.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// BatchCallContract executes the calls as a single batched round trip of
// eth_call requests against the latest state. Results and errors are
// positional: errs[i] is non-nil when calls[i] failed, independently of
// the other calls.
func (c *Client) BatchCallContract(ctx context.Context, calls []ContractCall) ([][]byte, []error, error) {
	if len(calls) == 0 {
		return nil, nil, nil
	}

	elems := make([]rpc.BatchElem, len(calls))
	results := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		arg := map[string]interface{}{
			"to":   call.To,
			"data": hexutil.Bytes(call.Data),
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{arg, "latest"},
			Result: &results[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, elems); err != nil {
		return nil, nil, fmt.Errorf("batch call: %w", err)
	}

	out := make([][]byte, len(calls))
	errs := make([]error, len(calls))
	for i := range elems {
		if elems[i].Error != nil {
			errs[i] = elems[i].Error
			continue
		}
		out[i] = results[i]
	}
	return out, errs, nil
}

// CallContract performs a single eth_call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
