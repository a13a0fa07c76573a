package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultDialTimeout = 5 * time.Second

	defaultRequestTimeout = 100 * time.Second

	defaultHeaderTimeout = 10 * time.Second
)

// callTracerConfig asks for the full call tree, logs included.
var callTracerConfig = map[string]any{
	"tracer": "callTracer",
	"tracerConfig": map[string]any{
		"onlyTopCall": false,
		"withLog":     true,
	},
}

type EthClient interface {
	BlockHeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockHeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	BlockHeadersByRange(ctx context.Context, start, end *big.Int, chainId uint) ([]types.Header, error)

	TxSenderByHash(ctx context.Context, hash common.Hash) (common.Address, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) (Logs, error)

	// TraceCallPath returns the raw callTracer output of a mined transaction.
	TraceCallPath(ctx context.Context, hash common.Hash) (json.RawMessage, error)

	Close()
}

type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

type Logs struct {
	Logs          []types.Log
	ToBlockHeader *types.Header
}

type myClient struct {
	rpc RPC
}

func DialEthClient(ctx context.Context, rpcUrl string) (EthClient, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial address (%s): %w", rpcUrl, err)
	}

	return NewEthClient(NewRPC(rpcClient)), nil
}

func NewEthClient(rpc RPC) EthClient {
	return &myClient{rpc: rpc}
}

func (m *myClient) TraceCallPath(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	ctxwt, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := m.rpc.CallContext(ctxwt, &raw, "debug_traceTransaction", hash, callTracerConfig); err != nil {
		log.Error("Call debug_traceTransaction method fail", "hash", hash, "err", err)
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}
	return raw, nil
}

func (m *myClient) TxSenderByHash(ctx context.Context, hash common.Hash) (common.Address, error) {
	ctxwt, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	// only the sender is needed, so the signature is not recovered locally
	var tx *struct {
		From common.Address `json:"from"`
	}
	err := m.rpc.CallContext(ctxwt, &tx, "eth_getTransactionByHash", hash)
	if err != nil {
		return common.Address{}, err
	} else if tx == nil {
		return common.Address{}, ethereum.NotFound
	}
	return tx.From, nil
}

func (m *myClient) BlockHeadersByRange(ctx context.Context, startHeight *big.Int, endHeight *big.Int, chainId uint) ([]types.Header, error) {
	if startHeight.Cmp(endHeight) == 0 {
		header, err := m.BlockHeaderByNumber(ctx, startHeight)
		if err != nil {
			return nil, err
		}
		return []types.Header{*header}, nil
	}

	count := new(big.Int).Sub(endHeight, startHeight).Uint64() + 1
	headers := make([]*types.Header, count)
	batchElems := make([]rpc.BatchElem, count)

	for i := uint64(0); i < count; i++ {
		height := new(big.Int).Add(startHeight, new(big.Int).SetUint64(i))
		batchElems[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{toBlockNumArg(height), false},
			Result: &headers[i],
		}
	}

	ctxwt, cancel := context.WithTimeout(ctx, defaultHeaderTimeout)
	defer cancel()
	err := m.rpc.BatchCallContext(ctxwt, batchElems)
	if err != nil {
		return nil, err
	}

	// the node may not have every block of the range yet; keep the contiguous prefix
	result := make([]types.Header, 0, count)
	for i, batchElem := range batchElems {
		if batchElem.Error != nil {
			if len(result) == 0 {
				return nil, batchElem.Error
			}
			break
		}
		if headers[i] == nil {
			break
		}
		result = append(result, *headers[i])
	}
	log.Debug("fetched header range", "start", startHeight, "end", endHeight, "chainId", chainId, "count", len(result))
	return result, nil
}

func (m *myClient) BlockHeaderByNumber(ctx context.Context, b *big.Int) (*types.Header, error) {
	ctxwt, cancel := context.WithTimeout(ctx, defaultHeaderTimeout)
	defer cancel()

	var header *types.Header
	err := m.rpc.CallContext(ctxwt, &header, "eth_getBlockByNumber", toBlockNumArg(b), false)
	if err != nil {
		log.Error("Call eth_getBlockByNumber method fail", "err", err)
		return nil, err
	} else if header == nil {
		log.Warn("header not found", "number", b)
		return nil, ethereum.NotFound
	}
	return header, nil
}

func (m *myClient) BlockHeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	ctxwt, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	var header *types.Header
	err := m.rpc.CallContext(ctxwt, &header, "eth_getBlockByHash", hash, false)
	if err != nil {
		return nil, err
	} else if header == nil {
		return nil, ethereum.NotFound
	}

	if header.Hash() != hash {
		return nil, errors.New("header mismatch")
	}

	return header, nil
}

func (m *myClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) (Logs, error) {
	args, err := toFilterLog(query)
	if err != nil {
		return Logs{}, err
	}
	var header types.Header
	var logs []types.Log

	batchElems := make([]rpc.BatchElem, 2)

	batchElems[0] = rpc.BatchElem{
		Method: "eth_getBlockByNumber",
		Args:   []interface{}{toBlockNumArg(query.ToBlock), false},
		Result: &header,
	}
	batchElems[1] = rpc.BatchElem{
		Method: "eth_getLogs",
		Args:   []interface{}{args},
		Result: &logs,
	}
	ctxwt, cancel := context.WithTimeout(ctx, defaultHeaderTimeout)
	defer cancel()
	err = m.rpc.BatchCallContext(ctxwt, batchElems)
	if err != nil {
		return Logs{}, err
	}
	if batchElems[0].Error != nil {
		return Logs{}, fmt.Errorf("unable to query for the `FilterQuery#ToBlock` header: %w", batchElems[0].Error)
	}
	if batchElems[1].Error != nil {
		return Logs{}, fmt.Errorf("unable to query logs: %w", batchElems[1].Error)
	}

	return Logs{Logs: logs, ToBlockHeader: &header}, nil
}

func (m *myClient) Close() {
	m.rpc.Close()
}

type rpcClient struct {
	rpc *rpc.Client
}

func NewRPC(client *rpc.Client) RPC {
	return &rpcClient{client}
}

func (c *rpcClient) Close() {
	c.rpc.Close()
}

func (c *rpcClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return c.rpc.CallContext(ctx, result, method, args...)
}

func (c *rpcClient) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	return c.rpc.BatchCallContext(ctx, b)
}

func toBlockNumArg(b *big.Int) string {
	if b == nil {
		return "latest"
	}
	if b.Sign() >= 0 {
		return hexutil.EncodeBig(b)
	}
	return rpc.BlockNumber(b.Int64()).String()
}

func toFilterLog(q ethereum.FilterQuery) (interface{}, error) {
	arg := map[string]interface{}{"address": q.Addresses, "topics": q.Topics}
	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
		if q.FromBlock != nil || q.ToBlock != nil {
			return nil, errors.New("cannot specify both BlockHash and FromBlock/ToBlock")
		}
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = toBlockNumArg(q.FromBlock)
		} else {
			arg["fromBlock"] = "0x0"
		}
		if q.ToBlock != nil {
			arg["toBlock"] = toBlockNumArg(q.ToBlock)
		}
	}
	return arg, nil
}
