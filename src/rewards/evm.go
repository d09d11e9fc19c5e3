package rewards

import (
	"context"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type TxStatus int

const (
	TxNotFound TxStatus = iota
	TxConfirmed
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	}
	return "not found"
}

// Chain is the part of ethclient.Client used by the payout jobs
type Chain interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

const (
	rpcDialTrials = 5
	rpcRetryWait  = 2 * time.Second
)

// DialRPC connects to a random rpc of the list, retrying on failure
func DialRPC(ctx context.Context, rpcs []string) (*ethclient.Client, error) {
	if len(rpcs) == 0 {
		return nil, errors.New("no rpc configured")
	}
	rnd := rand.Intn(len(rpcs))
	for trial := 0; ; trial++ {
		client, err := ethclient.DialContext(ctx, rpcs[(rnd+trial)%len(rpcs)])
		if err == nil {
			return client, nil
		}
		if trial == rpcDialTrials {
			return nil, errors.Wrap(err, "dial rpc")
		}
		zap.L().Info("rpc error, retrying", zap.Error(err), zap.Int("left", rpcDialTrials-trial))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rpcRetryWait):
		}
	}
}

// QueryTxStatus looks up the receipt of a transaction. RPC errors count as
// not found so the tx is retried later.
func QueryTxStatus(ctx context.Context, chain Chain, txHash string) TxStatus {
	receipt, err := chain.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			zap.L().Warn("receipt query failed", zap.String("tx", txHash), zap.Error(err))
		}
		return TxNotFound
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxConfirmed
	}
	return TxFailed
}

// blockTimes caches block timestamps per block number
type blockTimes struct {
	chain Chain
	cache map[uint64]time.Time
}

func newBlockTimes(chain Chain) *blockTimes {
	return &blockTimes{chain: chain, cache: make(map[uint64]time.Time)}
}

// at returns the block time, zero time if it cannot be retrieved
func (b *blockTimes) at(ctx context.Context, blockNum uint64) time.Time {
	if t, ok := b.cache[blockNum]; ok {
		return t
	}
	h, err := b.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
	if err != nil {
		zap.L().Warn("block header query failed", zap.Uint64("block", blockNum), zap.Error(err))
		return time.Time{}
	}
	t := time.Unix(int64(h.Time), 0).UTC()
	b.cache[blockNum] = t
	return t
}
