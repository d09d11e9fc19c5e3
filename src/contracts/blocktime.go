package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HeaderSource is the part of ethclient.Client needed to search blocks
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// FindBlockWithTs returns the number and timestamp of a block close to
// (at most two blocks before) the given timestamp. If ts is in the future
// the latest block is returned.
func FindBlockWithTs(ctx context.Context, client HeaderSource, ts uint64) (uint64, uint64, error) {
	headB, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	tsB := headB.Time
	numB := headB.Number.Uint64()
	if ts >= tsB {
		return numB, tsB, nil
	}
	// guess and search so that ts is between tsA and tsB
	var numA, tsA, numCalls uint64
	timeEst := uint64(10)
	for {
		tDiff := tsB - ts
		blocksBack := max(tDiff/timeEst, 1)
		if blocksBack >= numB {
			return 0, 0, errors.New("genesis block reached, timestamp search failed")
		}
		numA = numB - blocksBack
		headA, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(numA))
		numCalls++
		if err != nil {
			return 0, 0, errors.Wrap(err, "rpc issue in FindBlockWithTs")
		}
		tsA = headA.Time
		numA = headA.Number.Uint64()
		if tsA < ts {
			break
		}
		timeEst = max((tsB-tsA)/(numB-numA), 1)
		tsB = tsA
		numB = numA
	}
	blockNo, tsFound, numCalls2, err := binSearch(ctx, client, numA, tsA, numB, tsB, ts)
	zap.L().Debug("block search finished", zap.Uint64("rpcCalls", numCalls+numCalls2))
	return blockNo, tsFound, err
}

func binSearch(ctx context.Context, client HeaderSource, numA, tsA, numB, tsB, ts uint64) (uint64, uint64, uint64, error) {
	var numCalls uint64
	for numB > numA+2 {
		numP := (numA + numB) / 2
		headP, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(numP))
		numCalls++
		if err != nil {
			return 0, 0, numCalls, errors.Wrap(err, "rpc issue in FindBlockWithTs(search)")
		}
		if headP.Time < ts {
			tsA = headP.Time
			numA = numP
		} else {
			tsB = headP.Time
			numB = numP
		}
	}
	return numA, tsA, numCalls, nil
}
