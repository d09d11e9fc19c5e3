package passport

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
)

var (
	// ErrMintLost means the chain does not know the mint tx, it was never
	// broadcast or has been dropped
	ErrMintLost     = errors.New("mint transaction unknown to the chain")
	ErrMintReverted = errors.New("mint transaction reverted")
)

// Minter mints passport NFTs in steps so the tx hash can be recorded
// before the tx is broadcast
type Minter interface {
	// Prepare signs a safeMint of uri to the address without sending it
	Prepare(ctx context.Context, to common.Address, uri string) (*types.Transaction, error)
	Send(ctx context.Context, tx *types.Transaction) error
	// Wait blocks until the tx is mined and returns the minted token id
	Wait(ctx context.Context, txHash string) (*big.Int, error)
}

// MintBackend is what ethclient.Client provides for sending and waiting
type MintBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

type ChainMinter struct {
	backend MintBackend
	nft     *contracts.PassportNft
	key     *ecdsa.PrivateKey
	chainId *big.Int
	poll    time.Duration
}

func NewChainMinter(backend MintBackend, nftAddr common.Address, key *ecdsa.PrivateKey, chainId int64) (*ChainMinter, error) {
	nft, err := contracts.NewPassportNft(nftAddr, backend)
	if err != nil {
		return nil, err
	}
	return &ChainMinter{backend: backend, nft: nft, key: key, chainId: big.NewInt(chainId), poll: time.Second}, nil
}

func (m *ChainMinter) Prepare(ctx context.Context, to common.Address, uri string) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(m.key, m.chainId)
	if err != nil {
		return nil, errors.Wrap(err, "transactor")
	}
	opts.Context = ctx
	opts.NoSend = true
	tx, err := m.nft.SafeMint(opts, to, uri)
	if err != nil {
		return nil, errors.Wrap(err, "safe mint")
	}
	return tx, nil
}

func (m *ChainMinter) Send(ctx context.Context, tx *types.Transaction) error {
	return errors.Wrap(m.backend.SendTransaction(ctx, tx), "send mint")
}

func (m *ChainMinter) Wait(ctx context.Context, txHash string) (*big.Int, error) {
	h := common.HexToHash(txHash)
	for {
		receipt, err := m.backend.TransactionReceipt(ctx, h)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, ErrMintReverted
			}
			return m.nft.MintedTokenId(receipt)
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "wait for mint")
		}
		if _, _, err := m.backend.TransactionByHash(ctx, h); errors.Is(err, ethereum.NotFound) {
			return nil, ErrMintLost
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "wait for mint")
		case <-time.After(m.poll):
		}
	}
}
