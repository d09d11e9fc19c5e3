package rewards

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
)

/*
	PayExec executes SAK transfers, either on chain with the payout key
	or as a dry run that only logs the intent.
*/

type PayExec interface {
	PayerAddr() common.Address
	// Transfer sends amount SAK (decimal-N) and returns the tx hash. An
	// empty hash means nothing was sent.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error)
}

type ChainPayExec struct {
	key     *ecdsa.PrivateKey
	chainId *big.Int
	payer   common.Address
	token   *contracts.SakToken
}

type DryRunPayExec struct {
	Payer common.Address
}

// ParsePayoutKey parses a hex private key with or without 0x prefix
func ParsePayoutKey(hexKey string) (*ecdsa.PrivateKey, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "payout key not correctly defined")
	}
	return pk, nil
}

func NewChainPayExec(key *ecdsa.PrivateKey, chainId int64, token *contracts.SakToken) *ChainPayExec {
	return &ChainPayExec{
		key:     key,
		chainId: big.NewInt(chainId),
		payer:   crypto.PubkeyToAddress(key.PublicKey),
		token:   token,
	}
}

func (exc *ChainPayExec) PayerAddr() common.Address {
	return exc.payer
}

func logPaymentIntent(to common.Address, amount *big.Int, dry bool) {
	zap.L().Info("transact sak payout", zap.String("payee", to.Hex()),
		zap.String("amountDecN", amount.String()), zap.Bool("dryRun", dry))
}

func (exc *ChainPayExec) Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	logPaymentIntent(to, amount, false)
	opts, err := bind.NewKeyedTransactorWithChainID(exc.key, exc.chainId)
	if err != nil {
		return "", errors.Wrap(err, "transactor")
	}
	opts.Context = ctx
	tx, err := exc.token.Transfer(opts, to, amount)
	if err != nil {
		return "", errors.Wrap(err, "sak transfer")
	}
	return tx.Hash().Hex(), nil
}

func (exc *DryRunPayExec) PayerAddr() common.Address {
	return exc.Payer
}

func (exc *DryRunPayExec) Transfer(_ context.Context, to common.Address, amount *big.Int) (string, error) {
	logPaymentIntent(to, amount, true)
	return "", nil
}

// isInsufficientFunds detects errors that make every further transfer of
// the batch fail
func isInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "exceeds balance")
}
