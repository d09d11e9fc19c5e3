package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// PassportNftABI is the mint subset of the product passport ERC-721
const PassportNftABI = `[
{"inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],"name":"safeMint","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":true,"name":"tokenId","type":"uint256"}],"name":"Transfer","type":"event"}
]`

type PassportNft struct {
	Address  common.Address
	contract *bind.BoundContract
}

func NewPassportNft(addr common.Address, backend bind.ContractBackend) (*PassportNft, error) {
	parsed, err := abi.JSON(strings.NewReader(PassportNftABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse passport abi")
	}
	c := bind.NewBoundContract(addr, parsed, backend, backend, backend)
	return &PassportNft{Address: addr, contract: c}, nil
}

func (p *PassportNft) SafeMint(opts *bind.TransactOpts, to common.Address, uri string) (*types.Transaction, error) {
	return p.contract.Transact(opts, "safeMint", to, uri)
}

// MintedTokenId finds the token id of the mint (Transfer from the zero
// address) emitted by this contract in the receipt
func (p *PassportNft) MintedTokenId(receipt *types.Receipt) (*big.Int, error) {
	for _, l := range receipt.Logs {
		if l.Address != p.Address || len(l.Topics) != 4 || l.Topics[0] != TransferEventID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), nil
	}
	return nil, errors.New("no mint event in receipt")
}
