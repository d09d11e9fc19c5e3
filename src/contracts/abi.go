package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

// AbiEncode encodes the values with the given solidity types (e.g. string,
// uint256, address) the way abi.encode does on chain
func AbiEncode(types []string, values ...interface{}) ([]byte, error) {
	if len(types) != len(values) {
		return nil, errors.New("number of types and values do not match")
	}
	arguments := abi.Arguments{}
	for _, typ := range types {
		t, err := abi.NewType(typ, "", nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create abi type")
		}
		arguments = append(arguments, abi.Argument{Type: t})
	}
	out, err := arguments.Pack(values...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode arguments")
	}
	return out, nil
}
