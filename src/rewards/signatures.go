package rewards

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	solsha3 "github.com/miguelmota/go-solidity-sha3"
	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
)

const (
	signDomain     = "Sakshi"
	linkWalletText = "Link wallet"
	// accepted clock skew of signed payloads
	maxSignatureAge = 5 * 60
)

// WalletLinkPayload is signed by the wallet owner to link it to a user
type WalletLinkPayload struct {
	UserID     string `json:"userId"`
	WalletAddr string `json:"walletAddr"`
	CreatedOn  uint32 `json:"createdOn"`
	Signature  string `json:"signature"`
}

var evmAddrRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

func IsValidEvmAddr(addr string) bool {
	return evmAddrRegex.MatchString(addr)
}

// isCurrentTimestamp returns true if ts is within 5 minutes of now
func isCurrentTimestamp(ts uint32, now time.Time) bool {
	current := now.UTC().Unix()
	return int64(ts) > current-maxSignatureAge && int64(ts) < current+maxSignatureAge
}

// WalletLinkDigest is the solidity-sha3 of the abi encoded
// ("Link wallet", userId, wallet, createdOn), signed with EIP-191
func WalletLinkDigest(p WalletLinkPayload) ([32]byte, error) {
	types := []string{"string", "string", "address", "uint256"}
	values := []interface{}{linkWalletText, p.UserID, common.HexToAddress(p.WalletAddr), big.NewInt(int64(p.CreatedOn))}
	encoded, err := contracts.AbiEncode(types, values...)
	if err != nil {
		return [32]byte{}, err
	}
	var digest [32]byte
	copy(digest[:], solsha3.SoliditySHA3(encoded))
	return digest, nil
}

func walletLinkTypedData(p WalletLinkPayload) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"WalletLink": []apitypes.Type{
				{Name: "UserId", Type: "string"},
				{Name: "WalletAddr", Type: "address"},
				{Name: "CreatedOn", Type: "uint256"},
			},
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
			},
		},
		PrimaryType: "WalletLink",
		Domain:      apitypes.TypedDataDomain{Name: signDomain},
		Message: apitypes.TypedDataMessage{
			"UserId":     p.UserID,
			"WalletAddr": p.WalletAddr,
			"CreatedOn":  big.NewInt(int64(p.CreatedOn)),
		},
	}
}

// WalletLinkTypedDataHash is the EIP-712 struct hash of the payload
func WalletLinkTypedDataHash(p WalletLinkPayload) ([]byte, error) {
	td := walletLinkTypedData(p)
	return td.HashStruct(td.PrimaryType, td.Message)
}

// RecoverWalletLinkAddr recovers the signer of the payload. EIP-712 is tried
// first, then EIP-191 over WalletLinkDigest.
func RecoverWalletLinkAddr(p WalletLinkPayload) (common.Address, error) {
	typedHash, err := WalletLinkTypedDataHash(p)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := recoverEvmAddressEip712(typedHash, p.Signature)
	if err == nil && strings.EqualFold(addr.String(), p.WalletAddr) {
		return addr, nil
	}
	digest, err := WalletLinkDigest(p)
	if err != nil {
		return common.Address{}, err
	}
	return recoverEvmAddressEip191(digest[:], p.Signature)
}

func decodeSignature(signature string) ([]byte, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}
	if len(sig) != crypto.SignatureLength {
		return nil, errors.Errorf("signature length %d", len(sig))
	}
	// most wallets sign with v in {27, 28}
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}
	return sig, nil
}

// Eip191Hash is keccak256 of the "Ethereum Signed Message" prefixed data
func Eip191Hash(data []byte) common.Hash {
	msg := []byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(data)) + string(data))
	return crypto.Keccak256Hash(msg)
}

func recoverEvmAddressEip191(data []byte, signature string) (common.Address, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(Eip191Hash(data).Bytes(), sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Eip712Hash combines the domain separator with a struct hash
func Eip712Hash(structHash []byte) (common.Hash, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{{Name: "name", Type: "string"}},
		},
		Domain: apitypes.TypedDataDomain{Name: signDomain},
	}
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "domain separator")
	}
	raw := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(structHash)))
	return crypto.Keccak256Hash(raw), nil
}

func recoverEvmAddressEip712(structHash []byte, signature string) (common.Address, error) {
	hash, err := Eip712Hash(structHash)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := decodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	pubRaw, err := crypto.Ecrecover(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover signer")
	}
	pub, err := crypto.UnmarshalPubkey(pubRaw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
