package rewards

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signEip191(t *testing.T, key *ecdsa.PrivateKey, p WalletLinkPayload) string {
	digest, err := WalletLinkDigest(p)
	require.NoError(t, err)
	sig, err := crypto.Sign(Eip191Hash(digest[:]).Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func signEip712(t *testing.T, key *ecdsa.PrivateKey, p WalletLinkPayload) string {
	structHash, err := WalletLinkTypedDataHash(p)
	require.NoError(t, err)
	hash, err := Eip712Hash(structHash)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func newPayload(t *testing.T) (*ecdsa.PrivateKey, WalletLinkPayload) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, WalletLinkPayload{
		UserID:     "user-42",
		WalletAddr: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		CreatedOn:  1696166434,
	}
}

func TestWalletLinkDigestDeterministic(t *testing.T) {
	p := WalletLinkPayload{UserID: "u", WalletAddr: "0x0aB6527027EcFF1144dEc3d78154fce309ac838c", CreatedOn: 1696166434}
	d1, err := WalletLinkDigest(p)
	require.NoError(t, err)
	d2, err := WalletLinkDigest(p)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	p.UserID = "v"
	d3, err := WalletLinkDigest(p)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestRecoverWalletLinkAddr(t *testing.T) {
	key, p := newPayload(t)
	want := crypto.PubkeyToAddress(key.PublicKey)

	p.Signature = signEip191(t, key, p)
	addr, err := RecoverWalletLinkAddr(p)
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	p.Signature = signEip712(t, key, p)
	addr, err = RecoverWalletLinkAddr(p)
	require.NoError(t, err)
	assert.Equal(t, want, addr)
}

func TestRecoverWalletLinkAddrTampered(t *testing.T) {
	key, p := newPayload(t)
	p.Signature = signEip191(t, key, p)
	p.UserID = "someone-else"
	addr, err := RecoverWalletLinkAddr(p)
	if err == nil {
		assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), addr)
	}

	p.Signature = "0x1234"
	_, err = RecoverWalletLinkAddr(p)
	assert.Error(t, err)
}

func TestIsValidEvmAddr(t *testing.T) {
	assert.True(t, IsValidEvmAddr("0x0aB6527027EcFF1144dEc3d78154fce309ac838c"))
	assert.False(t, IsValidEvmAddr("0x0aB6527027EcFF1144dEc3d78154fce309ac838"))
	assert.False(t, IsValidEvmAddr("0aB6527027EcFF1144dEc3d78154fce309ac838c00"))
	assert.False(t, IsValidEvmAddr("0xZZB6527027EcFF1144dEc3d78154fce309ac838c"))
}

func TestIsCurrentTimestamp(t *testing.T) {
	now := time.Unix(1696166434, 0)
	assert.True(t, isCurrentTimestamp(1696166434, now))
	assert.True(t, isCurrentTimestamp(1696166434-299, now))
	assert.False(t, isCurrentTimestamp(1696166434-301, now))
	assert.False(t, isCurrentTimestamp(1696166434+301, now))
}
