package rewards

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

var (
	batchNow  = time.Unix(1_700_000_000, 0).UTC()
	payerAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	addr1     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	addr2     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	addr4     = common.HexToAddress("0x0000000000000000000000000000000000000004")
	addr5     = common.HexToAddress("0x0000000000000000000000000000000000000005")
)

func sak(x float64) *big.Int {
	return utils.FloatToDecN(x, 18)
}

func testSettings() utils.Settings {
	return utils.Settings{
		SakDecimals:            18,
		MinPayoutSak:           1,
		PaymentMaxLookBackDays: 14,
		PayCronSchedule:        "0 14 * * 2",
	}
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeExec, *fakeChain) {
	st := newFakeStore()
	exec := &fakeExec{payer: payerAddr, errFor: map[common.Address]error{}}
	chain := &fakeChain{head: 1_000_000, genesisTs: uint64(batchNow.Unix()) - 2_000_000, receipts: map[common.Hash]*types.Receipt{}}
	token, err := contracts.NewSakToken(tokenAddr, nil)
	require.NoError(t, err)
	s := NewService(st, exec, chain, token, testSettings())
	s.Now = func() time.Time { return batchNow }
	s.Limiter = nil
	return s, st, exec, chain
}

func link(st *fakeStore, user string, addr common.Address) {
	st.wallets[user] = WalletLink{UserID: user, WalletAddr: addr.Hex()}
}

func TestProcessPayouts(t *testing.T) {
	s, st, exec, _ := newTestService(t)
	link(st, "u1", addr1)
	link(st, "u2", addr2)
	st.addCredit("u1", sak(1.5), batchNow.Add(-2*time.Hour))
	st.addCredit("u1", sak(0.5), batchNow.Add(-time.Hour))
	st.addCredit("u1", sak(1), batchNow.Add(time.Hour))
	st.addCredit("u2", sak(0.5), batchNow.Add(-time.Hour))
	st.addCredit("u3", sak(5), batchNow.Add(-time.Hour))

	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Paid)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, sak(2).String(), rep.TotalDecN)

	require.Len(t, exec.transfers, 1)
	assert.Equal(t, addr1, exec.transfers[0].to)
	assert.Equal(t, sak(2), exec.transfers[0].amount)

	require.Len(t, st.payments, 1)
	assert.Equal(t, txHash(1).Hex(), st.payments[0].TxHash)
	assert.Equal(t, batchNow, st.payments[0].BatchTs)
	assert.False(t, st.payments[0].Confirmed)
	assert.Equal(t, []bool{false, true}, st.states)

	open, err := st.OpenCredits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, sak(1), open)
}

func TestProcessPayoutsRefusesUnfinishedBatch(t *testing.T) {
	s, st, exec, _ := newTestService(t)
	st.finished = false
	st.batchTs = batchNow.Add(-time.Hour)
	_, err := s.ProcessPayouts(context.Background())
	assert.True(t, errors.Is(err, ErrBatchRunning))
	assert.Empty(t, exec.transfers)
}

func TestProcessPayoutsInsufficientFundsAborts(t *testing.T) {
	s, st, exec, _ := newTestService(t)
	link(st, "u1", addr1)
	link(st, "u4", addr4)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))
	st.addCredit("u4", sak(2), batchNow.Add(-time.Hour))
	exec.errFor[addr1] = errors.New("insufficient funds for gas * price + value")

	rep, err := s.ProcessPayouts(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Empty(t, exec.transfers)
	assert.True(t, st.finished)
}

func TestProcessPayoutsSkipsFailedPayee(t *testing.T) {
	s, st, exec, _ := newTestService(t)
	link(st, "u1", addr1)
	link(st, "u4", addr4)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))
	st.addCredit("u4", sak(3), batchNow.Add(-time.Hour))
	exec.errFor[addr1] = errors.New("nonce too low")

	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Paid)
	require.Len(t, exec.transfers, 1)
	assert.Equal(t, addr4, exec.transfers[0].to)

	open, _ := st.OpenCredits(context.Background(), "u1")
	assert.Equal(t, sak(2), open)
}

func TestProcessPayoutsDryRun(t *testing.T) {
	s, st, _, _ := newTestService(t)
	s.Exec = &DryRunPayExec{Payer: payerAddr}
	link(st, "u1", addr1)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))

	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Paid)
	assert.Empty(t, st.payments)
	open, _ := st.OpenCredits(context.Background(), "u1")
	assert.Equal(t, sak(2), open)
}

func TestProcessPayoutsTxNotRecorded(t *testing.T) {
	s, st, exec, chain := newTestService(t)
	link(st, "u1", addr1)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))
	st.setTxErr = errors.New("connection reset")

	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Paid)
	require.Len(t, exec.transfers, 1)
	require.Len(t, st.payments, 1)
	assert.Empty(t, st.payments[0].TxHash)

	st.setTxErr = nil
	s.Now = func() time.Time { return batchNow.Add(7 * 24 * time.Hour) }
	rep, err = s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Paid)
	assert.Len(t, exec.transfers, 1, "credits must not be sent twice")

	chain.logs = []types.Log{transferLog(payerAddr, addr1, sak(2), txHash(1), 500)}
	n, err := s.SyncTransfers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, st.payments[0].Confirmed)
	assert.Equal(t, txHash(1).Hex(), st.payments[0].TxHash)
}

func TestProcessPayoutsFinishesBatchOnError(t *testing.T) {
	s, st, exec, _ := newTestService(t)
	link(st, "u1", addr1)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))
	st.openPayeesErrs = 1

	_, err := s.ProcessPayouts(context.Background())
	assert.Error(t, err)
	assert.True(t, st.finished)

	s.Now = func() time.Time { return batchNow.Add(7 * 24 * time.Hour) }
	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Paid)
	assert.Len(t, exec.transfers, 1)
}

func TestProcessPayoutsRecoversAbandonedBatch(t *testing.T) {
	s, st, exec, chain := newTestService(t)
	link(st, "u1", addr1)
	link(st, "u4", addr4)
	old := batchNow.Add(-20 * time.Hour)
	st.addCredit("u4", sak(2), old.Add(-time.Hour))
	require.NoError(t, st.ReservePayment(context.Background(),
		Payment{UserID: "u4", WalletAddr: addr4.Hex(), BatchTs: old, AmountDecN: sak(2)}))
	st.batchTs, st.finished = old, false
	st.addCredit("u1", sak(3), batchNow.Add(-time.Hour))
	// the abandoned transfer did go out
	chain.logs = []types.Log{transferLog(payerAddr, addr4, sak(2), txHash(7), 400)}

	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Paid)
	require.Len(t, exec.transfers, 1)
	assert.Equal(t, addr1, exec.transfers[0].to)
	assert.Empty(t, st.failed)
	open, _ := st.OpenCredits(context.Background(), "u4")
	assert.Equal(t, "0", open.String())
	assert.True(t, st.finished)
}

func TestProcessPayoutsAbandonedTransferNeverSent(t *testing.T) {
	s, st, exec, _ := newTestService(t)
	link(st, "u4", addr4)
	old := batchNow.Add(-20 * time.Hour)
	st.addCredit("u4", sak(2), old.Add(-time.Hour))
	require.NoError(t, st.ReservePayment(context.Background(),
		Payment{UserID: "u4", WalletAddr: addr4.Hex(), BatchTs: old, AmountDecN: sak(2)}))
	st.batchTs, st.finished = old, false

	rep, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.failed, 1)
	assert.Equal(t, 1, rep.Paid)
	require.Len(t, exec.transfers, 1)
	assert.Equal(t, addr4, exec.transfers[0].to)
}

func TestConfirmPaymentsHonoursContext(t *testing.T) {
	s, st, _, _ := newTestService(t)
	for k, u := range []string{"u1", "u4"} {
		link(st, u, []common.Address{addr1, addr4}[k])
		st.addCredit(u, sak(2), batchNow.Add(-time.Hour))
	}
	_, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)

	s.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = s.ConfirmPayments(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConfirmPayments(t *testing.T) {
	s, st, _, chain := newTestService(t)
	for k, u := range []string{"u1", "u4", "u5"} {
		link(st, u, []common.Address{addr1, addr4, addr5}[k])
		st.addCredit(u, sak(2), batchNow.Add(-time.Hour))
	}
	_, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	require.Len(t, st.payments, 3)

	chain.receipts[txHash(1)] = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	chain.receipts[txHash(2)] = &types.Receipt{Status: types.ReceiptStatusFailed}

	s.Now = func() time.Time { return batchNow.Add(time.Hour) }
	rep, err := s.ConfirmPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ConfirmReport{Total: 3, Confirmed: 1, Failed: 1, Unknown: 1}, rep)
	assert.True(t, rep.Retry())
	require.Len(t, st.failed, 1)
	assert.Equal(t, txHash(2).Hex(), st.failed[0].TxHash)
	open, _ := st.OpenCredits(context.Background(), "u4")
	assert.Equal(t, sak(2), open)

	s.Now = func() time.Time { return batchNow.Add(17 * time.Hour) }
	rep, err = s.ConfirmPayments(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Purged)
	assert.False(t, rep.Retry())
	assert.Len(t, st.failed, 2)
	require.Len(t, st.payments, 1)
	assert.True(t, st.payments[0].Confirmed)

	rep, err = s.ConfirmPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Total)
}

func TestQueryTxStatus(t *testing.T) {
	chain := &fakeChain{receipts: map[common.Hash]*types.Receipt{
		txHash(1): {Status: types.ReceiptStatusSuccessful},
		txHash(2): {Status: types.ReceiptStatusFailed},
	}}
	ctx := context.Background()
	assert.Equal(t, TxConfirmed, QueryTxStatus(ctx, chain, txHash(1).Hex()))
	assert.Equal(t, TxFailed, QueryTxStatus(ctx, chain, txHash(2).Hex()))
	assert.Equal(t, TxNotFound, QueryTxStatus(ctx, chain, txHash(3).Hex()))
}

func transferLog(from, to common.Address, amount *big.Int, tx common.Hash, block uint64) types.Log {
	return types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{contracts.TransferEventID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		TxHash:      tx,
		BlockNumber: block,
	}
}

func TestSyncTransfers(t *testing.T) {
	s, st, _, chain := newTestService(t)
	link(st, "u1", addr1)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))
	_, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)

	chain.logs = []types.Log{
		transferLog(payerAddr, addr1, sak(2), txHash(1), 500),
		transferLog(addr2, addr1, sak(2), txHash(9), 501),
	}
	n, err := s.SyncTransfers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, st.payments, 1)
	assert.True(t, st.payments[0].Confirmed)
	assert.Equal(t, uint64(500), st.payments[0].BlockNr)
	assert.Equal(t, time.Unix(int64(chain.genesisTs+1000), 0).UTC(), st.payments[0].BlockTs)

	assert.Equal(t, []common.Address{tokenAddr}, chain.query.Addresses)
	assert.Equal(t, common.BytesToHash(payerAddr.Bytes()), chain.query.Topics[1][0])
	assert.Greater(t, chain.query.FromBlock.Uint64(), uint64(0))
}

func TestLinkWallet(t *testing.T) {
	s, st, _, _ := newTestService(t)
	key, p := newPayload(t)
	s.Now = func() time.Time { return time.Unix(int64(p.CreatedOn)+10, 0) }
	p.Signature = signEip191(t, key, p)
	ctx := context.Background()

	l, err := s.LinkWallet(ctx, p.UserID, p)
	require.NoError(t, err)
	assert.Equal(t, p.WalletAddr, l.WalletAddr)
	assert.Contains(t, st.wallets, p.UserID)

	_, err = s.LinkWallet(ctx, "intruder", p)
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	forged := p
	forged.Signature = signEip191(t, other, p)
	_, err = s.LinkWallet(ctx, p.UserID, forged)
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	s.Now = func() time.Time { return time.Unix(int64(p.CreatedOn)+3600, 0) }
	_, err = s.LinkWallet(ctx, p.UserID, p)
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestEarningsAndOpenCredits(t *testing.T) {
	s, st, _, _ := newTestService(t)
	link(st, "u1", addr1)
	st.addCredit("u1", sak(2), batchNow.Add(-time.Hour))
	_, err := s.ProcessPayouts(context.Background())
	require.NoError(t, err)
	st.addCredit("u1", sak(0.25), batchNow.Add(time.Minute))

	earnings, err := s.Earnings(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, 2.0, earnings[0].Amount)

	open, err := s.OpenCredits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, open.Amount)
	assert.Equal(t, addr1.Hex(), open.Wallet)
	assert.True(t, open.NextPayment.After(batchNow))

	open, err = s.OpenCredits(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "0", open.AmountDecN)
	assert.Empty(t, open.Wallet)
}

func TestTokenInfoDisabled(t *testing.T) {
	s := NewService(newFakeStore(), nil, nil, nil, testSettings())
	_, err := s.TokenInfo(context.Background())
	assert.True(t, errors.Is(err, ErrDisabled))
	_, err = s.SyncTransfers(context.Background())
	assert.True(t, errors.Is(err, ErrDisabled))
}
