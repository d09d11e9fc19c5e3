package rewards

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
)

type credit struct {
	user    string
	amount  *big.Int
	created time.Time
	batch   time.Time
}

type fakeStore struct {
	mu       sync.Mutex
	wallets  map[string]WalletLink
	batchTs  time.Time
	finished bool
	credits  []*credit
	payments []*Payment
	failed   []Payment
	states   []bool
	// injected failures
	openPayeesErrs int
	setTxErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{wallets: map[string]WalletLink{}, finished: true}
}

func (f *fakeStore) addCredit(user string, amount *big.Int, created time.Time) {
	f.credits = append(f.credits, &credit{user: user, amount: amount, created: created})
}

func (f *fakeStore) LinkWallet(_ context.Context, userID, walletAddr string) (WalletLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for u, l := range f.wallets {
		if u != userID && strings.EqualFold(l.WalletAddr, walletAddr) {
			return WalletLink{}, ErrWalletTaken
		}
	}
	l := WalletLink{UserID: userID, WalletAddr: walletAddr, LinkedAt: time.Now()}
	f.wallets[userID] = l
	return l, nil
}

func (f *fakeStore) GetWallet(_ context.Context, userID string) (WalletLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.wallets[userID]
	if !ok {
		return WalletLink{}, ErrNoWallet
	}
	return l, nil
}

func (f *fakeStore) BatchState(_ context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchTs, f.finished, nil
}

func (f *fakeStore) ClaimBatch(_ context.Context, batchTs time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finished {
		return false, nil
	}
	f.batchTs, f.finished = batchTs, false
	f.states = append(f.states, false)
	return true, nil
}

func (f *fakeStore) FinishBatch(_ context.Context, batchTs time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchTs.Equal(batchTs) {
		f.finished = true
		f.states = append(f.states, true)
	}
	return nil
}

func (f *fakeStore) OpenPayees(_ context.Context, batchTs time.Time) ([]Payee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openPayeesErrs > 0 {
		f.openPayeesErrs--
		return nil, errors.New("connection refused")
	}
	sums := map[string]*big.Int{}
	for _, c := range f.credits {
		if !c.batch.IsZero() || c.created.After(batchTs) {
			continue
		}
		if _, ok := f.wallets[c.user]; !ok {
			continue
		}
		if sums[c.user] == nil {
			sums[c.user] = new(big.Int)
		}
		sums[c.user].Add(sums[c.user], c.amount)
	}
	var out []Payee
	for u, s := range sums {
		out = append(out, Payee{UserID: u, Wallet: common.HexToAddress(f.wallets[u].WalletAddr), AmountDecN: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) ReservePayment(_ context.Context, p Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.TxHash = ""
	f.payments = append(f.payments, &p)
	for _, c := range f.credits {
		if c.user == p.UserID && c.batch.IsZero() && !c.created.After(p.BatchTs) {
			c.batch = p.BatchTs
		}
	}
	return nil
}

func (f *fakeStore) payment(userID string, batchTs time.Time) *Payment {
	for _, p := range f.payments {
		if p.UserID == userID && p.BatchTs.Equal(batchTs) {
			return p
		}
	}
	return nil
}

func (f *fakeStore) SetPaymentTx(_ context.Context, userID string, batchTs time.Time, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setTxErr != nil {
		return f.setTxErr
	}
	p := f.payment(userID, batchTs)
	if p == nil {
		return errors.New("no reserved payment")
	}
	p.TxHash = txHash
	return nil
}

func (f *fakeStore) ReleasePayment(_ context.Context, userID string, batchTs time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keep []*Payment
	for _, p := range f.payments {
		if p.UserID == userID && p.BatchTs.Equal(batchTs) && !p.Confirmed {
			continue
		}
		keep = append(keep, p)
	}
	f.payments = keep
	for _, c := range f.credits {
		if c.user == userID && c.batch.Equal(batchTs) {
			c.batch = time.Time{}
		}
	}
	return nil
}

func (f *fakeStore) UnconfirmedForLastBatch(_ context.Context) ([]string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last time.Time
	for _, p := range f.payments {
		if p.BatchTs.After(last) {
			last = p.BatchTs
		}
	}
	var txs []string
	for _, p := range f.payments {
		if !p.Confirmed && p.BatchTs.Equal(last) {
			txs = append(txs, p.TxHash)
		}
	}
	return txs, last, nil
}

func (f *fakeStore) SetConfirmed(_ context.Context, txHashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range txHashes {
		for _, p := range f.payments {
			if p.TxHash == h {
				p.Confirmed = true
			}
		}
	}
	return nil
}

func (f *fakeStore) MoveToFailed(_ context.Context, txHashes []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := func(h string) bool {
		if txHashes == nil {
			return true
		}
		for _, x := range txHashes {
			if x == h {
				return true
			}
		}
		return false
	}
	var keep []*Payment
	var moved int
	for _, p := range f.payments {
		if p.Confirmed || !in(p.TxHash) {
			keep = append(keep, p)
			continue
		}
		moved++
		f.failed = append(f.failed, *p)
		for _, c := range f.credits {
			if c.user == p.UserID && c.batch.Equal(p.BatchTs) {
				c.batch = time.Time{}
			}
		}
	}
	f.payments = keep
	return moved, nil
}

func (f *fakeStore) ConfirmTransfer(_ context.Context, t contracts.TransferLog, blockTs time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if !p.Confirmed && p.TxHash == t.TxHash.Hex() {
			p.Confirmed, p.BlockNr, p.BlockTs = true, t.BlockNumber, blockTs
			return true, nil
		}
	}
	for _, p := range f.payments {
		if !p.Confirmed && strings.EqualFold(p.WalletAddr, t.To.Hex()) && p.AmountDecN.Cmp(t.Value) == 0 {
			p.Confirmed, p.TxHash, p.BlockNr, p.BlockTs = true, t.TxHash.Hex(), t.BlockNumber, blockTs
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Payments(_ context.Context, userID string) ([]Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) OpenCredits(_ context.Context, userID string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := new(big.Int)
	for _, c := range f.credits {
		if c.user == userID && c.batch.IsZero() {
			sum.Add(sum, c.amount)
		}
	}
	return sum, nil
}

type transfer struct {
	to     common.Address
	amount *big.Int
}

type fakeExec struct {
	payer     common.Address
	transfers []transfer
	errFor    map[common.Address]error
}

func (e *fakeExec) PayerAddr() common.Address { return e.payer }

func (e *fakeExec) Transfer(_ context.Context, to common.Address, amount *big.Int) (string, error) {
	if err := e.errFor[to]; err != nil {
		return "", err
	}
	e.transfers = append(e.transfers, transfer{to: to, amount: amount})
	return txHash(len(e.transfers)).Hex(), nil
}

func txHash(n int) common.Hash {
	return common.HexToHash(fmt.Sprintf("0x%064x", n))
}

// fakeChain produces a block every 2 seconds starting at genesisTs
type fakeChain struct {
	head      uint64
	genesisTs uint64
	receipts  map[common.Hash]*types.Receipt
	logs      []types.Log
	query     ethereum.FilterQuery
}

func (c *fakeChain) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := c.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	n := c.head
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: c.genesisTs + 2*n}, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.query = q
	return c.logs, nil
}
