package rewards

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

var (
	ErrNoWallet       = errors.New("no wallet linked")
	ErrWalletTaken    = errors.New("wallet already linked to another user")
	ErrBatchRunning   = errors.New("previous payout batch has not finished")
	ErrInvalidPayload = errors.New("invalid wallet link payload")
	ErrDisabled       = errors.New("rewards are disabled")
)

type WalletLink struct {
	UserID     string    `json:"userId"`
	WalletAddr string    `json:"walletAddr"`
	LinkedAt   time.Time `json:"linkedAt"`
}

// Payee aggregates the open credits of one user with a linked wallet
type Payee struct {
	UserID     string
	Wallet     common.Address
	AmountDecN *big.Int
}

// Payment is a row of sak_payment
type Payment struct {
	UserID     string
	WalletAddr string
	BatchTs    time.Time
	AmountDecN *big.Int
	TxHash     string
	BlockNr    uint64
	BlockTs    time.Time
	Confirmed  bool
}

type Store interface {
	LinkWallet(ctx context.Context, userID, walletAddr string) (WalletLink, error)
	GetWallet(ctx context.Context, userID string) (WalletLink, error)

	// BatchState returns the last batch timestamp and whether it finished.
	// A zero timestamp and finished=true if no batch ever ran.
	BatchState(ctx context.Context) (time.Time, bool, error)
	// ClaimBatch atomically starts the batch at batchTs, false if the
	// previous batch has not finished
	ClaimBatch(ctx context.Context, batchTs time.Time) (bool, error)
	// FinishBatch flags the batch finished if batchTs is still the current
	// batch
	FinishBatch(ctx context.Context, batchTs time.Time) error
	// OpenPayees aggregates credits created up to batchTs that are not
	// attached to a batch, for users with a linked wallet
	OpenPayees(ctx context.Context, batchTs time.Time) ([]Payee, error)
	// ReservePayment inserts the payment without tx hash and attaches the
	// payee's open credits up to the batch timestamp
	ReservePayment(ctx context.Context, p Payment) error
	// SetPaymentTx records the tx hash of a reserved payment
	SetPaymentTx(ctx context.Context, userID string, batchTs time.Time, txHash string) error
	// ReleasePayment deletes a reserved payment that was never sent and
	// releases its credits
	ReleasePayment(ctx context.Context, userID string, batchTs time.Time) error

	UnconfirmedForLastBatch(ctx context.Context) ([]string, time.Time, error)
	SetConfirmed(ctx context.Context, txHashes []string) error
	// MoveToFailed moves unconfirmed payments with the given hashes, all
	// unconfirmed ones if nil, to the failed table and releases their credits
	MoveToFailed(ctx context.Context, txHashes []string) (int, error)
	// ConfirmTransfer marks the payment matching the on-chain transfer as
	// confirmed, false if there is none
	ConfirmTransfer(ctx context.Context, t contracts.TransferLog, blockTs time.Time) (bool, error)

	Payments(ctx context.Context, userID string) ([]Payment, error)
	OpenCredits(ctx context.Context, userID string) (*big.Int, error)
}

type Service struct {
	Store    Store
	Exec     PayExec
	Chain    Chain
	Token    *contracts.SakToken
	Settings utils.Settings
	Now      func() time.Time
	// Limiter throttles receipt queries
	Limiter *rate.Limiter
}

func NewService(st Store, exec PayExec, chain Chain, token *contracts.SakToken, s utils.Settings) *Service {
	return &Service{
		Store:    st,
		Exec:     exec,
		Chain:    chain,
		Token:    token,
		Settings: s,
		Now:      time.Now,
		Limiter:  rate.NewLimiter(3, 5),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) enabled() bool {
	return s.Chain != nil && s.Exec != nil && s.Token != nil
}

// LinkWallet verifies the signed payload and links the wallet to the user
func (s *Service) LinkWallet(ctx context.Context, userID string, p WalletLinkPayload) (WalletLink, error) {
	if p.UserID != userID {
		return WalletLink{}, errors.Wrap(ErrInvalidPayload, "payload is for another user")
	}
	if !IsValidEvmAddr(p.WalletAddr) {
		return WalletLink{}, errors.Wrap(ErrInvalidPayload, "invalid wallet address")
	}
	if !isCurrentTimestamp(p.CreatedOn, s.now()) {
		return WalletLink{}, errors.Wrap(ErrInvalidPayload, "timestamp not current")
	}
	addr, err := RecoverWalletLinkAddr(p)
	if err != nil {
		return WalletLink{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if !strings.EqualFold(addr.Hex(), p.WalletAddr) {
		return WalletLink{}, errors.Wrap(ErrInvalidPayload, "signature does not match wallet")
	}
	link, err := s.Store.LinkWallet(ctx, userID, addr.Hex())
	if err != nil {
		return WalletLink{}, err
	}
	zap.L().Info("wallet linked", zap.String("user", userID), zap.String("wallet", addr.Hex()))
	return link, nil
}

func (s *Service) Wallet(ctx context.Context, userID string) (WalletLink, error) {
	return s.Store.GetWallet(ctx, userID)
}

type Earning struct {
	BatchTs    time.Time `json:"batchTs"`
	AmountDecN string    `json:"amountDecN"`
	Amount     float64   `json:"amount"`
	TxHash     string    `json:"txHash"`
	Confirmed  bool      `json:"confirmed"`
}

// Earnings lists the SAK payouts of a user
func (s *Service) Earnings(ctx context.Context, userID string) ([]Earning, error) {
	pays, err := s.Store.Payments(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Earning, 0, len(pays))
	for _, p := range pays {
		out = append(out, Earning{
			BatchTs:    p.BatchTs,
			AmountDecN: p.AmountDecN.String(),
			Amount:     utils.DecNToFloat(p.AmountDecN, s.Settings.SakDecimals),
			TxHash:     p.TxHash,
			Confirmed:  p.Confirmed,
		})
	}
	return out, nil
}

type OpenCredit struct {
	AmountDecN  string    `json:"amountDecN"`
	Amount      float64   `json:"amount"`
	NextPayment time.Time `json:"nextPayment"`
	Wallet      string    `json:"wallet,omitempty"`
}

// OpenCredits is the SAK accrued but not yet paid out
func (s *Service) OpenCredits(ctx context.Context, userID string) (OpenCredit, error) {
	amount, err := s.Store.OpenCredits(ctx, userID)
	if err != nil {
		return OpenCredit{}, err
	}
	res := OpenCredit{
		AmountDecN:  amount.String(),
		Amount:      utils.DecNToFloat(amount, s.Settings.SakDecimals),
		NextPayment: utils.NextPaymentScheduleAfter(s.Settings.PayCronSchedule, s.now()),
	}
	link, err := s.Store.GetWallet(ctx, userID)
	if err == nil {
		res.Wallet = link.WalletAddr
	} else if !errors.Is(err, ErrNoWallet) {
		return OpenCredit{}, err
	}
	return res, nil
}

type TokenInfo struct {
	Address       string `json:"address"`
	Symbol        string `json:"symbol"`
	Decimals      uint8  `json:"decimals"`
	TotalSupply   string `json:"totalSupply"`
	PayoutAddr    string `json:"payoutAddr"`
	PayoutBalance string `json:"payoutBalance"`
}

func (s *Service) TokenInfo(ctx context.Context) (TokenInfo, error) {
	if !s.enabled() {
		return TokenInfo{}, ErrDisabled
	}
	info := TokenInfo{Address: s.Token.Address.Hex(), PayoutAddr: s.Exec.PayerAddr().Hex()}
	var err error
	if info.Symbol, err = s.Token.Symbol(ctx); err != nil {
		return TokenInfo{}, errors.Wrap(err, "token symbol")
	}
	if info.Decimals, err = s.Token.Decimals(ctx); err != nil {
		return TokenInfo{}, errors.Wrap(err, "token decimals")
	}
	supply, err := s.Token.TotalSupply(ctx)
	if err != nil {
		return TokenInfo{}, errors.Wrap(err, "token supply")
	}
	info.TotalSupply = supply.String()
	bal, err := s.Token.BalanceOf(ctx, s.Exec.PayerAddr())
	if err != nil {
		return TokenInfo{}, errors.Wrap(err, "payout balance")
	}
	info.PayoutBalance = bal.String()
	return info, nil
}
