package rewards

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

// unconfirmed txs of a batch are given up this long after the batch
const purgeAfter = 86400 * 2 / 3 * time.Second

type PayoutReport struct {
	BatchTs   time.Time `json:"batchTs"`
	Paid      int       `json:"paid"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	TotalDecN string    `json:"totalDecN"`
}

// ProcessPayouts pays the open SAK credits of every user with a linked
// wallet. The batch is claimed atomically and a new batch refuses to start
// while the previous one is unfinished, unless that one was abandoned more
// than purgeAfter ago. Each payment is reserved before its transfer so the
// credits are never sent twice.
func (s *Service) ProcessPayouts(ctx context.Context) (report PayoutReport, err error) {
	if s.Exec == nil {
		return PayoutReport{}, ErrDisabled
	}
	batchTs := s.now().UTC().Truncate(time.Second)
	claimed, err := s.Store.ClaimBatch(ctx, batchTs)
	if err == nil && !claimed {
		claimed, err = s.recoverBatch(ctx, batchTs)
	}
	if err != nil {
		return PayoutReport{}, err
	}
	if !claimed {
		return PayoutReport{}, ErrBatchRunning
	}
	report = PayoutReport{BatchTs: batchTs}
	defer func() {
		ferr := s.Store.FinishBatch(context.WithoutCancel(ctx), batchTs)
		if ferr != nil {
			zap.L().Error("could not finish payout batch", zap.Time("batch", batchTs), zap.Error(ferr))
			if err == nil {
				err = ferr
			}
		}
	}()
	payees, err := s.Store.OpenPayees(ctx, batchTs)
	if err != nil {
		return report, err
	}
	minPayout := utils.FloatToDecN(s.Settings.MinPayoutSak, s.Settings.SakDecimals)
	total := new(big.Int)
	for _, p := range payees {
		if ctx.Err() != nil {
			err = errors.Wrap(ctx.Err(), "aborting payouts")
			break
		}
		if p.AmountDecN.Cmp(minPayout) < 0 || p.AmountDecN.Sign() <= 0 {
			report.Skipped++
			continue
		}
		paid, perr := s.pay(ctx, batchTs, p)
		if perr != nil {
			zap.L().Error("payout failed", zap.String("user", p.UserID), zap.Error(perr))
			report.Failed++
			if isInsufficientFunds(perr) {
				err = errors.Wrap(perr, "aborting payouts")
				break
			}
			continue
		}
		if paid {
			report.Paid++
			total.Add(total, p.AmountDecN)
		}
	}
	report.TotalDecN = total.String()
	zap.L().Info("payout batch done", zap.Time("batch", batchTs), zap.Int("paid", report.Paid),
		zap.Int("skipped", report.Skipped), zap.Int("failed", report.Failed), zap.String("totalDecN", report.TotalDecN))
	return report, err
}

// pay reserves the payment, transfers and records the tx hash. It is false
// without error if the executor sent nothing.
func (s *Service) pay(ctx context.Context, batchTs time.Time, p Payee) (bool, error) {
	err := s.Store.ReservePayment(ctx, Payment{
		UserID:     p.UserID,
		WalletAddr: p.Wallet.Hex(),
		BatchTs:    batchTs,
		AmountDecN: p.AmountDecN,
	})
	if err != nil {
		return false, errors.Wrap(err, "reserve payment")
	}
	txHash, err := s.Exec.Transfer(ctx, p.Wallet, p.AmountDecN)
	if err != nil || txHash == "" {
		if rerr := s.Store.ReleasePayment(context.WithoutCancel(ctx), p.UserID, batchTs); rerr != nil {
			zap.L().Error("could not release payment", zap.String("user", p.UserID), zap.Error(rerr))
		}
		return false, err
	}
	if err := s.Store.SetPaymentTx(ctx, p.UserID, batchTs, txHash); err != nil {
		// the credits stay attached, SyncTransfers matches the reservation
		// by wallet and amount
		zap.L().Error("could not record payment tx", zap.String("tx", txHash), zap.Error(err))
	}
	return true, nil
}

// recoverBatch takes over from a batch that is unfinished for longer than
// purgeAfter. Its payments are reconciled with the chain before it is
// closed.
func (s *Service) recoverBatch(ctx context.Context, batchTs time.Time) (bool, error) {
	last, finished, err := s.Store.BatchState(ctx)
	if err != nil {
		return false, err
	}
	if !finished {
		if batchTs.Sub(last) <= purgeAfter {
			return false, nil
		}
		zap.L().Warn("payout batch abandoned, closing it", zap.Time("batch", last))
		if s.Chain != nil {
			if _, err := s.ConfirmPayments(ctx); err != nil {
				return false, err
			}
		}
		if err := s.Store.FinishBatch(ctx, last); err != nil {
			return false, err
		}
	}
	return s.Store.ClaimBatch(ctx, batchTs)
}

type ConfirmReport struct {
	Total     int  `json:"total"`
	Confirmed int  `json:"confirmed"`
	Failed    int  `json:"failed"`
	Unknown   int  `json:"unknown"`
	Purged    bool `json:"purged"`
}

// Retry is true when some txs could not be found yet and should be queried
// again later
func (r ConfirmReport) Retry() bool {
	return r.Unknown > 0 && !r.Purged
}

// ConfirmPayments queries the receipts of the unconfirmed payments of the
// last batch. Confirmed txs are flagged, failed ones moved to the failed
// payments. Txs that cannot be found are all purged 2/3 of a day after the
// batch.
func (s *Service) ConfirmPayments(ctx context.Context) (ConfirmReport, error) {
	if s.Chain == nil {
		return ConfirmReport{}, ErrDisabled
	}
	txs, batchTs, err := s.Store.UnconfirmedForLastBatch(ctx)
	if err != nil {
		return ConfirmReport{}, err
	}
	report := ConfirmReport{Total: len(txs)}
	var success, fail []string
	for _, tx := range txs {
		if tx == "" {
			// reserved, the hash was never recorded
			report.Unknown++
			continue
		}
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return report, errors.Wrap(err, "confirm payments")
			}
		}
		switch QueryTxStatus(ctx, s.Chain, tx) {
		case TxConfirmed:
			success = append(success, tx)
		case TxFailed:
			fail = append(fail, tx)
		default:
			report.Unknown++
		}
	}
	report.Confirmed, report.Failed = len(success), len(fail)
	if err := s.Store.SetConfirmed(ctx, success); err != nil {
		return report, err
	}
	if report.Unknown > 0 && s.now().Sub(batchTs) > purgeAfter {
		if s.enabled() {
			if _, err := s.SyncTransfers(ctx); err != nil {
				return report, err
			}
		}
		zap.L().Info("deleting all unconfirmed payments", zap.Time("batch", batchTs))
		report.Purged = true
		_, err = s.Store.MoveToFailed(ctx, nil)
	} else if len(fail) > 0 {
		_, err = s.Store.MoveToFailed(ctx, fail)
	}
	zap.L().Info("payment confirmation", zap.Int("total", report.Total), zap.Int("success", report.Confirmed),
		zap.Int("fail", report.Failed), zap.Int("unknown", report.Unknown))
	return report, err
}

// SyncTransfers scans the SAK transfers sent from the payout wallet during
// the lookback window and confirms the matching payments
func (s *Service) SyncTransfers(ctx context.Context) (int, error) {
	if !s.enabled() {
		return 0, ErrDisabled
	}
	lookBack := time.Duration(s.Settings.PaymentMaxLookBackDays) * 24 * time.Hour
	tsStart := s.now().Add(-lookBack).Unix()
	startBlock, _, err := contracts.FindBlockWithTs(ctx, s.Chain, uint64(tsStart))
	if err != nil {
		zap.L().Warn("block search failed, scanning from genesis", zap.Error(err))
		startBlock = 0
	}
	payer := s.Exec.PayerAddr()
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(startBlock),
		Addresses: []common.Address{s.Token.Address},
		Topics:    [][]common.Hash{{contracts.TransferEventID}, {common.BytesToHash(payer.Bytes())}},
	}
	logs, err := s.Chain.FilterLogs(ctx, q)
	if err != nil {
		return 0, errors.Wrap(err, "filter transfer logs")
	}
	times := newBlockTimes(s.Chain)
	var updated int
	for _, l := range logs {
		t, err := contracts.ParseTransferLog(l)
		if err != nil || t.From != payer {
			continue
		}
		ok, err := s.Store.ConfirmTransfer(ctx, t, times.at(ctx, t.BlockNumber))
		if err != nil {
			zap.L().Error("confirm transfer", zap.String("tx", t.TxHash.Hex()), zap.Error(err))
			continue
		}
		if ok {
			updated++
		}
	}
	zap.L().Info("synced sak transfers", zap.Int("logs", len(logs)), zap.Int("confirmed", updated))
	return updated, nil
}
