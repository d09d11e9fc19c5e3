package rewards

import (
	"context"
	"database/sql"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/env"
	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
	"github.com/projectai397/sakshi-platform-sub002/src/store"
	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

type PgStore struct {
	Db *sql.DB
}

const pgUniqueViolation = "23505"

func (p *PgStore) LinkWallet(ctx context.Context, userID, walletAddr string) (WalletLink, error) {
	query := `
	INSERT INTO wallet_link (user_id, wallet_addr) VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET wallet_addr = EXCLUDED.wallet_addr, linked_at = now()
	RETURNING user_id, wallet_addr, linked_at`
	var l WalletLink
	err := p.Db.QueryRowContext(ctx, query, userID, strings.ToLower(walletAddr)).Scan(&l.UserID, &l.WalletAddr, &l.LinkedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return WalletLink{}, ErrWalletTaken
	}
	if err != nil {
		return WalletLink{}, errors.Wrap(err, "link wallet")
	}
	l.WalletAddr = common.HexToAddress(l.WalletAddr).Hex()
	return l, nil
}

func (p *PgStore) GetWallet(ctx context.Context, userID string) (WalletLink, error) {
	var l WalletLink
	err := p.Db.QueryRowContext(ctx, `SELECT user_id, wallet_addr, linked_at FROM wallet_link WHERE user_id = $1`, userID).
		Scan(&l.UserID, &l.WalletAddr, &l.LinkedAt)
	if err == sql.ErrNoRows {
		return WalletLink{}, ErrNoWallet
	}
	if err != nil {
		return WalletLink{}, errors.Wrap(err, "get wallet")
	}
	l.WalletAddr = common.HexToAddress(l.WalletAddr).Hex()
	return l, nil
}

func (p *PgStore) BatchState(ctx context.Context) (time.Time, bool, error) {
	finished, ok, err := store.GetSetting(ctx, p.Db, env.SETTING_BATCH_FINISHED)
	if err != nil {
		return time.Time{}, true, err
	}
	tsStr, _, err := store.GetSetting(ctx, p.Db, env.SETTING_BATCH_TS)
	if err != nil {
		return time.Time{}, true, err
	}
	return parseBatchTs(tsStr), !ok || finished == "true", nil
}

func parseBatchTs(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// lockBatch creates the batch settings if needed and locks them until the
// transaction ends
func lockBatch(ctx context.Context, tx *sql.Tx) (time.Time, bool, error) {
	_, err := tx.ExecContext(ctx, `INSERT INTO reward_settings (property, value) VALUES ($1, 'true'), ($2, '0')
		ON CONFLICT (property) DO NOTHING`, env.SETTING_BATCH_FINISHED, env.SETTING_BATCH_TS)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "init batch state")
	}
	rows, err := tx.QueryContext(ctx, `SELECT property, value FROM reward_settings
		WHERE property IN ($1, $2) ORDER BY property FOR UPDATE`, env.SETTING_BATCH_FINISHED, env.SETTING_BATCH_TS)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "lock batch state")
	}
	defer rows.Close()
	var ts time.Time
	var finished bool
	for rows.Next() {
		var prop, value string
		if err := rows.Scan(&prop, &value); err != nil {
			return time.Time{}, false, errors.Wrap(err, "scan batch state")
		}
		switch prop {
		case env.SETTING_BATCH_FINISHED:
			finished = value == "true"
		case env.SETTING_BATCH_TS:
			ts = parseBatchTs(value)
		}
	}
	return ts, finished, rows.Err()
}

func setBatch(ctx context.Context, tx *sql.Tx, batchTs time.Time, finished bool) error {
	query := `UPDATE reward_settings SET value = $2 WHERE property = $1`
	if _, err := tx.ExecContext(ctx, query, env.SETTING_BATCH_TS, strconv.FormatInt(batchTs.Unix(), 10)); err != nil {
		return errors.Wrap(err, "set batch ts")
	}
	_, err := tx.ExecContext(ctx, query, env.SETTING_BATCH_FINISHED, strconv.FormatBool(finished))
	return errors.Wrap(err, "set batch finished")
}

func (p *PgStore) ClaimBatch(ctx context.Context, batchTs time.Time) (bool, error) {
	var claimed bool
	err := store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		_, finished, err := lockBatch(ctx, tx)
		if err != nil || !finished {
			return err
		}
		claimed = true
		return setBatch(ctx, tx, batchTs, false)
	})
	return claimed && err == nil, err
}

func (p *PgStore) FinishBatch(ctx context.Context, batchTs time.Time) error {
	return store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		ts, _, err := lockBatch(ctx, tx)
		if err != nil {
			return err
		}
		if !ts.Equal(batchTs.UTC().Truncate(time.Second)) {
			zap.L().Warn("not finishing batch, another one started", zap.Time("batch", batchTs), zap.Time("current", ts))
			return nil
		}
		return setBatch(ctx, tx, ts, true)
	})
}

func (p *PgStore) OpenPayees(ctx context.Context, batchTs time.Time) ([]Payee, error) {
	query := `SELECT c.user_id, w.wallet_addr, sum(c.amount_dec_n)::text
		FROM sak_credit c
		JOIN wallet_link w ON w.user_id = c.user_id
		WHERE c.batch_ts IS NULL AND c.created_at <= $1
		GROUP BY c.user_id, w.wallet_addr
		ORDER BY c.user_id`
	rows, err := p.Db.QueryContext(ctx, query, batchTs)
	if err != nil {
		return nil, errors.Wrap(err, "open payees")
	}
	defer rows.Close()
	var out []Payee
	for rows.Next() {
		var py Payee
		var wallet, amount string
		if err := rows.Scan(&py.UserID, &wallet, &amount); err != nil {
			return nil, errors.Wrap(err, "scan payee")
		}
		py.Wallet = common.HexToAddress(wallet)
		py.AmountDecN = utils.DecNFromString(amount)
		out = append(out, py)
	}
	return out, rows.Err()
}

func (p *PgStore) ReservePayment(ctx context.Context, pay Payment) error {
	return store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO sak_payment (user_id, wallet_addr, batch_ts, amount_dec_n, tx_hash)
		VALUES ($1, $2, $3, $4, '')`,
			pay.UserID, strings.ToLower(pay.WalletAddr), pay.BatchTs, pay.AmountDecN.String())
		if err != nil {
			return errors.Wrap(err, "insert payment")
		}
		_, err = tx.ExecContext(ctx, `UPDATE sak_credit SET batch_ts = $2
			WHERE user_id = $1 AND batch_ts IS NULL AND created_at <= $2`, pay.UserID, pay.BatchTs)
		return errors.Wrap(err, "attach credits")
	})
}

func (p *PgStore) SetPaymentTx(ctx context.Context, userID string, batchTs time.Time, txHash string) error {
	res, err := p.Db.ExecContext(ctx, `UPDATE sak_payment SET tx_hash = $3 WHERE user_id = $1 AND batch_ts = $2`,
		userID, batchTs, txHash)
	if err != nil {
		return errors.Wrap(err, "set payment tx")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("no payment reserved for %s in batch %s", userID, batchTs)
	}
	return nil
}

func (p *PgStore) ReleasePayment(ctx context.Context, userID string, batchTs time.Time) error {
	return store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sak_credit SET batch_ts = NULL WHERE user_id = $1 AND batch_ts = $2`,
			userID, batchTs)
		if err != nil {
			return errors.Wrap(err, "release credits")
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sak_payment WHERE user_id = $1 AND batch_ts = $2 AND tx_confirmed = false`,
			userID, batchTs)
		return errors.Wrap(err, "delete reserved payment")
	})
}

// UnconfirmedForLastBatch returns the unconfirmed tx hashes of the latest
// batch and the batch timestamp
func (p *PgStore) UnconfirmedForLastBatch(ctx context.Context) ([]string, time.Time, error) {
	query := `SELECT DISTINCT tx_hash, batch_ts FROM sak_payment
		WHERE tx_confirmed = false
		AND batch_ts = (SELECT max(batch_ts) FROM sak_payment)`
	rows, err := p.Db.QueryContext(ctx, query)
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "unconfirmed payments")
	}
	defer rows.Close()
	var txs []string
	var batchTs time.Time
	for rows.Next() {
		var tx string
		if err := rows.Scan(&tx, &batchTs); err != nil {
			return nil, time.Time{}, errors.Wrap(err, "scan unconfirmed payment")
		}
		txs = append(txs, tx)
	}
	return txs, batchTs, rows.Err()
}

func (p *PgStore) SetConfirmed(ctx context.Context, txHashes []string) error {
	for _, h := range txHashes {
		_, err := p.Db.ExecContext(ctx, `UPDATE sak_payment SET tx_confirmed = true WHERE tx_hash = $1`, h)
		if err != nil {
			return errors.Wrapf(err, "set tx %s confirmed", h)
		}
		zap.L().Info("payment tx confirmed", zap.String("tx", h))
	}
	return nil
}

func (p *PgStore) MoveToFailed(ctx context.Context, txHashes []string) (int, error) {
	var moved int
	err := store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		filter := `tx_confirmed = false`
		args := []interface{}{}
		if txHashes != nil {
			filter += ` AND tx_hash = ANY($1)`
			args = append(args, pq.Array(txHashes))
		}
		_, err := tx.ExecContext(ctx, `UPDATE sak_credit c SET batch_ts = NULL
			FROM sak_payment p
			WHERE c.user_id = p.user_id AND c.batch_ts = p.batch_ts AND p.`+filter, args...)
		if err != nil {
			return errors.Wrap(err, "release credits")
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO sak_failed_payment (user_id, wallet_addr, batch_ts, amount_dec_n, tx_hash)
			SELECT user_id, wallet_addr, batch_ts, amount_dec_n, tx_hash FROM sak_payment WHERE `+filter, args...)
		if err != nil {
			return errors.Wrap(err, "insert failed payments")
		}
		n, _ := res.RowsAffected()
		moved = int(n)
		_, err = tx.ExecContext(ctx, `DELETE FROM sak_payment WHERE `+filter, args...)
		return errors.Wrap(err, "delete unconfirmed payments")
	})
	if err == nil && moved > 0 {
		zap.L().Info("moved payments to failed", zap.Int("count", moved))
	}
	return moved, err
}

// ConfirmTransfer matches an on-chain transfer to the unconfirmed payment
// with the same tx hash, or failing that to an unconfirmed payment with the
// same wallet and amount
func (p *PgStore) ConfirmTransfer(ctx context.Context, t contracts.TransferLog, blockTs time.Time) (bool, error) {
	var ts sql.NullTime
	if !blockTs.IsZero() {
		ts = sql.NullTime{Time: blockTs, Valid: true}
	}
	res, err := p.Db.ExecContext(ctx, `UPDATE sak_payment SET tx_confirmed = true, block_nr = $2, block_ts = $3
		WHERE tx_hash = $1 AND tx_confirmed = false`, t.TxHash.Hex(), t.BlockNumber, ts)
	if err != nil {
		return false, errors.Wrap(err, "confirm transfer")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	res, err = p.Db.ExecContext(ctx, `UPDATE sak_payment SET tx_confirmed = true, tx_hash = $1, block_nr = $2, block_ts = $3
		WHERE ctid = (SELECT ctid FROM sak_payment
			WHERE lower(wallet_addr) = $4 AND amount_dec_n = $5 AND tx_confirmed = false
			ORDER BY batch_ts DESC LIMIT 1)`,
		t.TxHash.Hex(), t.BlockNumber, ts, strings.ToLower(t.To.Hex()), t.Value.String())
	if err != nil {
		return false, errors.Wrap(err, "confirm transfer by amount")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *PgStore) Payments(ctx context.Context, userID string) ([]Payment, error) {
	query := `SELECT user_id, wallet_addr, batch_ts, amount_dec_n::text, tx_hash,
			COALESCE(block_nr, 0), block_ts, tx_confirmed
		FROM sak_payment WHERE user_id = $1 ORDER BY batch_ts DESC`
	rows, err := p.Db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "payments")
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var pay Payment
		var amount string
		var blockTs sql.NullTime
		if err := rows.Scan(&pay.UserID, &pay.WalletAddr, &pay.BatchTs, &amount, &pay.TxHash,
			&pay.BlockNr, &blockTs, &pay.Confirmed); err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		pay.AmountDecN = utils.DecNFromString(amount)
		pay.BlockTs = blockTs.Time
		out = append(out, pay)
	}
	return out, rows.Err()
}

func (p *PgStore) OpenCredits(ctx context.Context, userID string) (*big.Int, error) {
	var amount string
	err := p.Db.QueryRowContext(ctx, `SELECT COALESCE(sum(amount_dec_n), 0)::text FROM sak_credit
		WHERE user_id = $1 AND batch_ts IS NULL`, userID).Scan(&amount)
	if err != nil {
		return nil, errors.Wrap(err, "open credits")
	}
	return utils.DecNFromString(amount), nil
}
