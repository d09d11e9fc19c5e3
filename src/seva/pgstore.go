package seva

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/store"
)

type PgStore struct {
	Db *sql.DB
}

func (p *PgStore) Credit(ctx context.Context, e Entry, sak *big.Int) (Entry, bool, error) {
	var created bool
	err := store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		var err error
		e, created, err = CreditTx(ctx, tx, e, sak)
		return err
	})
	return e, created, err
}

func (p *PgStore) Debit(ctx context.Context, e Entry) (Entry, error) {
	err := store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		var err error
		e, err = DebitTx(ctx, tx, e)
		return err
	})
	return e, err
}

func (p *PgStore) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := p.Db.QueryRowContext(ctx, `SELECT balance FROM seva_account WHERE user_id = $1`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return bal, errors.Wrap(err, "seva balance")
}

func (p *PgStore) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	query := `SELECT id, user_id, delta, kind, ref, COALESCE(idem_key, ''), created_at
		FROM seva_ledger WHERE user_id = $1 ORDER BY id DESC LIMIT $2`
	rows, err := p.Db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "seva history")
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Kind, &e.Ref, &e.IdemKey, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan seva entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullKey(k string) sql.NullString {
	return sql.NullString{String: k, Valid: k != ""}
}

// CreditTx is Credit inside the caller's transaction
func CreditTx(ctx context.Context, tx *sql.Tx, e Entry, sak *big.Int) (Entry, bool, error) {
	if e.Delta <= 0 {
		return Entry{}, false, ErrInvalidAmount
	}
	query := `
	INSERT INTO seva_ledger (user_id, delta, kind, ref, idem_key)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (idem_key) DO NOTHING
	RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, query, e.UserID, e.Delta, e.Kind, e.Ref, nullKey(e.IdemKey)).
		Scan(&e.ID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		// key already used
		var prev Entry
		err = tx.QueryRowContext(ctx, `SELECT id, user_id, delta, kind, ref, idem_key, created_at
			FROM seva_ledger WHERE idem_key = $1`, e.IdemKey).
			Scan(&prev.ID, &prev.UserID, &prev.Delta, &prev.Kind, &prev.Ref, &prev.IdemKey, &prev.CreatedAt)
		if err != nil {
			return Entry{}, false, errors.Wrap(err, "read idempotent entry")
		}
		if err := checkReplay(prev, e); err != nil {
			return Entry{}, false, err
		}
		return prev, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrap(err, "insert seva entry")
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO seva_account (user_id, balance) VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET balance = seva_account.balance + EXCLUDED.balance, updated_at = now()`,
		e.UserID, e.Delta)
	if err != nil {
		return Entry{}, false, errors.Wrap(err, "credit seva account")
	}
	if sak != nil && sak.Sign() > 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO sak_credit (user_id, amount_dec_n, source, ledger_id) VALUES ($1, $2, $3, $4)`,
			e.UserID, sak.String(), "seva:"+e.Kind, e.ID)
		if err != nil {
			return Entry{}, false, errors.Wrap(err, "insert sak credit")
		}
	}
	return e, true, nil
}

// DebitTx is Debit inside the caller's transaction. The account row is
// locked until the transaction ends.
func DebitTx(ctx context.Context, tx *sql.Tx, e Entry) (Entry, error) {
	if e.Delta >= 0 {
		return Entry{}, ErrInvalidAmount
	}
	var bal int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM seva_account WHERE user_id = $1 FOR UPDATE`, e.UserID).Scan(&bal)
	if err != nil && err != sql.ErrNoRows {
		return Entry{}, errors.Wrap(err, "lock seva account")
	}
	if bal+e.Delta < 0 {
		return Entry{}, errors.Wrapf(ErrInsufficient, "balance %d, need %d", bal, -e.Delta)
	}
	_, err = tx.ExecContext(ctx, `UPDATE seva_account SET balance = balance + $2, updated_at = now() WHERE user_id = $1`,
		e.UserID, e.Delta)
	if err != nil {
		return Entry{}, errors.Wrap(err, "debit seva account")
	}
	err = tx.QueryRowContext(ctx, `INSERT INTO seva_ledger (user_id, delta, kind, ref) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, e.UserID, e.Delta, e.Kind, e.Ref).Scan(&e.ID, &e.CreatedAt)
	return e, errors.Wrap(err, "insert seva entry")
}

// ClawbackTx takes back up to amount seva, limited by the current balance.
// It returns the debited amount.
func ClawbackTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, ref string) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	var bal int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM seva_account WHERE user_id = $1 FOR UPDATE`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "lock seva account")
	}
	take := min(amount, bal)
	if take == 0 {
		return 0, nil
	}
	_, err = DebitTx(ctx, tx, Entry{UserID: userID, Delta: -take, Kind: KindClawback, Ref: ref})
	return take, err
}

// RevokeTx undoes the credit made with the idempotency key: the seva is
// clawed back as far as the balance allows and the SAK credit is dropped,
// or offset by a negative credit if it was already paid out. It returns
// the clawed back seva, 0 if there was no such credit.
func RevokeTx(ctx context.Context, tx *sql.Tx, idemKey, ref string) (int64, error) {
	var e Entry
	err := tx.QueryRowContext(ctx, `SELECT id, user_id, delta, kind FROM seva_ledger WHERE idem_key = $1`, idemKey).
		Scan(&e.ID, &e.UserID, &e.Delta, &e.Kind)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read revoked entry")
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO sak_credit (user_id, amount_dec_n, source)
	SELECT user_id, -amount_dec_n, 'revoke:' || $2 FROM sak_credit WHERE ledger_id = $1 AND batch_ts IS NOT NULL`,
		e.ID, e.Kind)
	if err != nil {
		return 0, errors.Wrap(err, "offset paid sak credit")
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM sak_credit WHERE ledger_id = $1 AND batch_ts IS NULL`, e.ID)
	if err != nil {
		return 0, errors.Wrap(err, "drop sak credit")
	}
	return ClawbackTx(ctx, tx, e.UserID, e.Delta, ref)
}
