package orders

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/seva"
	"github.com/projectai397/sakshi-platform-sub002/src/store"
)

type PgStore struct {
	Db *sql.DB
}

// Place expects the lines sorted by item id so concurrent orders lock the
// items in the same order
func (p *PgStore) Place(ctx context.Context, o Order) error {
	return store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		for _, l := range o.Lines {
			res, err := tx.ExecContext(ctx, `UPDATE catalog_item SET stock = stock - $2, updated_at = now()
				WHERE id = $1 AND stock >= $2`, l.ItemID, l.Qty)
			if err != nil {
				return errors.Wrap(err, "decrement stock")
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errors.Wrapf(ErrOutOfStock, "item %s", l.ItemID)
			}
		}
		if o.SevaApplied > 0 {
			e := seva.Entry{UserID: o.UserID, Delta: -o.SevaApplied, Kind: seva.KindSpend, Ref: o.ID}
			if _, err := seva.DebitTx(ctx, tx, e); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO orders (id, user_id, tier, status, subtotal_cents,
			seva_applied, seva_value_cents, total_cents, seva_earned)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.ID, o.UserID, o.Tier, o.Status, o.SubtotalCents, o.SevaApplied, o.SevaValueCents, o.TotalCents, o.SevaEarned)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		for _, l := range o.Lines {
			_, err := tx.ExecContext(ctx, `INSERT INTO order_line (order_id, item_id, qty, unit_price_cents)
				VALUES ($1, $2, $3, $4)`, o.ID, l.ItemID, l.Qty, l.UnitPriceCents)
			if err != nil {
				return errors.Wrap(err, "insert order line")
			}
		}
		return nil
	})
}

const orderColumns = `id, user_id, tier, status, subtotal_cents, seva_applied, seva_value_cents,
	total_cents, seva_earned, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Tier, &o.Status, &o.SubtotalCents, &o.SevaApplied, &o.SevaValueCents,
		&o.TotalCents, &o.SevaEarned, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (p *PgStore) lines(ctx context.Context, o *Order) error {
	rows, err := p.Db.QueryContext(ctx, `SELECT l.item_id, COALESCE(i.name, ''), l.qty, l.unit_price_cents
		FROM order_line l LEFT JOIN catalog_item i ON i.id = l.item_id
		WHERE l.order_id = $1 ORDER BY l.item_id`, o.ID)
	if err != nil {
		return errors.Wrap(err, "order lines")
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Qty, &l.UnitPriceCents); err != nil {
			return errors.Wrap(err, "scan order line")
		}
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}

func (p *PgStore) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(p.Db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, errors.Wrap(err, "get order")
	}
	return o, p.lines(ctx, &o)
}

func (p *PgStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := p.Db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for k := range out {
		if err := p.lines(ctx, &out[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func setStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to Status) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return errors.Wrap(err, "set order status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrIllegalTransition, "order %s is no longer %s", id, from)
	}
	return nil
}

func (p *PgStore) SetStatus(ctx context.Context, id string, from, to Status) error {
	return store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		return setStatusTx(ctx, tx, id, from, to)
	})
}

func (p *PgStore) Cancel(ctx context.Context, o Order) error {
	return store.WithTx(ctx, p.Db, func(tx *sql.Tx) error {
		if err := setStatusTx(ctx, tx, o.ID, o.Status, StatusCancelled); err != nil {
			return err
		}
		for _, l := range o.Lines {
			_, err := tx.ExecContext(ctx, `UPDATE catalog_item SET stock = stock + $2, updated_at = now() WHERE id = $1`,
				l.ItemID, l.Qty)
			if err != nil {
				return errors.Wrap(err, "restore stock")
			}
		}
		if o.SevaApplied > 0 {
			e := seva.Entry{UserID: o.UserID, Delta: o.SevaApplied, Kind: seva.KindRefund, Ref: o.ID, IdemKey: "order-cancel:" + o.ID}
			if _, _, err := seva.CreditTx(ctx, tx, e, nil); err != nil {
				return err
			}
		}
		if o.Status == StatusPaid {
			if _, err := seva.RevokeTx(ctx, tx, PaidKey(o.ID), o.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
