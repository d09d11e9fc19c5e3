package catalog

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

type PgStore struct {
	Db *sql.DB
}

const itemColumns = `ci.id, ci.kind, ci.name, ci.description, ci.fair_price_cents, ci.cost_cents,
	ci.retail_price_cents, ci.condition, ci.dosha_tags, ci.dietary_tags, ci.tags, ci.stock,
	ci.views, ci.listed_at,
	(SELECT count(*) FROM item_favourite f WHERE f.item_id = ci.id) AS favourites`

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanItem scans the itemColumns projection
func ScanItem(row rowScanner) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Kind, &it.Name, &it.Description, &it.FairPriceCents, &it.CostCents,
		&it.RetailPriceCents, &it.Condition, pq.Array(&it.DoshaTags), pq.Array(&it.DietaryTags),
		pq.Array(&it.Tags), &it.Stock, &it.Views, &it.ListedAt, &it.Favourites)
	return it, err
}

func (s *PgStore) UpsertItem(ctx context.Context, it Item) error {
	query := `
	INSERT INTO catalog_item (id, kind, name, description, fair_price_cents, cost_cents,
		retail_price_cents, condition, dosha_tags, dietary_tags, tags, stock)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		kind = EXCLUDED.kind, name = EXCLUDED.name, description = EXCLUDED.description,
		fair_price_cents = EXCLUDED.fair_price_cents, cost_cents = EXCLUDED.cost_cents,
		retail_price_cents = EXCLUDED.retail_price_cents, condition = EXCLUDED.condition,
		dosha_tags = EXCLUDED.dosha_tags, dietary_tags = EXCLUDED.dietary_tags,
		tags = EXCLUDED.tags, stock = EXCLUDED.stock, updated_at = now()`
	_, err := s.Db.ExecContext(ctx, query, it.ID, it.Kind, it.Name, it.Description, it.FairPriceCents,
		it.CostCents, it.RetailPriceCents, it.Condition, pq.Array(it.DoshaTags),
		pq.Array(it.DietaryTags), pq.Array(it.Tags), it.Stock)
	return err
}

func (s *PgStore) GetItem(ctx context.Context, id string) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_item ci WHERE ci.id = $1`
	it, err := ScanItem(s.Db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, errors.Wrap(err, "get item")
	}
	return it, nil
}

func (s *PgStore) ListItems(ctx context.Context, kind Kind) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_item ci
		WHERE ($1 = '' OR ci.kind = $1)
		ORDER BY ci.kind, ci.name`
	rows, err := s.Db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		it, err := ScanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan item")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PgStore) RecordView(ctx context.Context, id string) error {
	_, err := s.Db.ExecContext(ctx, `UPDATE catalog_item SET views = views + 1 WHERE id = $1`, id)
	return err
}

func (s *PgStore) ToggleFavourite(ctx context.Context, id string, userID string) (bool, error) {
	res, err := s.Db.ExecContext(ctx,
		`DELETE FROM item_favourite WHERE item_id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, errors.Wrap(err, "unfavourite")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	_, err = s.Db.ExecContext(ctx,
		`INSERT INTO item_favourite (item_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, userID)
	if err != nil {
		return false, errors.Wrap(err, "favourite")
	}
	return true, nil
}
