package passport

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

func insertEvent(ctx context.Context, tx *sql.Tx, id string, e Event) error {
	query := `INSERT INTO passport_event
		(passport_id, seq, kind, actor_id, notes, cost_cents, prev_hash, event_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := tx.ExecContext(ctx, query, id, e.Seq, e.Kind, e.ActorID, e.Notes, e.CostCents,
		e.PrevHash, e.Hash, e.CreatedAt)
	return errors.Wrap(err, "insert passport event")
}

func (s *PgStore) Create(ctx context.Context, p Passport) error {
	return store.WithTx(ctx, s.Db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO passport (id, item_id, owner_id, head_hash, created_at)
			VALUES ($1, $2, $3, $4, $5)`, p.ID, p.ItemID, p.OwnerID, p.HeadHash, p.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert passport")
		}
		for _, e := range p.Events {
			if err := insertEvent(ctx, tx, p.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PgStore) Get(ctx context.Context, id string) (Passport, error) {
	var p Passport
	var tokenID sql.NullString
	err := s.Db.QueryRowContext(ctx, `SELECT id, item_id, owner_id, token_id::text, token_uri, mint_tx, head_hash, created_at
		FROM passport WHERE id = $1`, id).
		Scan(&p.ID, &p.ItemID, &p.OwnerID, &tokenID, &p.TokenURI, &p.MintTx, &p.HeadHash, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return Passport{}, ErrNotFound
	}
	if err != nil {
		return Passport{}, errors.Wrap(err, "get passport")
	}
	p.TokenID = tokenID.String
	rows, err := s.Db.QueryContext(ctx, `SELECT seq, kind, actor_id, notes, cost_cents, prev_hash, event_hash, created_at
		FROM passport_event WHERE passport_id = $1 ORDER BY seq`, id)
	if err != nil {
		return Passport{}, errors.Wrap(err, "get passport events")
	}
	defer rows.Close()
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Kind, &e.ActorID, &e.Notes, &e.CostCents, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return Passport{}, errors.Wrap(err, "scan passport event")
		}
		e.CreatedAt = e.CreatedAt.UTC()
		p.Events = append(p.Events, e)
	}
	return p, rows.Err()
}

func (s *PgStore) Append(ctx context.Context, id string, prevHead string, e Event, newOwner string) error {
	return store.WithTx(ctx, s.Db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE passport
			SET head_hash = $3, owner_id = COALESCE(NULLIF($4, ''), owner_id)
			WHERE id = $1 AND head_hash = $2`, id, prevHead, e.Hash, newOwner)
		if err != nil {
			return errors.Wrap(err, "move passport head")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		return insertEvent(ctx, tx, id, e)
	})
}

func (s *PgStore) ClaimMint(ctx context.Context, id, uri, txHash string) error {
	res, err := s.Db.ExecContext(ctx, `UPDATE passport SET token_uri = $2, mint_tx = $3
		WHERE id = $1 AND mint_tx = '' AND token_id IS NULL`, id, uri, txHash)
	if err != nil {
		return errors.Wrap(err, "claim passport mint")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var minted bool
	err = s.Db.QueryRowContext(ctx, `SELECT token_id IS NOT NULL FROM passport WHERE id = $1`, id).Scan(&minted)
	switch {
	case err == sql.ErrNoRows:
		return ErrNotFound
	case err != nil:
		return errors.Wrap(err, "claim passport mint")
	case minted:
		return ErrAlreadyMinted
	}
	return ErrMintPending
}

func (s *PgStore) ReleaseMint(ctx context.Context, id, txHash string) error {
	_, err := s.Db.ExecContext(ctx, `UPDATE passport SET token_uri = '', mint_tx = ''
		WHERE id = $1 AND mint_tx = $2 AND token_id IS NULL`, id, txHash)
	return errors.Wrap(err, "release passport mint")
}

func (s *PgStore) SetMinted(ctx context.Context, id string, tokenID *big.Int, txHash string) error {
	res, err := s.Db.ExecContext(ctx, `UPDATE passport SET token_id = $2
		WHERE id = $1 AND mint_tx = $3 AND token_id IS NULL`, id, tokenID.String(), txHash)
	if err != nil {
		return errors.Wrap(err, "set passport minted")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyMinted
	}
	return nil
}
