package orders

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
	"github.com/projectai397/sakshi-platform-sub002/src/store/storetest"
)

func seedItems(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO catalog_item (id, kind, name, fair_price_cents, stock) VALUES
		('golden-milk', 'cafe', 'Golden Milk', 450, 5), ('cookie', 'cafe', 'Cookie', 300, 1)`)
	require.NoError(t, err)
}

func stockOf(t *testing.T, db *sql.DB, id string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT stock FROM catalog_item WHERE id = $1`, id).Scan(&n))
	return n
}

func pgOrder(userID string, sevaApplied int64, lines ...Line) Order {
	return Order{ID: uuid.NewString(), UserID: userID, Tier: pricing.TierSupporter, Status: StatusPending,
		Lines: lines, SubtotalCents: 1000, SevaApplied: sevaApplied, TotalCents: 1000, SevaEarned: 2}
}

func TestPgPlaceIsAtomic(t *testing.T) {
	db := storetest.Open(t)
	seedItems(t, db)
	st := &PgStore{Db: db}
	sv := &seva.PgStore{Db: db}
	ctx := context.Background()
	_, _, err := sv.Credit(ctx, seva.Entry{UserID: "u1", Delta: 10, Kind: "volunteer_hour"}, nil)
	require.NoError(t, err)

	err = st.Place(ctx, pgOrder("u1", 0, Line{ItemID: "cookie", Qty: 1}, Line{ItemID: "golden-milk", Qty: 6}))
	assert.True(t, errors.Is(err, ErrOutOfStock))
	assert.Equal(t, 1, stockOf(t, db, "cookie"))

	err = st.Place(ctx, pgOrder("u1", 11, Line{ItemID: "golden-milk", Qty: 2}))
	assert.True(t, errors.Is(err, seva.ErrInsufficient))
	assert.Equal(t, 5, stockOf(t, db, "golden-milk"))

	o := pgOrder("u1", 4, Line{ItemID: "cookie", Qty: 1, UnitPriceCents: 300}, Line{ItemID: "golden-milk", Qty: 2, UnitPriceCents: 350})
	require.NoError(t, st.Place(ctx, o))
	assert.Equal(t, 0, stockOf(t, db, "cookie"))
	assert.Equal(t, 3, stockOf(t, db, "golden-milk"))
	bal, err := sv.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), bal)

	got, err := st.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Cookie", got.Lines[0].Name)

	err = st.Place(ctx, pgOrder("u2", 0, Line{ItemID: "cookie", Qty: 1}))
	assert.True(t, errors.Is(err, ErrOutOfStock))
}

func TestPgCancelPaidRevokesCredit(t *testing.T) {
	db := storetest.Open(t)
	seedItems(t, db)
	st := &PgStore{Db: db}
	sv := &seva.PgStore{Db: db}
	ctx := context.Background()
	_, _, err := sv.Credit(ctx, seva.Entry{UserID: "u1", Delta: 10, Kind: "volunteer_hour"}, nil)
	require.NoError(t, err)

	o := pgOrder("u1", 3, Line{ItemID: "golden-milk", Qty: 2})
	require.NoError(t, st.Place(ctx, o))
	require.NoError(t, st.SetStatus(ctx, o.ID, StatusPending, StatusPaid))
	assert.True(t, errors.Is(st.SetStatus(ctx, o.ID, StatusPending, StatusPaid), ErrIllegalTransition))
	// the earn was capped to 1 of the 2 quoted
	_, _, err = sv.Credit(ctx, seva.Entry{UserID: "u1", Delta: 1, Kind: "supporter_purchase", Ref: o.ID,
		IdemKey: PaidKey(o.ID)}, big.NewInt(100))
	require.NoError(t, err)

	o.Status = StatusPaid
	require.NoError(t, st.Cancel(ctx, o))
	assert.Equal(t, 5, stockOf(t, db, "golden-milk"))
	bal, err := sv.Balance(ctx, "u1")
	require.NoError(t, err)
	// 10 - 3 spent + 1 earned + 3 refunded - 1 revoked
	assert.Equal(t, int64(10), bal)
	var open int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM sak_credit WHERE user_id = 'u1'`).Scan(&open))
	assert.Equal(t, 0, open)

	assert.True(t, errors.Is(st.Cancel(ctx, o), ErrIllegalTransition))
}
