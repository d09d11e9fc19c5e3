package seva

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectai397/sakshi-platform-sub002/src/store"
	"github.com/projectai397/sakshi-platform-sub002/src/store/storetest"
)

func sakCredits(t *testing.T, db *sql.DB, userID string) []string {
	t.Helper()
	rows, err := db.Query(`SELECT amount_dec_n::text FROM sak_credit WHERE user_id = $1 ORDER BY id`, userID)
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		require.NoError(t, rows.Scan(&a))
		out = append(out, a)
	}
	return out
}

func TestPgCreditIdempotent(t *testing.T) {
	db := storetest.Open(t)
	st := &PgStore{Db: db}
	ctx := context.Background()
	e := Entry{UserID: "u1", Delta: 10, Kind: "volunteer_hour", Ref: "shift-1", IdemKey: "shift-1"}

	first, created, err := st.Credit(ctx, e, big.NewInt(1000))
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := st.Credit(ctx, e, big.NewInt(1000))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	bal, err := st.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
	assert.Equal(t, []string{"1000"}, sakCredits(t, db, "u1"))

	var ledgerID int64
	require.NoError(t, db.QueryRow(`SELECT ledger_id FROM sak_credit WHERE user_id = 'u1'`).Scan(&ledgerID))
	assert.Equal(t, first.ID, ledgerID)

	other := e
	other.UserID = "u2"
	_, _, err = st.Credit(ctx, other, nil)
	assert.True(t, errors.Is(err, ErrKeyReused))
	bal, err = st.Balance(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestPgDebitKeepsBalance(t *testing.T) {
	db := storetest.Open(t)
	st := &PgStore{Db: db}
	ctx := context.Background()
	_, _, err := st.Credit(ctx, Entry{UserID: "u1", Delta: 5, Kind: "item_donation"}, nil)
	require.NoError(t, err)

	_, err = st.Debit(ctx, Entry{UserID: "u1", Delta: -6, Kind: KindSpend, Ref: "o1"})
	assert.True(t, errors.Is(err, ErrInsufficient))
	_, err = st.Debit(ctx, Entry{UserID: "nobody", Delta: -1, Kind: KindSpend, Ref: "o1"})
	assert.True(t, errors.Is(err, ErrInsufficient))

	_, err = st.Debit(ctx, Entry{UserID: "u1", Delta: -5, Kind: KindSpend, Ref: "o2"})
	require.NoError(t, err)
	bal, err := st.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	hist, err := st.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(-5), hist[0].Delta)
}

func TestPgRevoke(t *testing.T) {
	db := storetest.Open(t)
	st := &PgStore{Db: db}
	ctx := context.Background()
	_, _, err := st.Credit(ctx, Entry{UserID: "u1", Delta: 4, Kind: "supporter_purchase", IdemKey: "order-paid:a"}, big.NewInt(400))
	require.NoError(t, err)
	_, _, err = st.Credit(ctx, Entry{UserID: "u1", Delta: 3, Kind: "supporter_purchase", IdemKey: "order-paid:b"}, big.NewInt(300))
	require.NoError(t, err)
	// b was paid out already
	_, err = db.Exec(`UPDATE sak_credit SET batch_ts = now() WHERE amount_dec_n = 300`)
	require.NoError(t, err)

	var taken int64
	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		taken, err = RevokeTx(ctx, tx, "order-paid:a", "a")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), taken)
	assert.Equal(t, []string{"300"}, sakCredits(t, db, "u1"))

	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		taken, err = RevokeTx(ctx, tx, "order-paid:b", "b")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), taken)
	assert.Equal(t, []string{"300", "-300"}, sakCredits(t, db, "u1"))
	bal, err := st.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		taken, err = RevokeTx(ctx, tx, "order-paid:missing", "x")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), taken)
}
