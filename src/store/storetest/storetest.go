// Package storetest provides a migrated postgres schema for tests of the
// PgStore implementations. The tests are skipped unless TEST_DATABASE_DSN
// holds a URL-form postgres DSN.
package storetest

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/projectai397/sakshi-platform-sub002/src/store"
)

const DSNEnv = "TEST_DATABASE_DSN"

// Open creates a fresh schema, migrates it and returns a pool bound to it.
// The schema is dropped when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	ctx := context.Background()
	admin, err := store.ConnectDB(ctx, dsn)
	require.NoError(t, err)
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.ExecContext(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := admin.ExecContext(ctx, `DROP SCHEMA `+schema+` CASCADE`); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		admin.Close()
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	require.NoError(t, store.Migrate(u.String()))
	db, err := store.ConnectDB(ctx, u.String())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
