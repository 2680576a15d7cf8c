package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs against a real database when TEST_DATABASE_URL is set. The documents
// table is truncated first.
func TestPostgresDocumentStore_Contract(t *testing.T) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := ConnectPostgres(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, MigratePostgres(db.DB))
	_, err = db.Exec(`TRUNCATE documents`)
	require.NoError(t, err)

	documentStoreContract(t, NewPostgresDocumentStore(db))
}
