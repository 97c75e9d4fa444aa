package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	t.Run("applies every statement in order", func(t *testing.T) {
		database := &fakeDB{}

		err := Migrate(context.Background(), database)

		require.NoError(t, err)
		require.Equal(t, schemaStatements, database.execQueries)
		require.Contains(t, database.execQueries[0], "CREATE TABLE IF NOT EXISTS shopping_items")
		require.Contains(t, database.execQueries[3], "CREATE OR REPLACE TRIGGER")
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		database := &fakeDB{}
		schemaErr := errors.New("permission denied")
		database.execFn = func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, schemaErr
		}

		err := Migrate(context.Background(), database)

		require.ErrorIs(t, err, schemaErr)
		require.Contains(t, err.Error(), "statement 1")
		require.Len(t, database.execQueries, 1)
	})
}
