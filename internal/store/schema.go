package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ChangeChannel es el canal de LISTEN/NOTIFY por el que la DB avisa cambios en la tabla.
const ChangeChannel = "shopping_items_changed"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schemaStatements se ejecutan en orden y son idempotentes.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS shopping_items (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		quantity   TEXT NOT NULL,
		price      DOUBLE PRECISION NULL,
		is_in_cart BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`CREATE INDEX IF NOT EXISTS ix_shopping_items_name ON shopping_items (name);`,
	`CREATE OR REPLACE FUNCTION notify_shopping_items_changed() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + ChangeChannel + `', '');
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE TRIGGER shopping_items_changed
		AFTER INSERT OR UPDATE OR DELETE ON shopping_items
		FOR EACH STATEMENT EXECUTE FUNCTION notify_shopping_items_changed();`,
}

// Migrate crea la tabla y el trigger de notificación si no existen.
// El esquema es único y fijo: no hay versionado.
func Migrate(ctx context.Context, database execer) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	for index, statement := range schemaStatements {
		if _, err := database.Exec(ctx, statement); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", index+1, err)
		}
	}
	return nil
}
