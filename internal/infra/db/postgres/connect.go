package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/bryanwahyu/automaton-batch/internal/infra/db/sqlpool"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	return sqlpool.Open(ctx, "postgres", dsn, sqlpool.Default)
}
