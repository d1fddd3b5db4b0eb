package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/automaton-batch/internal/infra/db/sqlpool"
)

// Connect opens a MySQL pool. The DSN should carry parseTime=true.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	return sqlpool.Open(ctx, "mysql", dsn, sqlpool.Default)
}
