package executor

import (
	"context"
	"database/sql"

	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/session"
)

// NewTableScanner returns a scanner reading table metadata from db. The
// factory runs it once at construction.
func NewTableScanner(ctx context.Context, db *sql.DB, dialect Dialect) session.TableScanner {
	return func() (map[string]*session.Table, error) {
		names, err := queryStrings(ctx, db, dialect.GetTablesQuery())
		if err != nil {
			return nil, errs.WrapError(FromError(err), errs.ErrCodeDriver, "get tables")
		}
		tables := make(map[string]*session.Table, len(names))
		for _, name := range names {
			columns, err := queryStrings(ctx, db, dialect.GetColumnsQuery(), name)
			if err != nil {
				return nil, errs.WrapError(FromError(err), errs.ErrCodeDriver, "get columns of "+name)
			}
			tables[name] = &session.Table{Name: name, Columns: columns}
		}
		return tables, nil
	}
}

// queryStrings 读取单列字符串结果
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
