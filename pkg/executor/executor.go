package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/kasuganosora/sqlsession/pkg/config"
	"github.com/kasuganosora/sqlsession/pkg/errs"
	"github.com/kasuganosora/sqlsession/pkg/logger"
	"github.com/kasuganosora/sqlsession/pkg/option"
	"github.com/kasuganosora/sqlsession/pkg/session"
	"github.com/kasuganosora/sqlsession/pkg/stmt"
	"github.com/kasuganosora/sqlsession/pkg/txn"
)

// Options 执行器选项
type Options struct {
	// User 通过 USER 选项暴露给会话
	User   string
	Logger logger.Logger
}

// SQLExecutor runs one session's statements on a connection pinned from a
// *sql.DB. Like the session that owns it, it is not safe for concurrent use.
type SQLExecutor struct {
	conn    *sql.Conn
	dialect Dialect
	user    string
	logger  logger.Logger
	tx      *sql.Tx
}

// Open pins a connection of db for one session.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, opts Options) (*SQLExecutor, error) {
	if db == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "db is nil", nil)
	}
	if dialect == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "dialect is nil", nil)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errs.WrapError(FromError(err), errs.ErrCodeDriver, "acquire connection")
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &SQLExecutor{conn: conn, dialect: dialect, user: opts.User, logger: l}, nil
}

// DefaultIsolation 方言默认隔离级别
func (e *SQLExecutor) DefaultIsolation() txn.Isolation {
	return e.dialect.DefaultIsolation()
}

// Begin starts a database/sql transaction. ctx must stay valid until the
// transaction ends; database/sql rolls back when it is canceled.
func (e *SQLExecutor) Begin(ctx context.Context, isolation txn.Isolation, readOnly bool) (txn.Isolation, option.Carrier, error) {
	if e.tx != nil {
		return "", nil, errs.NewError(errs.ErrCodeIllegalState, "transaction already started", nil)
	}
	level, err := sqlIsolation(isolation)
	if err != nil {
		return "", nil, err
	}
	tx, err := e.conn.BeginTx(ctx, &sql.TxOptions{Isolation: level, ReadOnly: readOnly})
	if err != nil {
		return "", nil, e.driverError(err, "begin")
	}
	e.tx = tx
	if isolation == "" {
		isolation = e.dialect.DefaultIsolation()
	}
	e.logger.Debug("[%s] begin isolation:%s readOnly:%t", e.dialect.DriverName(), isolation, readOnly)
	return isolation, option.Empty, nil
}

// Commit 提交当前事务，没有事务时不做任何事
func (e *SQLExecutor) Commit(context.Context) error {
	if e.tx == nil {
		return nil
	}
	tx := e.tx
	e.tx = nil
	if err := tx.Commit(); err != nil {
		return e.driverError(err, "commit")
	}
	return nil
}

// Rollback 回滚当前事务，没有事务时不做任何事
func (e *SQLExecutor) Rollback(context.Context) error {
	if e.tx == nil {
		return nil
	}
	tx := e.tx
	e.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return e.driverError(err, "rollback")
	}
	return nil
}

// Exec runs sqlText inside the current transaction, or in autocommit mode.
// The statement budget of opt bounds the call; the result summary is passed
// to opt's state consumer.
func (e *SQLExecutor) Exec(ctx context.Context, sqlText string, args []any, opt *stmt.Option) (*stmt.ResultStates, error) {
	if opt == nil {
		opt = stmt.Default()
	}
	execCtx, cancel, err := opt.Context(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var res sql.Result
	if e.tx != nil {
		res, err = e.tx.ExecContext(execCtx, sqlText, args...)
	} else {
		res, err = e.conn.ExecContext(execCtx, sqlText, args...)
	}
	if err != nil {
		if opt.IsSupportTimeout() && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, errs.NewTimeoutError(fmt.Sprintf("statement timeout %d ms", opt.TimeoutMillis()), 0)
		}
		return nil, e.driverError(err, "exec")
	}

	// 部分驱动不支持其中之一，此时按 0 处理
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	states := stmt.NewResultStates(0, affected, lastID, option.Empty)
	opt.Consume(states)
	return states, nil
}

// Close rolls back an open transaction and returns the connection to the pool.
func (e *SQLExecutor) Close() error {
	if e.tx != nil {
		if err := e.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			e.logger.Warn("[%s] rollback on close: %v", e.dialect.DriverName(), err)
		}
		e.tx = nil
	}
	if err := e.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return e.driverError(err, "close connection")
	}
	return nil
}

// ValueOf implements option.Carrier.
func (e *SQLExecutor) ValueOf(key option.Key) (any, bool) {
	if key == option.User && e.user != "" {
		return e.user, true
	}
	return nil, false
}

func (e *SQLExecutor) driverError(err error, action string) error {
	return errs.WrapError(FromError(err), errs.ErrCodeDriver, e.dialect.DriverName()+" "+action)
}

// NewExecutorFactory opens one executor per session on db. Dialects that
// support XA get an XaSQLExecutor.
func NewExecutorFactory(db *sql.DB, dialect Dialect, opts Options) session.ExecutorFactory {
	return func(ctx context.Context) (session.Executor, error) {
		if dialect.SupportsXa() {
			x, err := OpenXa(ctx, db, dialect, opts)
			if err != nil {
				return nil, err
			}
			return x, nil
		}
		e, err := Open(ctx, db, dialect, opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// OpenDB opens and pings the database described by cfg.
func OpenDB(ctx context.Context, cfg config.DataSourceConfig) (*sql.DB, Dialect, error) {
	dialect, err := DialectOf(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	if dialect.DriverName() == "mysql" {
		if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
			return nil, nil, errs.WrapError(err, errs.ErrCodeConfig, "invalid mysql dsn")
		}
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, nil, errs.WrapError(err, errs.ErrCodeDriver, "open "+dialect.DriverName())
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, errs.WrapError(FromError(err), errs.ErrCodeDriver, "ping "+dialect.DriverName())
	}
	return db, dialect, nil
}
